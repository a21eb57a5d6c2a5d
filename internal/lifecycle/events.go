package lifecycle

// Event 平台胶水层解析交互后产出的带标签事件变体。
// 状态机对这组变体做穷尽匹配，customId 字符串解析不进核心。
type Event interface {
	isEvent()
	Actor() string
}

// ServiceSelected 客户选定服务类型，开单并建工单频道。
type ServiceSelected struct {
	ActorID string
	Service string
}

// TicketClosed 确认前关闭工单（发起人或 staff）。
type TicketClosed struct {
	ActorID string
	OrderID string
}

// ConfirmRequested 发起人请求确认，弹出明细收集表单（不改状态）。
type ConfirmRequested struct {
	ActorID string
	OrderID string
}

// FormSubmitted 明细表单提交，字段键为规范字段名（snake_case）。
type FormSubmitted struct {
	ActorID string
	OrderID string
	Fields  map[string]string
}

// PaymentSelected 支付方式选定（状态不变，只落 payment_method）。
type PaymentSelected struct {
	ActorID string
	OrderID string
	Method  string
}

// StaffCancelled staff 取消已确认订单。
type StaffCancelled struct {
	ActorID string
	OrderID string
}

// StaffCompleted staff 完成订单。
type StaffCompleted struct {
	ActorID string
	OrderID string
}

func (ServiceSelected) isEvent()  {}
func (TicketClosed) isEvent()     {}
func (ConfirmRequested) isEvent() {}
func (FormSubmitted) isEvent()    {}
func (PaymentSelected) isEvent()  {}
func (StaffCancelled) isEvent()   {}
func (StaffCompleted) isEvent()   {}

func (e ServiceSelected) Actor() string  { return e.ActorID }
func (e TicketClosed) Actor() string     { return e.ActorID }
func (e ConfirmRequested) Actor() string { return e.ActorID }
func (e FormSubmitted) Actor() string    { return e.ActorID }
func (e PaymentSelected) Actor() string  { return e.ActorID }
func (e StaffCancelled) Actor() string   { return e.ActorID }
func (e StaffCompleted) Actor() string   { return e.ActorID }
