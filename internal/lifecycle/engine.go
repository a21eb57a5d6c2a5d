package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"ticket_desk/internal/config"
	"ticket_desk/internal/model"
	"ticket_desk/internal/notify"
	"ticket_desk/internal/platform"
	"ticket_desk/internal/queue"
	"ticket_desk/internal/scheduler"
	"ticket_desk/internal/store"

	"github.com/google/uuid"
)

// TransitionSink 审计出口（Redis Stream outbox），nil 表示不接审计。
type TransitionSink interface {
	Append(ctx context.Context, msg queue.TransitionMessage) error
}

// Result 迁移成功后回给发起交互的人的终态答复。
type Result struct {
	Message string       `json:"message"`
	Order   *model.Order `json:"order,omitempty"`
}

// Engine 订单生命周期状态机。
// 并发策略：同单冲突迁移靠存储层状态 CAS 先到先得，
// 输家如果发现订单已在目标状态则按幂等成功返回（不重复触发副作用）。
type Engine struct {
	cfg     config.AppConfig
	repo    *store.Repository
	collab  platform.Collaborator
	sched   *scheduler.Scheduler
	audit   TransitionSink
	webhook *notify.Webhook
	now     func() time.Time
}

func NewEngine(cfg config.AppConfig, repo *store.Repository, collab platform.Collaborator, sched *scheduler.Scheduler, audit TransitionSink, webhook *notify.Webhook) *Engine {
	return &Engine{
		cfg:     cfg,
		repo:    repo,
		collab:  collab,
		sched:   sched,
		audit:   audit,
		webhook: webhook,
		now:     time.Now,
	}
}

// WithClock 测试用：替换时间源（影响归档轮转的月份键）。
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// HandleEvent 对事件变体做穷尽匹配。
func (e *Engine) HandleEvent(ctx context.Context, ev Event) (Result, error) {
	switch v := ev.(type) {
	case ServiceSelected:
		return e.handleServiceSelected(ctx, v)
	case TicketClosed:
		return e.handleTicketClosed(ctx, v)
	case ConfirmRequested:
		return e.handleConfirmRequested(ctx, v)
	case FormSubmitted:
		return e.handleFormSubmitted(ctx, v)
	case PaymentSelected:
		return e.handlePaymentSelected(ctx, v)
	case StaffCancelled:
		return e.handleStaffCancelled(ctx, v)
	case StaffCompleted:
		return e.handleStaffCompleted(ctx, v)
	default:
		return Result{}, fmt.Errorf("unknown event type %T", ev)
	}
}

// handleServiceSelected 开单：建分组/频道、以 pending 落库。
// 频道创建是承重副作用，失败时回滚订单，不留没有频道的 pending 单。
func (e *Engine) handleServiceSelected(ctx context.Context, ev ServiceSelected) (Result, error) {
	svc, ok := e.cfg.ServiceByValue(ev.Service)
	if !ok {
		return Result{}, NewValidationError("invalid service selection: %q", ev.Service)
	}

	categoryRef, err := e.ensureCategory(ctx, svc.Category)
	if err != nil {
		return Result{}, err
	}

	order, err := e.repo.CreateOrder(ctx, ev.ActorID, svc.Value, "")
	if err != nil {
		return Result{}, err
	}

	channelRef, err := e.collab.CreateChannel(ctx, platform.ChannelSpec{
		Name:       ticketChannelName(svc.Value, order.OrderID),
		Parent:     categoryRef,
		Overwrites: e.ticketOverwrites(ev.ActorID),
	})
	if err != nil {
		// 回滚：宁可让用户重试，也不留一张没有频道的 pending 单
		if derr := e.repo.DeleteOrder(ctx, order.OrderID); derr != nil {
			log.Printf("engine: rollback order %s after channel failure: %v", order.OrderID, derr)
		}
		return Result{}, platform.WrapExternal("create channel", err)
	}

	if err := e.repo.UpdateOrder(ctx, order.OrderID, map[string]any{"channel_id": channelRef}); err != nil {
		if derr := e.collab.DeleteChannel(ctx, channelRef); derr != nil {
			log.Printf("engine: rollback channel %s: %v", channelRef, derr)
		}
		if derr := e.repo.DeleteOrder(ctx, order.OrderID); derr != nil {
			log.Printf("engine: rollback order %s: %v", order.OrderID, derr)
		}
		return Result{}, err
	}
	order.ChannelID = channelRef

	welcome := fmt.Sprintf("<@%s> your ticket has been created. Order %s (%s). Press Confirm to fill in the details or Close to cancel.",
		ev.ActorID, order.OrderID, svc.Label)
	if err := e.collab.SendMessage(ctx, channelRef, welcome); err != nil {
		log.Printf("engine: welcome message for %s: %v", order.OrderID, err)
	}

	e.recordTransition(ctx, order.OrderID, "", string(model.StatusPending), ev.ActorID)

	return Result{
		Message: fmt.Sprintf("Ticket created: %s", order.OrderID),
		Order:   order,
	}, nil
}

// handleTicketClosed 确认前关单：删订单记录，延迟删频道。
func (e *Engine) handleTicketClosed(ctx context.Context, ev TicketClosed) (Result, error) {
	order, err := e.mustGetOrder(ctx, ev.OrderID)
	if err != nil {
		return Result{}, err
	}

	if ev.ActorID != order.UserID {
		staff, serr := e.isStaff(ctx, ev.ActorID)
		if serr != nil || !staff {
			return Result{}, fmt.Errorf("%w: only the requester or staff can close this ticket", ErrPermissionDenied)
		}
	}
	if order.Status != model.StatusPending {
		return Result{}, NewValidationError("only pending tickets can be closed (status is %s)", order.Status)
	}

	if err := e.repo.DeleteOrder(ctx, order.OrderID); err != nil {
		return Result{}, err
	}

	// 新迁移压掉旧的延迟动作，再安排删频道
	if err := e.sched.Cancel(ctx, order.OrderID); err != nil {
		log.Printf("engine: cancel actions for %s: %v", order.OrderID, err)
	}
	e.scheduleChannelDelete(ctx, order)

	notice := fmt.Sprintf("This ticket will be deleted in %d seconds...", int(e.cfg.TicketDeleteDelay.Seconds()))
	if order.ChannelID != "" {
		if err := e.collab.SendMessage(ctx, order.ChannelID, notice); err != nil {
			log.Printf("engine: close notice for %s: %v", order.OrderID, err)
		}
	}

	e.recordTransition(ctx, order.OrderID, string(order.Status), "closed", ev.ActorID)

	return Result{Message: notice}, nil
}

// handleConfirmRequested 只弹明细表单，不改状态。
func (e *Engine) handleConfirmRequested(ctx context.Context, ev ConfirmRequested) (Result, error) {
	order, err := e.mustGetOrder(ctx, ev.OrderID)
	if err != nil {
		return Result{}, err
	}
	if ev.ActorID != order.UserID {
		return Result{}, fmt.Errorf("%w: only the requester can confirm this order", ErrPermissionDenied)
	}
	if order.Status != model.StatusPending {
		return Result{}, NewValidationError("order %s is already %s", order.OrderID, order.Status)
	}

	svc, ok := e.cfg.ServiceByValue(order.ServiceType)
	if !ok {
		return Result{}, NewValidationError("order %s has unknown service type %q", order.OrderID, order.ServiceType)
	}

	prompt := fmt.Sprintf("Please fill in the order form: %s", strings.Join(svc.RequiredFields, ", "))
	if order.ChannelID != "" {
		if err := e.collab.SendMessage(ctx, order.ChannelID, prompt); err != nil {
			log.Printf("engine: detail prompt for %s: %v", order.OrderID, err)
		}
	}
	return Result{Message: prompt, Order: order}, nil
}

// handleFormSubmitted pending -> confirmed。
// 必填字段不齐时明确点名缺什么，绝不带着残缺数据往下走。
func (e *Engine) handleFormSubmitted(ctx context.Context, ev FormSubmitted) (Result, error) {
	order, err := e.mustGetOrder(ctx, ev.OrderID)
	if err != nil {
		return Result{}, err
	}
	if ev.ActorID != order.UserID {
		return Result{}, fmt.Errorf("%w: only the requester can submit this order form", ErrPermissionDenied)
	}

	// 读到的状态只做快速短路，最终以存储层 CAS 为准
	if !model.CanTransition(order.Status, model.StatusConfirmed) {
		return e.afterLostRace(ctx, order.OrderID, model.StatusConfirmed, "Order already confirmed.")
	}

	svc, ok := e.cfg.ServiceByValue(order.ServiceType)
	if !ok {
		return Result{}, NewValidationError("order %s has unknown service type %q", order.OrderID, order.ServiceType)
	}

	fields := map[string]any{}
	for _, col := range model.DetailColumns() {
		if v, present := ev.Fields[col]; present && strings.TrimSpace(v) != "" {
			fields[col] = strings.TrimSpace(v)
		}
	}

	var missing []string
	for _, req := range svc.RequiredFields {
		if _, submitted := fields[req]; submitted {
			continue
		}
		if order.DetailField(req) != "" {
			continue // 之前的对话里已经收集过
		}
		missing = append(missing, req)
	}
	if len(missing) > 0 {
		return Result{}, &ValidationError{Missing: missing}
	}

	fields["status"] = model.StatusConfirmed
	applied, err := e.repo.CASUpdateStatus(ctx, order.OrderID, model.StatusPending, fields)
	if err != nil {
		return Result{}, err
	}
	if !applied {
		return e.afterLostRace(ctx, order.OrderID, model.StatusConfirmed, "Order already confirmed.")
	}

	updated, _, err := e.repo.GetOrder(ctx, order.OrderID)
	if err != nil || updated == nil {
		updated = order
	}

	if e.cfg.StaffChannelID != "" {
		staffNote := fmt.Sprintf("Order %s (%s) confirmed by <@%s>.", order.OrderID, svc.Label, ev.ActorID)
		if err := e.collab.SendMessage(ctx, e.cfg.StaffChannelID, staffNote); err != nil {
			log.Printf("engine: staff notice for %s: %v", order.OrderID, err)
		}
	}
	if order.ChannelID != "" {
		if err := e.collab.SendMessage(ctx, order.ChannelID, e.paymentMenu()); err != nil {
			log.Printf("engine: payment menu for %s: %v", order.OrderID, err)
		}
	}

	e.recordTransition(ctx, order.OrderID, string(model.StatusPending), string(model.StatusConfirmed), ev.ActorID)

	return Result{Message: "Order confirmed successfully.", Order: updated}, nil
}

// handlePaymentSelected 只落 payment_method，状态不变。
func (e *Engine) handlePaymentSelected(ctx context.Context, ev PaymentSelected) (Result, error) {
	order, err := e.mustGetOrder(ctx, ev.OrderID)
	if err != nil {
		return Result{}, err
	}

	method, ok := e.cfg.PaymentByValue(ev.Method)
	if !ok {
		return Result{}, NewValidationError("unknown payment method %q", ev.Method)
	}
	if order.Status != model.StatusConfirmed {
		return Result{}, NewValidationError("payment method can only be set on a confirmed order (status is %s)", order.Status)
	}

	if err := e.repo.UpdateOrder(ctx, order.OrderID, map[string]any{"payment_method": method.Value}); err != nil {
		return Result{}, err
	}
	order.PaymentMethod = method.Value

	if order.ChannelID != "" {
		instructions := fmt.Sprintf("Payment method: %s. %s", method.Label, method.Info)
		if err := e.collab.SendMessage(ctx, order.ChannelID, instructions); err != nil {
			log.Printf("engine: payment instructions for %s: %v", order.OrderID, err)
		}
	}

	// 快照回调 fire-and-forget，失败只记日志
	e.webhook.SendSnapshot(order)

	return Result{Message: fmt.Sprintf("Payment method selected: %s", method.Label), Order: order}, nil
}

// handleStaffCancelled confirmed -> cancelled（staff 专属）。
func (e *Engine) handleStaffCancelled(ctx context.Context, ev StaffCancelled) (Result, error) {
	order, err := e.mustGetOrder(ctx, ev.OrderID)
	if err != nil {
		return Result{}, err
	}
	if err := e.requireStaff(ctx, ev.ActorID); err != nil {
		return Result{}, err
	}
	if !model.CanTransition(order.Status, model.StatusCancelled) {
		return e.afterLostRace(ctx, order.OrderID, model.StatusCancelled, "Order already cancelled.")
	}

	applied, err := e.repo.CASUpdateStatus(ctx, order.OrderID, model.StatusConfirmed,
		map[string]any{"status": model.StatusCancelled})
	if err != nil {
		return Result{}, err
	}
	if !applied {
		return e.afterLostRace(ctx, order.OrderID, model.StatusCancelled, "Order already cancelled.")
	}

	if err := e.sched.Cancel(ctx, order.OrderID, model.ActionRevokeAccess); err != nil {
		log.Printf("engine: cancel revoke for %s: %v", order.OrderID, err)
	}
	e.scheduleChannelDelete(ctx, order)

	notice := fmt.Sprintf("Order cancelled. Channel will be deleted in %d seconds.", int(e.cfg.TicketDeleteDelay.Seconds()))
	if order.ChannelID != "" {
		if err := e.collab.SendMessage(ctx, order.ChannelID, notice); err != nil {
			log.Printf("engine: cancel notice for %s: %v", order.OrderID, err)
		}
	}

	e.recordTransition(ctx, order.OrderID, string(model.StatusConfirmed), string(model.StatusCancelled), ev.ActorID)

	return Result{Message: notice}, nil
}

// handleStaffCompleted confirmed -> completed（staff 专属）。
// 副作用：归档到已完成分组（容量满按月轮转）、延迟收回权限并邀评。
func (e *Engine) handleStaffCompleted(ctx context.Context, ev StaffCompleted) (Result, error) {
	order, err := e.mustGetOrder(ctx, ev.OrderID)
	if err != nil {
		return Result{}, err
	}
	if err := e.requireStaff(ctx, ev.ActorID); err != nil {
		return Result{}, err
	}
	if !model.CanTransition(order.Status, model.StatusCompleted) {
		return e.afterLostRace(ctx, order.OrderID, model.StatusCompleted, "Order already marked as completed.")
	}

	applied, err := e.repo.CASUpdateStatus(ctx, order.OrderID, model.StatusConfirmed,
		map[string]any{
			"status":       model.StatusCompleted,
			"completed_at": e.now(), // 仓储映射层会统一重算，这里只是占位触发
		})
	if err != nil {
		return Result{}, err
	}
	if !applied {
		// 重复点击「完成」：状态已是 completed 时按幂等成功返回，
		// 不再挪频道、不再重复安排收权动作
		return e.afterLostRace(ctx, order.OrderID, model.StatusCompleted, "Order already marked as completed.")
	}

	if order.ChannelID != "" {
		if err := e.archiveCompletedChannel(ctx, order.ChannelID); err != nil {
			log.Printf("engine: archive channel for %s: %v", order.OrderID, err)
		}
	}

	if _, err := e.sched.Schedule(ctx, model.ActionRevokeAccess, order.OrderID, map[string]string{
		"channel_id": order.ChannelID,
		"user_id":    order.UserID,
	}, e.cfg.RevokeDelay); err != nil {
		log.Printf("engine: schedule revoke for %s: %v", order.OrderID, err)
	}

	e.recordTransition(ctx, order.OrderID, string(model.StatusConfirmed), string(model.StatusCompleted), ev.ActorID)

	return Result{Message: "Order marked as completed."}, nil
}

/* ========== 共享守卫与副作用 ========== */

func (e *Engine) mustGetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if orderID == "" {
		return nil, ErrOrderNotFound
	}
	order, found, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// isStaff 角色本身不存在或查询失败都按「不是 staff」处理，不往外抛。
func (e *Engine) isStaff(ctx context.Context, userID string) (bool, error) {
	ok, err := e.collab.HasRole(ctx, userID, e.cfg.StaffRoleName)
	if err != nil {
		log.Printf("engine: staff role check for %s: %v", userID, err)
		return false, nil
	}
	return ok, nil
}

func (e *Engine) requireStaff(ctx context.Context, userID string) error {
	ok, _ := e.isStaff(ctx, userID)
	if !ok {
		return fmt.Errorf("%w: staff role required", ErrPermissionDenied)
	}
	return nil
}

// afterLostRace CAS 输了之后的收尾：订单已在目标状态 → 幂等成功；
// 否则说明另一条迁移抢先走向了别处，按校验失败回报。
func (e *Engine) afterLostRace(ctx context.Context, orderID string, want model.Status, msg string) (Result, error) {
	current, found, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, ErrOrderNotFound
	}
	if current.Status == want {
		return Result{Message: msg, Order: current}, nil
	}
	if current.Status.Terminal() {
		return Result{}, NewValidationError("order %s is already %s and cannot change", orderID, current.Status)
	}
	return Result{}, NewValidationError("order %s is %s, transition not allowed", orderID, current.Status)
}

func (e *Engine) scheduleChannelDelete(ctx context.Context, order *model.Order) {
	if order.ChannelID == "" {
		return
	}
	if _, err := e.sched.Schedule(ctx, model.ActionDeleteChannel, order.OrderID, map[string]string{
		"channel_id": order.ChannelID,
	}, e.cfg.TicketDeleteDelay); err != nil {
		log.Printf("engine: schedule channel delete for %s: %v", order.OrderID, err)
	}
}

func (e *Engine) ensureCategory(ctx context.Context, name string) (string, error) {
	ref, ok, err := e.collab.FindCategory(ctx, name)
	if err != nil {
		return "", platform.WrapExternal("find category", err)
	}
	if ok {
		return ref, nil
	}
	ref, err = e.collab.CreateCategory(ctx, name)
	if err != nil {
		return "", platform.WrapExternal("create category", err)
	}
	return ref, nil
}

func (e *Engine) ticketOverwrites(userID string) []platform.PermissionOverwrite {
	return []platform.PermissionOverwrite{
		{
			Principal: platform.Principal{Kind: platform.PrincipalEveryone},
			Deny:      []platform.Permission{platform.PermViewChannel},
		},
		{
			Principal: platform.Principal{Kind: platform.PrincipalUser, ID: userID},
			Allow: []platform.Permission{
				platform.PermViewChannel,
				platform.PermSendMessages,
				platform.PermReadMessageHistory,
			},
		},
		{
			Principal: platform.Principal{Kind: platform.PrincipalRole, ID: e.cfg.StaffRoleName},
			Allow: []platform.Permission{
				platform.PermViewChannel,
				platform.PermSendMessages,
				platform.PermReadMessageHistory,
				platform.PermManageMessages,
				platform.PermManageChannels,
			},
		},
	}
}

func (e *Engine) paymentMenu() string {
	var b strings.Builder
	b.WriteString("Order confirmed! Please select a payment method: ")
	for i, m := range e.cfg.PaymentMethods {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(m.Label)
	}
	return b.String()
}

// recordTransition 审计 best-effort，失败只记日志。
func (e *Engine) recordTransition(ctx context.Context, orderID, from, to, actor string) {
	if e.audit == nil {
		return
	}
	msg := queue.TransitionMessage{
		EventID:    uuid.New().String(),
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor,
		OccurredAt: e.now().UnixMilli(),
	}
	if err := e.audit.Append(ctx, msg); err != nil {
		log.Printf("engine: audit append for %s: %v", orderID, err)
	}
}

// ticketChannelName 形如 boss-kills-MBX2K1T9（服务名 + 订单号时间段）。
func ticketChannelName(service, orderID string) string {
	name := strings.ReplaceAll(service, "_", "-")
	parts := strings.Split(orderID, "-")
	if len(parts) >= 2 {
		name += "-" + strings.ToLower(parts[1])
	}
	return name
}
