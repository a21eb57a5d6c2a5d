package model

import (
	"time"

	"gorm.io/gorm"
)

// Status 订单生命周期状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled" // 终态
	StatusCompleted Status = "completed" // 终态
)

// legalTransitions 定义状态机允许的迁移边。
// pending 是唯一初始状态，cancelled / completed 为终态。
var legalTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition 判断 from -> to 是否为合法迁移。
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal 终态订单不再接受任何迁移。
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Order 工单订单。列名即仓储层的规范字段名（snake_case），
// 远端文档库的 camelCase 字段由 store 的映射表负责翻译。
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OrderID     string `gorm:"size:64;uniqueIndex;not null" json:"order_id"`
	UserID      string `gorm:"size:64;not null;index" json:"user_id"`
	ServiceType string `gorm:"size:32;not null" json:"service_type"`
	ChannelID   string `gorm:"size:64" json:"channel_id"`

	// 明细字段按对话进度渐进填充，全部可空。
	BattleTag          string `gorm:"size:64" json:"battle_tag"`
	PilotType          string `gorm:"size:32" json:"pilot_type"`
	ExpressType        string `gorm:"size:32" json:"express_type"`
	FromLevel          string `gorm:"size:16" json:"from_level"`
	ToLevel            string `gorm:"size:16" json:"to_level"`
	KillsAmount        string `gorm:"size:16" json:"kills_amount"`
	MatsAmount         string `gorm:"size:16" json:"mats_amount"`
	CustomOrderDetails string `gorm:"size:1024" json:"custom_order_details"`
	HoursAmount        string `gorm:"size:16" json:"hours_amount"`

	PaymentMethod string `gorm:"size:32" json:"payment_method"`

	Status      Status     `gorm:"size:16;not null;default:'pending';index" json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (Order) TableName() string { return "orders" }

// DetailField 读取规范字段名对应的明细值，用于必填校验。
func (o *Order) DetailField(name string) string {
	switch name {
	case "battle_tag":
		return o.BattleTag
	case "pilot_type":
		return o.PilotType
	case "express_type":
		return o.ExpressType
	case "from_level":
		return o.FromLevel
	case "to_level":
		return o.ToLevel
	case "kills_amount":
		return o.KillsAmount
	case "mats_amount":
		return o.MatsAmount
	case "custom_order_details":
		return o.CustomOrderDetails
	case "hours_amount":
		return o.HoursAmount
	case "payment_method":
		return o.PaymentMethod
	default:
		return ""
	}
}

// DetailColumns 明细字段的规范列集合，store 的加列迁移和表单校验共用。
func DetailColumns() []string {
	return []string{
		"battle_tag",
		"pilot_type",
		"express_type",
		"from_level",
		"to_level",
		"kills_amount",
		"mats_amount",
		"custom_order_details",
		"hours_amount",
	}
}
