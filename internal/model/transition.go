package model

import (
	"time"

	"gorm.io/gorm"
)

// OrderTransition 订单状态迁移的历史记录（审计流水）。
// 由 queue 消费者落库，订单本体删除后流水仍保留，供事后分析。
type OrderTransition struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// EventID 全链路幂等主键，重复消费时靠唯一约束去重。
	EventID    string    `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	OrderID    string    `gorm:"size:64;not null;index" json:"order_id"`
	FromStatus string    `gorm:"size:16" json:"from_status"` // 创建事件为空
	ToStatus   string    `gorm:"size:16;not null" json:"to_status"`
	ActorID    string    `gorm:"size:64" json:"actor_id"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
}

func (OrderTransition) TableName() string { return "order_transitions" }
