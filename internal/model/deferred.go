package model

import (
	"time"

	"gorm.io/gorm"
)

// 延迟动作类型。
const (
	ActionDeleteChannel = "delete_channel"
	ActionRevokeAccess  = "revoke_access"
)

// DeferredAction 持久化的延迟动作，进程重启后可按 due_at 重放未执行的行。
// ExecutedAt / CancelledAt 二者最多一个非空；执行前用 CAS 抢占，
// 保证重放和定时器并发触发时动作只跑一次。
type DeferredAction struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ActionID string `gorm:"size:64;uniqueIndex;not null" json:"action_id"`
	OrderID  string `gorm:"size:64;not null;index" json:"order_id"`
	Kind     string `gorm:"size:32;not null;index" json:"kind"`
	// Payload 动作参数的 JSON 快照（频道、用户等），执行时反序列化。
	Payload     string     `gorm:"size:1024" json:"payload"`
	DueAt       time.Time  `gorm:"not null;index" json:"due_at"`
	ExecutedAt  *time.Time `json:"executed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
}

func (DeferredAction) TableName() string { return "deferred_actions" }
