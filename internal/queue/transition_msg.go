package queue

import "fmt"

// TransitionMessage 是写入 Kafka 的订单状态迁移事件。
type TransitionMessage struct {
	EventID    string `json:"event_id"`
	OrderID    string `json:"order_id"`
	FromStatus string `json:"from_status"` // 创建事件为空
	ToStatus   string `json:"to_status"`
	ActorID    string `json:"actor_id"`
	OccurredAt int64  `json:"occurred_at"` // unix 毫秒
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m TransitionMessage) Validate() error {
	if m.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if m.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if m.ToStatus == "" {
		return fmt.Errorf("to_status is required")
	}
	if m.OccurredAt <= 0 {
		return fmt.Errorf("occurred_at must be > 0")
	}
	return nil
}
