package queue

import (
	"context"
	"fmt"

	rd "github.com/redis/go-redis/v9"
)

// Outbox 把迁移事件先写 Redis Stream，由 Relay 异步转 Kafka。
// 审计链路整体 best-effort：入流失败由调用方记日志，绝不阻塞用户路径。
type Outbox struct {
	rdb    *rd.Client
	stream string
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream}
}

// Append 追加一条迁移事件。
func (o *Outbox) Append(ctx context.Context, msg TransitionMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("outbox: %w", err)
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: map[string]any{
			"event_id":    msg.EventID,
			"order_id":    msg.OrderID,
			"from_status": msg.FromStatus,
			"to_status":   msg.ToStatus,
			"actor_id":    msg.ActorID,
			"occurred_at": msg.OccurredAt,
		},
	}).Err()
}
