package queue

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"ticket_desk/internal/model"

	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

// Consumer 把 Kafka 上的迁移事件落成 order_transitions 审计流水。
type Consumer struct {
	r  *kafka.Reader
	db *gorm.DB
}

func NewConsumer(brokers []string, topic, groupID string, db *gorm.DB) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		db: db,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		var msg TransitionMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			log.Printf("consumer unmarshal: %v", err)
			continue
		}
		if err := msg.Validate(); err != nil {
			log.Printf("consumer drop invalid message: %v", err)
			continue
		}

		if err := c.persist(msg); err != nil {
			log.Printf("consumer db create: %v", err)
		}
	}
}

// persist 落一条审计流水。重复消息导致 UNIQUE 冲突时当作成功（幂等）。
func (c *Consumer) persist(msg TransitionMessage) error {
	row := &model.OrderTransition{
		EventID:    msg.EventID,
		OrderID:    msg.OrderID,
		FromStatus: msg.FromStatus,
		ToStatus:   msg.ToStatus,
		ActorID:    msg.ActorID,
		OccurredAt: time.UnixMilli(msg.OccurredAt),
	}
	if err := c.db.Create(row).Error; err != nil {
		if errorsLikeUnique(err) {
			return nil
		}
		return err
	}
	return nil
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
