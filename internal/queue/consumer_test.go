package queue

import (
	"path/filepath"
	"testing"

	"ticket_desk/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 同一 event_id 的消息重复投递（at-least-once）时只落一条流水。
func TestConsumerPersistIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.OrderTransition{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	c := &Consumer{db: db}
	msg := TransitionMessage{
		EventID:    "evt-1",
		OrderID:    "ORD-A-11111",
		FromStatus: "pending",
		ToStatus:   "confirmed",
		ActorID:    "U1",
		OccurredAt: 1700000000000,
	}

	for i := 0; i < 3; i++ {
		if err := c.persist(msg); err != nil {
			t.Fatalf("persist attempt %d: %v", i, err)
		}
	}

	var n int64
	db.Model(&model.OrderTransition{}).Where("event_id = ?", "evt-1").Count(&n)
	if n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}

	// 不同 event_id 正常追加
	msg.EventID = "evt-2"
	msg.FromStatus = "confirmed"
	msg.ToStatus = "completed"
	if err := c.persist(msg); err != nil {
		t.Fatalf("persist evt-2: %v", err)
	}
	db.Model(&model.OrderTransition{}).Where("order_id = ?", "ORD-A-11111").Count(&n)
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
}
