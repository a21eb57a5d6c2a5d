package store

import (
	"errors"
	"path/filepath"
	"testing"

	"ticket_desk/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func newTestLocal(t *testing.T) *LocalStore {
	t.Helper()
	s := NewLocalStore(newTestDB(t))
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

func TestLocalCreateGet(t *testing.T) {
	s := newTestLocal(t)

	o := &model.Order{OrderID: "ORD-A-11111", UserID: "U1", ServiceType: "boss_kills", Status: model.StatusPending}
	if err := s.Create(o); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, found, err := s.Get("ORD-A-11111")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.UserID != "U1" || got.ServiceType != "boss_kills" || got.Status != model.StatusPending {
		t.Errorf("unexpected row: %+v", got)
	}

	_, found, err = s.Get("ORD-MISSING")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if found {
		t.Errorf("get missing: found=true, want false")
	}
}

func TestLocalCreateDuplicateRejected(t *testing.T) {
	s := newTestLocal(t)

	if err := s.Create(&model.Order{OrderID: "ORD-DUP-11111", UserID: "U1", ServiceType: "gearing", Status: model.StatusPending}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := s.Create(&model.Order{OrderID: "ORD-DUP-11111", UserID: "U2", ServiceType: "gearing", Status: model.StatusPending})
	if !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("duplicate create: err=%v, want ErrDuplicateOrder", err)
	}
}

func TestLocalUpdate(t *testing.T) {
	s := newTestLocal(t)
	mustCreate(t, s, "ORD-UPD-11111", model.StatusPending)

	affected, err := s.Update("ORD-UPD-11111", map[string]any{"battle_tag": "Player#1234", "kills_amount": "10"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if affected != 1 {
		t.Fatalf("update affected = %d, want 1", affected)
	}

	got, _, _ := s.Get("ORD-UPD-11111")
	if got.BattleTag != "Player#1234" || got.KillsAmount != "10" {
		t.Errorf("fields not persisted: %+v", got)
	}

	affected, err = s.Update("ORD-MISSING", map[string]any{"battle_tag": "x"})
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if affected != 0 {
		t.Errorf("update missing affected = %d, want 0", affected)
	}
}

// 状态 CAS：期望状态不匹配时不落盘，affected=0。
func TestLocalUpdateWhereStatus(t *testing.T) {
	s := newTestLocal(t)
	mustCreate(t, s, "ORD-CAS-11111", model.StatusPending)

	affected, err := s.UpdateWhereStatus("ORD-CAS-11111", model.StatusPending, map[string]any{"status": string(model.StatusConfirmed)})
	if err != nil || affected != 1 {
		t.Fatalf("cas pending->confirmed: affected=%d err=%v", affected, err)
	}

	// 第二次同样的 CAS：状态已不是 pending，必须输
	affected, err = s.UpdateWhereStatus("ORD-CAS-11111", model.StatusPending, map[string]any{"status": string(model.StatusCancelled)})
	if err != nil {
		t.Fatalf("second cas: %v", err)
	}
	if affected != 0 {
		t.Fatalf("second cas affected = %d, want 0 (first transition wins)", affected)
	}

	got, _, _ := s.Get("ORD-CAS-11111")
	if got.Status != model.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", got.Status)
	}
}

func TestLocalDelete(t *testing.T) {
	s := newTestLocal(t)
	mustCreate(t, s, "ORD-DEL-11111", model.StatusPending)

	affected, err := s.Delete("ORD-DEL-11111")
	if err != nil || affected != 1 {
		t.Fatalf("delete: affected=%d err=%v", affected, err)
	}
	_, found, err := s.Get("ORD-DEL-11111")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if found {
		t.Errorf("order still visible after delete")
	}

	affected, _ = s.Delete("ORD-DEL-11111")
	if affected != 0 {
		t.Errorf("second delete affected = %d, want 0", affected)
	}
}

func TestLocalListAndCount(t *testing.T) {
	s := newTestLocal(t)
	mustCreate(t, s, "ORD-L1-11111", model.StatusPending)
	mustCreate(t, s, "ORD-L2-11111", model.StatusPending)
	mustCreate(t, s, "ORD-L3-11111", model.StatusConfirmed)

	n, err := s.CountByStatus(model.StatusPending)
	if err != nil || n != 2 {
		t.Fatalf("count pending = %d err=%v, want 2", n, err)
	}
	n, err = s.CountByStatus("")
	if err != nil || n != 3 {
		t.Fatalf("count all = %d err=%v, want 3", n, err)
	}

	rows, err := s.ListByStatus(model.StatusPending, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("list pending returned %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if r.Status != model.StatusPending {
			t.Errorf("row %s has status %s", r.OrderID, r.Status)
		}
	}

	rows, err = s.ListByStatus("", 0, 2)
	if err != nil || len(rows) != 2 {
		t.Fatalf("list limit: rows=%d err=%v, want 2", len(rows), err)
	}
}

// 旧库缺明细列时 EnsureSchema 必须补齐，且不碰已有行。
func TestEnsureSchemaAddsMissingColumns(t *testing.T) {
	db := newTestDB(t)

	// 模拟早期版本的表：没有 hours_amount / mats_amount
	err := db.Exec(`CREATE TABLE orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME, updated_at DATETIME, deleted_at DATETIME,
		order_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		service_type TEXT NOT NULL,
		channel_id TEXT,
		battle_tag TEXT,
		status TEXT NOT NULL DEFAULT 'pending'
	)`).Error
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if err := db.Exec(`INSERT INTO orders (order_id, user_id, service_type, status) VALUES ('ORD-OLD-11111', 'U1', 'gearing', 'pending')`).Error; err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	s := NewLocalStore(db)
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("ensure schema on legacy db: %v", err)
	}

	for _, col := range model.DetailColumns() {
		if !db.Migrator().HasColumn(&model.Order{}, col) {
			t.Errorf("column %q missing after EnsureSchema", col)
		}
	}

	got, found, err := s.Get("ORD-OLD-11111")
	if err != nil || !found {
		t.Fatalf("legacy row lost: found=%v err=%v", found, err)
	}
	if got.UserID != "U1" || got.Status != model.StatusPending {
		t.Errorf("legacy row mutated: %+v", got)
	}

	// 新列立即可写
	if _, err := s.Update("ORD-OLD-11111", map[string]any{"hours_amount": "3"}); err != nil {
		t.Fatalf("update new column: %v", err)
	}
}

func mustCreate(t *testing.T, s *LocalStore, orderID string, status model.Status) {
	t.Helper()
	err := s.Create(&model.Order{OrderID: orderID, UserID: "U1", ServiceType: "boss_kills", Status: status})
	if err != nil {
		t.Fatalf("create %s: %v", orderID, err)
	}
}
