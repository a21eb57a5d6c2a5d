package store

import (
	"log"
	"strings"

	"ticket_desk/internal/model"

	"gorm.io/gorm"
)

// LocalStore 本地嵌入式后端（SQLite via gorm）。
// 远端不可达时整个系统靠它继续工作，所以写失败必须显式上抛。
type LocalStore struct {
	db *gorm.DB
}

func NewLocalStore(db *gorm.DB) *LocalStore {
	return &LocalStore{db: db}
}

// DB 暴露底层句柄给同样落在本地库的组件（审计消费者、调度器）。
func (s *LocalStore) DB() *gorm.DB { return s.db }

// EnsureSchema 启动时对齐规范列集合：
// AutoMigrate 建表，再对明细列做一轮显式的缺列补齐。
// 只加列，从不删列改列，已有行保持原样。
func (s *LocalStore) EnsureSchema() error {
	if err := s.db.AutoMigrate(
		&model.Order{},
		&model.OrderTransition{},
		&model.DeferredAction{},
	); err != nil {
		return wrapStorage("local", "migrate", err)
	}

	// 明细字段历史上是逐个追加的（hours_amount 等），
	// 这里显式兜底，防止旧库缺列导致更新报错。
	m := s.db.Migrator()
	for _, col := range model.DetailColumns() {
		if m.HasColumn(&model.Order{}, col) {
			continue
		}
		if err := m.AddColumn(&model.Order{}, col); err != nil {
			return wrapStorage("local", "add column "+col, err)
		}
		log.Printf("local: column %q added", col)
	}
	return nil
}

// Create 插入新订单，订单号唯一约束冲突时拒绝。
func (s *LocalStore) Create(o *model.Order) error {
	if err := s.db.Create(o).Error; err != nil {
		if errorsLikeUnique(err) {
			return wrapStorage("local", "create", ErrDuplicateOrder)
		}
		return wrapStorage("local", "create", err)
	}
	return nil
}

// Get 按订单号查询。found=false 表示不存在。
func (s *LocalStore) Get(orderID string) (*model.Order, bool, error) {
	var o model.Order
	err := s.db.Where("order_id = ?", orderID).First(&o).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, wrapStorage("local", "get", err)
	}
	return &o, true, nil
}

// Update 按订单号部分更新，fields 的键是规范列名。
// 返回受影响行数；0 表示订单不存在。
func (s *LocalStore) Update(orderID string, fields map[string]any) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	res := s.db.Model(&model.Order{}).Where("order_id = ?", orderID).Updates(fields)
	if res.Error != nil {
		return 0, wrapStorage("local", "update", res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateWhereStatus 状态 CAS 更新：只有当前状态等于 expected 才落盘。
// 并发迁移冲突时输家拿到 affected=0，先到先得。
func (s *LocalStore) UpdateWhereStatus(orderID string, expected model.Status, fields map[string]any) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	res := s.db.Model(&model.Order{}).
		Where("order_id = ? AND status = ?", orderID, expected).
		Updates(fields)
	if res.Error != nil {
		return 0, wrapStorage("local", "cas update", res.Error)
	}
	return res.RowsAffected, nil
}

// Delete 删除订单记录（软删除），返回受影响行数。
func (s *LocalStore) Delete(orderID string) (int64, error) {
	res := s.db.Where("order_id = ?", orderID).Delete(&model.Order{})
	if res.Error != nil {
		return 0, wrapStorage("local", "delete", res.Error)
	}
	return res.RowsAffected, nil
}

// ListByStatus 按状态分页列出订单，创建时间倒序。
func (s *LocalStore) ListByStatus(status model.Status, offset, limit int) ([]model.Order, error) {
	var out []model.Order
	q := s.db.Model(&model.Order{}).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, wrapStorage("local", "list", err)
	}
	return out, nil
}

// CountByStatus 统计某状态下的订单数，status 为空统计全部。
func (s *LocalStore) CountByStatus(status model.Status) (int64, error) {
	var n int64
	q := s.db.Model(&model.Order{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, wrapStorage("local", "count", err)
	}
	return n, nil
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
