package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"ticket_desk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActionFunc 延迟动作的执行体。实现必须幂等且防御式：
// 目标频道/用户已经不在了就记日志返回 nil，绝不把错误抛成崩溃。
type ActionFunc func(ctx context.Context, orderID string, payload map[string]string) error

const fireTimeout = 30 * time.Second

// Scheduler 延迟动作调度器：
// 动作先落 deferred_actions 行（due_at/kind/payload），再挂进程内定时器；
// 重启后 Replay 按行重建定时器，到点执行前用 CAS 抢占 executed_at，
// 定时器触发和重放并发时动作也只会跑一次。
type Scheduler struct {
	db    *gorm.DB
	clock Clock

	mu       sync.Mutex
	handlers map[string]ActionFunc
	timers   map[string]Timer            // actionID -> timer
	byOrder  map[string]map[string]string // orderID -> actionID -> kind
}

func New(db *gorm.DB, clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		db:       db,
		clock:    clock,
		handlers: map[string]ActionFunc{},
		timers:   map[string]Timer{},
		byOrder:  map[string]map[string]string{},
	}
}

// Register 注册某类动作的执行体，必须在 Schedule/Replay 之前完成。
func (s *Scheduler) Register(kind string, fn ActionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = fn
}

// Schedule 安排一个延迟动作并持久化，返回动作 ID。
func (s *Scheduler) Schedule(ctx context.Context, kind, orderID string, payload map[string]string, delay time.Duration) (string, error) {
	s.mu.Lock()
	_, known := s.handlers[kind]
	s.mu.Unlock()
	if !known {
		return "", fmt.Errorf("scheduler: unknown action kind %q", kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("scheduler: marshal payload: %w", err)
	}

	row := &model.DeferredAction{
		ActionID: uuid.New().String(),
		OrderID:  orderID,
		Kind:     kind,
		Payload:  string(raw),
		DueAt:    s.clock.Now().Add(delay),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", fmt.Errorf("scheduler: persist action: %w", err)
	}

	s.arm(row.ActionID, orderID, kind, delay)
	return row.ActionID, nil
}

// Cancel 取消某订单下指定类型（为空取消全部）的未执行动作。
// 后续状态迁移用它压掉已经失去意义的旧动作。
func (s *Scheduler) Cancel(ctx context.Context, orderID string, kinds ...string) error {
	now := s.clock.Now()
	q := s.db.WithContext(ctx).Model(&model.DeferredAction{}).
		Where("order_id = ? AND executed_at IS NULL AND cancelled_at IS NULL", orderID)
	if len(kinds) > 0 {
		q = q.Where("kind IN ?", kinds)
	}
	if err := q.Update("cancelled_at", now).Error; err != nil {
		return fmt.Errorf("scheduler: cancel actions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for actionID, kind := range s.byOrder[orderID] {
		if len(kinds) > 0 && !contains(kinds, kind) {
			continue
		}
		if t, ok := s.timers[actionID]; ok {
			t.Stop()
			delete(s.timers, actionID)
		}
		delete(s.byOrder[orderID], actionID)
	}
	return nil
}

// Replay 启动时重建所有未执行、未取消的动作；已过期的立即触发。
func (s *Scheduler) Replay(ctx context.Context) error {
	var rows []model.DeferredAction
	err := s.db.WithContext(ctx).
		Where("executed_at IS NULL AND cancelled_at IS NULL").
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("scheduler: load pending actions: %w", err)
	}

	now := s.clock.Now()
	for _, row := range rows {
		delay := row.DueAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		s.arm(row.ActionID, row.OrderID, row.Kind, delay)
	}
	if len(rows) > 0 {
		log.Printf("scheduler: replayed %d pending action(s)", len(rows))
	}
	return nil
}

// Stop 停掉全部进程内定时器（行保留，下次启动重放）。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.byOrder = map[string]map[string]string{}
}

func (s *Scheduler) arm(actionID, orderID, kind string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[actionID] = s.clock.AfterFunc(delay, func() { s.fire(actionID) })
	if s.byOrder[orderID] == nil {
		s.byOrder[orderID] = map[string]string{}
	}
	s.byOrder[orderID][actionID] = kind
}

// fire 到点执行：先 CAS 抢占 executed_at，抢不到说明已被
// 执行/取消，直接退出；动作本身的失败只记日志，永不传播。
func (s *Scheduler) fire(actionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&model.DeferredAction{}).
		Where("action_id = ? AND executed_at IS NULL AND cancelled_at IS NULL", actionID).
		Update("executed_at", now)
	if res.Error != nil {
		log.Printf("scheduler: claim action %s: %v", actionID, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		return // 已执行或已取消
	}

	var row model.DeferredAction
	if err := s.db.WithContext(ctx).Where("action_id = ?", actionID).First(&row).Error; err != nil {
		log.Printf("scheduler: load action %s: %v", actionID, err)
		return
	}

	s.mu.Lock()
	fn := s.handlers[row.Kind]
	delete(s.timers, actionID)
	if m := s.byOrder[row.OrderID]; m != nil {
		delete(m, actionID)
	}
	s.mu.Unlock()

	if fn == nil {
		log.Printf("scheduler: no handler for kind %q (action %s)", row.Kind, actionID)
		return
	}

	payload := map[string]string{}
	if row.Payload != "" {
		if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
			log.Printf("scheduler: bad payload for action %s: %v", actionID, err)
			return
		}
	}

	if err := fn(ctx, row.OrderID, payload); err != nil {
		log.Printf("scheduler: action %s kind=%s order=%s: %v", actionID, row.Kind, row.OrderID, err)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
