package store

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"ticket_desk/internal/model"
)

// failingRemote 模拟远端整体不可达，所有调用都报错。
type failingRemote struct{}

var errRemoteDown = errors.New("remote store unreachable")

func (failingRemote) Create(context.Context, string, map[string]any) error { return errRemoteDown }
func (failingRemote) Get(context.Context, string) (map[string]string, bool, error) {
	return nil, false, errRemoteDown
}
func (failingRemote) Update(context.Context, string, map[string]any) error { return errRemoteDown }
func (failingRemote) CASStatus(context.Context, string, string, map[string]any) (bool, error) {
	return false, errRemoteDown
}
func (failingRemote) Delete(context.Context, string) error { return errRemoteDown }

// memRemote 内存版远端文档库，录制每次写调用。
type memRemote struct {
	docs        map[string]map[string]string
	updateCalls []map[string]any
	casCalls    int
}

func newMemRemote() *memRemote {
	return &memRemote{docs: map[string]map[string]string{}}
}

func (m *memRemote) set(orderID string, fields map[string]any) {
	doc := m.docs[orderID]
	if doc == nil {
		doc = map[string]string{}
		m.docs[orderID] = doc
	}
	for k, v := range fields {
		switch x := v.(type) {
		case string:
			doc[k] = x
		case int64:
			doc[k] = strconv.FormatInt(x, 10)
		default:
			doc[k] = ""
		}
	}
}

func (m *memRemote) Create(_ context.Context, orderID string, doc map[string]any) error {
	if _, ok := m.docs[orderID]; ok {
		return errors.New("order already exists")
	}
	m.set(orderID, doc)
	return nil
}

func (m *memRemote) Get(_ context.Context, orderID string) (map[string]string, bool, error) {
	doc, ok := m.docs[orderID]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, true, nil
}

func (m *memRemote) Update(_ context.Context, orderID string, fields map[string]any) error {
	m.updateCalls = append(m.updateCalls, fields)
	if _, ok := m.docs[orderID]; !ok {
		return errors.New("order missing")
	}
	m.set(orderID, fields)
	return nil
}

func (m *memRemote) CASStatus(_ context.Context, orderID, expected string, fields map[string]any) (bool, error) {
	m.casCalls++
	doc, ok := m.docs[orderID]
	if !ok {
		return false, errors.New("order missing")
	}
	if doc["status"] != expected {
		return false, nil
	}
	m.set(orderID, fields)
	return true, nil
}

func (m *memRemote) Delete(_ context.Context, orderID string) error {
	delete(m.docs, orderID)
	return nil
}

func newTestRepo(t *testing.T, remote RemoteAPI) *Repository {
	t.Helper()
	return NewRepository(remote, newTestLocal(t))
}

func TestRepositoryCreateMirrorsRemote(t *testing.T) {
	remote := newMemRemote()
	repo := newTestRepo(t, remote)

	o, err := repo.CreateOrder(context.Background(), "U1", "boss_kills", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.OrderID == "" || o.Status != model.StatusPending {
		t.Fatalf("unexpected order: %+v", o)
	}

	doc, ok := remote.docs[o.OrderID]
	if !ok {
		t.Fatal("remote mirror missing after create")
	}
	if doc["status"] != "pending" || doc["userId"] != "U1" || doc["serviceType"] != "boss_kills" {
		t.Errorf("remote doc = %v", doc)
	}
	if _, found, _ := repo.Local().Get(o.OrderID); !found {
		t.Error("local copy missing after create")
	}
}

// 远端优先读：远端有文档时以远端为准。
func TestRepositoryGetPrefersRemote(t *testing.T) {
	remote := newMemRemote()
	repo := newTestRepo(t, remote)

	o, err := repo.CreateOrder(context.Background(), "U1", "gearing", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// 只改远端，制造分叉
	remote.docs[o.OrderID]["battleTag"] = "RemoteOnly#1"

	got, found, err := repo.GetOrder(context.Background(), o.OrderID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.BattleTag != "RemoteOnly#1" {
		t.Errorf("battle_tag = %q, want remote value", got.BattleTag)
	}
}

// 远端读失败必须静默回退本地，调用方拿到本地数据而不是错误。
func TestRepositoryGetFallsBackOnRemoteError(t *testing.T) {
	repo := newTestRepo(t, failingRemote{})

	o, err := repo.CreateOrder(context.Background(), "U1", "boss_kills", "chan-1")
	if err != nil {
		t.Fatalf("create with failing remote: %v", err)
	}

	got, found, err := repo.GetOrder(context.Background(), o.OrderID)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.OrderID != o.OrderID || got.ChannelID != "chan-1" {
		t.Errorf("local fallback row = %+v", got)
	}
}

// 远端写失败回退本地；之后的读也能看到本地的新值。
func TestRepositoryUpdateFallsBackOnRemoteError(t *testing.T) {
	repo := newTestRepo(t, failingRemote{})

	o, _ := repo.CreateOrder(context.Background(), "U1", "boss_kills", "")
	err := repo.UpdateOrder(context.Background(), o.OrderID, map[string]any{"battle_tag": "Player#1234"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _, _ := repo.GetOrder(context.Background(), o.OrderID)
	if got.BattleTag != "Player#1234" {
		t.Errorf("battle_tag = %q, want local fallback write visible", got.BattleTag)
	}
}

// 只含本地明细字段的更新映射不出任何远端字段：
// 绝不向远端发空载荷，直接写本地。
func TestRepositoryUpdateSkipsRemoteOnEmptyMapping(t *testing.T) {
	remote := newMemRemote()
	repo := newTestRepo(t, remote)

	o, _ := repo.CreateOrder(context.Background(), "U1", "powerleveling", "")
	err := repo.UpdateOrder(context.Background(), o.OrderID, map[string]any{
		"from_level": "1",
		"to_level":   "70",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(remote.updateCalls) != 0 {
		t.Fatalf("remote received %d update call(s), want 0 for local-only fields", len(remote.updateCalls))
	}
	local, _, _ := repo.Local().Get(o.OrderID)
	if local.FromLevel != "1" || local.ToLevel != "70" {
		t.Errorf("local detail fields not written: %+v", local)
	}
}

func TestRepositoryUpdateMissingOrder(t *testing.T) {
	repo := newTestRepo(t, nil)
	err := repo.UpdateOrder(context.Background(), "ORD-MISSING", map[string]any{"battle_tag": "x"})
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

// 状态 CAS：远端赢家把字段镜像到本地；输家拿 applied=false。
func TestRepositoryCASUpdateStatus(t *testing.T) {
	remote := newMemRemote()
	repo := newTestRepo(t, remote)

	o, _ := repo.CreateOrder(context.Background(), "U1", "boss_kills", "")

	applied, err := repo.CASUpdateStatus(context.Background(), o.OrderID, model.StatusPending,
		map[string]any{"status": model.StatusConfirmed, "kills_amount": "10"})
	if err != nil || !applied {
		t.Fatalf("first cas: applied=%v err=%v", applied, err)
	}
	if remote.docs[o.OrderID]["status"] != "confirmed" {
		t.Errorf("remote status = %q", remote.docs[o.OrderID]["status"])
	}
	local, _, _ := repo.Local().Get(o.OrderID)
	if local.Status != model.StatusConfirmed || local.KillsAmount != "10" {
		t.Errorf("local mirror after cas: %+v", local)
	}

	applied, err = repo.CASUpdateStatus(context.Background(), o.OrderID, model.StatusPending,
		map[string]any{"status": model.StatusCancelled})
	if err != nil {
		t.Fatalf("second cas: %v", err)
	}
	if applied {
		t.Fatal("second cas applied, want first transition to win")
	}
}

// 远端 CAS 报错时回退本地 CAS，语义保持一致。
func TestRepositoryCASFallsBackOnRemoteError(t *testing.T) {
	repo := newTestRepo(t, failingRemote{})

	o, _ := repo.CreateOrder(context.Background(), "U1", "boss_kills", "")
	applied, err := repo.CASUpdateStatus(context.Background(), o.OrderID, model.StatusPending,
		map[string]any{"status": model.StatusConfirmed})
	if err != nil || !applied {
		t.Fatalf("fallback cas: applied=%v err=%v", applied, err)
	}
	local, _, _ := repo.Local().Get(o.OrderID)
	if local.Status != model.StatusConfirmed {
		t.Errorf("local status = %s", local.Status)
	}
}

// 远端整段不可用时完整会话（创建 -> 更新 -> CAS -> 删除）照常工作。
func TestRepositoryFullSessionWithRemoteDown(t *testing.T) {
	repo := newTestRepo(t, failingRemote{})
	ctx := context.Background()

	o, err := repo.CreateOrder(ctx, "U1", "boss_kills", "chan-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdateOrder(ctx, o.OrderID, map[string]any{"battle_tag": "P#1", "kills_amount": "5"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	applied, err := repo.CASUpdateStatus(ctx, o.OrderID, model.StatusPending, map[string]any{"status": model.StatusConfirmed})
	if err != nil || !applied {
		t.Fatalf("cas: applied=%v err=%v", applied, err)
	}
	applied, err = repo.CASUpdateStatus(ctx, o.OrderID, model.StatusConfirmed, map[string]any{
		"status":       model.StatusCompleted,
		"completed_at": time.Now(),
	})
	if err != nil || !applied {
		t.Fatalf("complete cas: applied=%v err=%v", applied, err)
	}
	got, _, _ := repo.GetOrder(ctx, o.OrderID)
	if got.Status != model.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("completed order: %+v", got)
	}

	if err := repo.DeleteOrder(ctx, o.OrderID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := repo.GetOrder(ctx, o.OrderID); found {
		t.Error("order still visible after delete")
	}
}

func TestRepositoryListOrders(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.CreateOrder(ctx, "U1", "gearing", ""); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	rows, total, err := repo.ListOrders(model.StatusPending, 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(rows) != 2 {
		t.Errorf("page 0 rows = %d, want 2", len(rows))
	}

	rows, _, err = repo.ListOrders(model.StatusPending, 1, 2)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("page 1 rows = %d, want 1", len(rows))
	}
}
