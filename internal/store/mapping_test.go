package store

import (
	"strconv"
	"testing"
	"time"

	"ticket_desk/internal/model"
)

func TestMapToRemoteFieldsWhitelist(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	mapped := MapToRemoteFields(map[string]any{
		"battle_tag":   "Player#1234",
		"status":       model.StatusConfirmed,
		"from_level":   "1",  // 远端 schema 没有的明细字段
		"to_level":     "70", // 同上
		"kills_amount": "10", // 同上
	}, now)

	if got := mapped["battleTag"]; got != "Player#1234" {
		t.Errorf("battleTag = %v, want Player#1234", got)
	}
	if got := mapped["status"]; got != "confirmed" {
		t.Errorf("status = %v, want confirmed (plain string)", got)
	}
	for _, k := range []string{"from_level", "fromLevel", "to_level", "toLevel", "kills_amount", "killsAmount"} {
		if _, ok := mapped[k]; ok {
			t.Errorf("field %q leaked into remote payload", k)
		}
	}
	if len(mapped) != 2 {
		t.Errorf("mapped = %v, want exactly battleTag + status", mapped)
	}
}

// 本地明细字段映射不到任何远端字段时，写路径必须得到空载荷，
// 仓储层据此跳过远端调用。
func TestMapToRemoteFieldsLocalOnlyPayload(t *testing.T) {
	mapped := MapToRemoteFields(map[string]any{
		"from_level": "1",
		"to_level":   "70",
	}, time.Now())
	if len(mapped) != 0 {
		t.Fatalf("mapped = %v, want empty for local-only fields", mapped)
	}
}

// completed_at 一律由映射层重算，调用方传什么都不信。
func TestMapToRemoteFieldsRecomputesCompletedAt(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	stale := time.UnixMilli(1500000000000)
	mapped := MapToRemoteFields(map[string]any{"completed_at": stale}, now)

	got, ok := mapped["completedAt"].(int64)
	if !ok {
		t.Fatalf("completedAt missing or wrong type: %v", mapped["completedAt"])
	}
	if got != now.UnixMilli() {
		t.Errorf("completedAt = %d, want recomputed %d", got, now.UnixMilli())
	}
}

func TestMapToCanonicalFieldsPassThrough(t *testing.T) {
	mapped := MapToCanonicalFields(map[string]any{
		"battleTag":          "Player#1234",
		"orderId":            "ORD-X-Y",
		"mystery":            "kept as-is",
		"channelId":          "chan-1",
		"customOrderDetails": "notes",
	})
	want := map[string]any{
		"battle_tag":           "Player#1234",
		"order_id":             "ORD-X-Y",
		"mystery":              "kept as-is",
		"channel_id":           "chan-1",
		"custom_order_details": "notes",
	}
	for k, v := range want {
		if mapped[k] != v {
			t.Errorf("mapped[%q] = %v, want %v", k, mapped[k], v)
		}
	}
}

// 两个后端共享的字段集在「展开成远端文档 -> 归一化回规范 Order」
// 之后必须原样还原。
func TestNormalizeDenormalizeRoundTrip(t *testing.T) {
	completed := time.UnixMilli(1700000123000)
	orig := &model.Order{
		OrderID:            "ORD-MBX2K1T9-4F7QZ",
		UserID:             "U1",
		ServiceType:        "boss_kills",
		ChannelID:          "chan-0001",
		BattleTag:          "Player#1234",
		PilotType:          "Pilot",
		ExpressType:        "Normal",
		CustomOrderDetails: "extra notes",
		PaymentMethod:      "paypal",
		Status:             model.StatusCompleted,
		CreatedAt:          time.UnixMilli(1700000000000),
		CompletedAt:        &completed,
	}

	doc := DenormalizeOrder(orig)
	asStrings := make(map[string]string, len(doc))
	for k, v := range doc {
		switch x := v.(type) {
		case string:
			asStrings[k] = x
		case int64:
			asStrings[k] = strconv.FormatInt(x, 10)
		default:
			t.Fatalf("doc[%q] has unexpected type %T", k, v)
		}
	}

	got := NormalizeDoc(asStrings)
	if got == nil {
		t.Fatal("NormalizeDoc returned nil")
	}
	if got.OrderID != orig.OrderID ||
		got.UserID != orig.UserID ||
		got.ServiceType != orig.ServiceType ||
		got.ChannelID != orig.ChannelID ||
		got.BattleTag != orig.BattleTag ||
		got.PilotType != orig.PilotType ||
		got.ExpressType != orig.ExpressType ||
		got.CustomOrderDetails != orig.CustomOrderDetails ||
		got.PaymentMethod != orig.PaymentMethod ||
		got.Status != orig.Status {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, orig)
	}
	if !got.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, orig.CreatedAt)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(*orig.CompletedAt) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, orig.CompletedAt)
	}
}

func TestNormalizeDocEmpty(t *testing.T) {
	if got := NormalizeDoc(nil); got != nil {
		t.Errorf("NormalizeDoc(nil) = %v, want nil", got)
	}
	if got := NormalizeDoc(map[string]string{}); got != nil {
		t.Errorf("NormalizeDoc(empty) = %v, want nil", got)
	}
}
