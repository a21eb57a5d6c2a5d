package store

import (
	"strconv"
	"time"

	"ticket_desk/internal/model"
)

// fieldToRemote 本地 snake_case 与远端 camelCase 字段名的显式映射表。
// 远端文档 schema 只收这里列出的字段（等级/次数类明细只存本地），
// 所以写路径按映射表白名单过滤；一次更新映射结果为空时根本不碰远端。
// 新增远端字段必须同时扩展这里和 NormalizeDoc，绝不在调用点散落临时翻译。
var fieldToRemote = map[string]string{
	"order_id":             "orderId",
	"user_id":              "userId",
	"service_type":         "serviceType",
	"channel_id":           "channelId",
	"battle_tag":           "battleTag",
	"pilot_type":           "pilotType",
	"express_type":         "expressType",
	"custom_order_details": "customOrderDetails",
	"payment_method":       "paymentMethod",
	"status":               "status",
	"created_at":           "createdAt",
	"completed_at":         "completedAt",
}

var fieldToCanonical = func() map[string]string {
	m := make(map[string]string, len(fieldToRemote))
	for local, remote := range fieldToRemote {
		m[remote] = local
	}
	return m
}()

// MapToRemoteFields 把规范字段集翻译成远端字段集（白名单过滤）。
// completed_at 一律在这里重算为 now：两个后端对时间戳表示不一致，
// 信任调用方的值会引入时钟偏差。
func MapToRemoteFields(fields map[string]any, now time.Time) map[string]any {
	mapped := make(map[string]any, len(fields))
	for k, v := range fields {
		remoteKey, ok := fieldToRemote[k]
		if !ok {
			continue
		}
		if k == "completed_at" {
			mapped[remoteKey] = now.UnixMilli()
			continue
		}
		mapped[remoteKey] = remoteValue(v)
	}
	return mapped
}

// MapToCanonicalFields 反向翻译（远端 -> 规范）。
// 映射表之外的字段原名透传，归一化不丢数据。
func MapToCanonicalFields(fields map[string]any) map[string]any {
	mapped := make(map[string]any, len(fields))
	for k, v := range fields {
		localKey, ok := fieldToCanonical[k]
		if !ok {
			mapped[k] = v
			continue
		}
		mapped[localKey] = v
	}
	return mapped
}

// remoteValue 远端 hash 只存字符串/数字，这里拍平常见类型。
func remoteValue(v any) any {
	switch x := v.(type) {
	case model.Status:
		return string(x)
	case time.Time:
		return x.UnixMilli()
	case *time.Time:
		if x == nil {
			return int64(0)
		}
		return x.UnixMilli()
	default:
		return v
	}
}

// NormalizeDoc 把远端文档（camelCase hash）归一化为规范 Order。
// 远端 schema 没有的明细字段保持零值，回退读本地时自然补全。
func NormalizeDoc(doc map[string]string) *model.Order {
	if len(doc) == 0 {
		return nil
	}
	o := &model.Order{
		OrderID:            doc["orderId"],
		UserID:             doc["userId"],
		ServiceType:        doc["serviceType"],
		ChannelID:          doc["channelId"],
		BattleTag:          doc["battleTag"],
		PilotType:          doc["pilotType"],
		ExpressType:        doc["expressType"],
		CustomOrderDetails: doc["customOrderDetails"],
		PaymentMethod:      doc["paymentMethod"],
		Status:             model.Status(doc["status"]),
	}
	if ms := parseMilli(doc["createdAt"]); ms > 0 {
		o.CreatedAt = time.UnixMilli(ms)
	}
	if ms := parseMilli(doc["completedAt"]); ms > 0 {
		t := time.UnixMilli(ms)
		o.CompletedAt = &t
	}
	return o
}

// DenormalizeOrder 把规范 Order 展开成远端文档字段集（创建时用）。
func DenormalizeOrder(o *model.Order) map[string]any {
	doc := map[string]any{
		"orderId":     o.OrderID,
		"userId":      o.UserID,
		"serviceType": o.ServiceType,
		"status":      string(o.Status),
		"createdAt":   o.CreatedAt.UnixMilli(),
	}
	if o.ChannelID != "" {
		doc["channelId"] = o.ChannelID
	}
	if o.BattleTag != "" {
		doc["battleTag"] = o.BattleTag
	}
	if o.PilotType != "" {
		doc["pilotType"] = o.PilotType
	}
	if o.ExpressType != "" {
		doc["expressType"] = o.ExpressType
	}
	if o.CustomOrderDetails != "" {
		doc["customOrderDetails"] = o.CustomOrderDetails
	}
	if o.PaymentMethod != "" {
		doc["paymentMethod"] = o.PaymentMethod
	}
	if o.CompletedAt != nil {
		doc["completedAt"] = o.CompletedAt.UnixMilli()
	}
	return doc
}

func parseMilli(s string) int64 {
	if s == "" {
		return 0
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}
