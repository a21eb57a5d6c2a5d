package redis

import "fmt"

// OrderDocKey 远端文档库中单个订单文档（hash）的键名。
func OrderDocKey(orderID string) string {
	return fmt.Sprintf("ticket_desk:order:%s", orderID)
}

// StatusIndexKey 按状态维护的订单号索引集合。
func StatusIndexKey(status string) string {
	return fmt.Sprintf("ticket_desk:index:status:%s", status)
}

// WebhookClaimKey 标记某订单某支付方式的快照回调是否已发送过。
func WebhookClaimKey(orderID, method string) string {
	return fmt.Sprintf("ticket_desk:webhook:sent:%s:%s", orderID, method)
}

// RateLimitActorKey 事件入口按操作者限流的键名。
func RateLimitActorKey(actorID string) string {
	return fmt.Sprintf("rate_limit:events:actor:%s", actorID)
}

// RateLimitIPKey 解析不出操作者时按 IP 限流（降级）。
func RateLimitIPKey(ip string) string {
	return fmt.Sprintf("rate_limit:events:ip:%s", ip)
}
