package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"ticket_desk/internal/model"
	rediskey "ticket_desk/pkg/redis"

	rd "github.com/redis/go-redis/v9"
)

const claimTTL = 7 * 24 * time.Hour

// Webhook 在支付方式选定后，把订单快照 POST 到配置的回调地址。
// fire-and-forget：失败只记日志，绝不阻塞用户侧回复。
// 同一订单同一支付方式只发一次（Redis 幂等认领，Redis 不可用时放行）。
type Webhook struct {
	url    string
	client *http.Client
	rdb    *rd.Client // 可为 nil
}

func NewWebhook(url string, rdb *rd.Client) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		rdb:    rdb,
	}
}

// Enabled 未配置回调地址时整个通知路径关闭。
func (w *Webhook) Enabled() bool { return w != nil && w.url != "" }

// SendSnapshot 异步发送订单快照。
func (w *Webhook) SendSnapshot(order *model.Order) {
	if !w.Enabled() {
		return
	}
	snapshot := *order
	go w.send(&snapshot)
}

func (w *Webhook) send(order *model.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if w.rdb != nil {
		key := rediskey.WebhookClaimKey(order.OrderID, order.PaymentMethod)
		claimed, err := rediskey.ClaimOnce(ctx, w.rdb, key, claimTTL)
		if err != nil {
			// Redis 出错时放行（降级策略），宁可重复通知也不丢
			log.Printf("webhook: claim check failed, sending anyway: %v", err)
		} else if !claimed {
			return
		}
	}

	if err := w.post(ctx, order); err != nil {
		log.Printf("webhook: snapshot for %s failed: %v", order.OrderID, err)
	}
}

func (w *Webhook) post(ctx context.Context, order *model.Order) error {
	b, err := json.Marshal(order)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}
