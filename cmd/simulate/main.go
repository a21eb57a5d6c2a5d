package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

// simulate 用 HTTP 事件接口端到端走一遍订单生命周期：
// 开单 -> 请求确认 -> 提交明细 -> 选支付方式 -> staff 完成。
// 跑多张单可以顺带观察已完成分组的按月轮转（>50 张时）。
func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	customer := flag.String("customer", "U1", "customer user id")
	staffID := flag.String("staff", "S1", "staff user id (must be in STAFF_USER_IDS)")
	service := flag.String("service", "boss_kills", "service type")
	count := flag.Int("n", 1, "tickets to run")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	summary := map[int]int{}
	errCount := 0

	for i := 0; i < *count; i++ {
		orderID, res := createTicket(client, *baseURL, *customer, *service)
		record(summary, &errCount, res)
		if orderID == "" {
			fmt.Printf("ticket %d: create failed: status=%d body=%s err=%v\n", i+1, res.Status, res.Body, res.Err)
			continue
		}

		steps := []map[string]any{
			{"type": "confirm_requested", "actor_id": *customer, "order_id": orderID},
			{"type": "form_submitted", "actor_id": *customer, "order_id": orderID, "fields": map[string]string{
				"battle_tag":   "Sim#1234",
				"pilot_type":   "Pilot",
				"express_type": "Normal",
				"kills_amount": "10",
			}},
			{"type": "payment_selected", "actor_id": *customer, "order_id": orderID, "method": "paypal"},
			{"type": "staff_completed", "actor_id": *staffID, "order_id": orderID},
		}
		for _, step := range steps {
			res := postEvent(client, *baseURL, step)
			record(summary, &errCount, res)
			if res.Err != nil || res.Status != http.StatusOK {
				fmt.Printf("ticket %d (%s): step %v -> status=%d body=%s err=%v\n",
					i+1, orderID, step["type"], res.Status, res.Body, res.Err)
			}
		}
		fmt.Printf("ticket %d done: %s\n", i+1, orderID)
	}

	fmt.Println("http status summary:")
	for _, code := range []int{200, 400, 403, 404, 429, 500, 502} {
		if summary[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, summary[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

func createTicket(client *http.Client, baseURL, customer, service string) (string, Result) {
	res := postEvent(client, baseURL, map[string]any{
		"type":     "service_selected",
		"actor_id": customer,
		"service":  service,
	})
	if res.Err != nil || res.Status != http.StatusOK {
		return "", res
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			Order struct {
				OrderID string `json:"order_id"`
			} `json:"order"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(res.Body), &out); err != nil {
		res.Err = err
		return "", res
	}
	return out.Data.Order.OrderID, res
}

func postEvent(client *http.Client, baseURL string, body map[string]any) Result {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/events", baseURL), bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(respBody)}
}

func record(summary map[int]int, errCount *int, res Result) {
	if res.Err != nil {
		*errCount++
		return
	}
	summary[res.Status]++
}
