package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceConfig 描述一种可下单的服务类型：
// 展示文案、确认前必须收集齐的明细字段、工单频道所属分组。
type ServiceConfig struct {
	Value          string
	Label          string
	Category       string
	RequiredFields []string
}

// PaymentMethod 支付方式条目（value/label/付款说明文案）。
type PaymentMethod struct {
	Value string
	Label string
	Info  string
}

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	// 远端文档库（Redis）。RedisAddr 为空表示远端未配置，
	// 仓储层会直接走本地 SQLite 回退。
	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（状态机入流，Relay 异步转 Kafka）
	TransitionStream   string
	TransitionGroup    string
	TransitionConsumer string

	// 事件入口限流
	EventRateLimit  int
	EventRateWindow time.Duration

	// 工单生命周期相关
	StaffRoleName     string
	StaffChannelID    string
	TicketDeleteDelay time.Duration // close/cancel 后删频道前的缓冲
	RevokeDelay       time.Duration // complete 后收回权限 + 邀评的延迟
	CompletedCategory string        // 已完成工单的归档分组基础名
	CompletedCapacity int           // 单个归档分组容量上限

	// 支付方式选定后的订单快照回调
	WebhookURL string

	// 列表展示
	ListPageSize int
	ListExpiry   time.Duration // 交互控件失效窗口（由平台胶水层消费）

	Services       []ServiceConfig
	PaymentMethods []PaymentMethod
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBPath:             getEnv("DB_PATH", "ticket_desk.db"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:            0,
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "ticket-desk-transitions"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "ticket-desk-audit-consumer"),
		TransitionStream:   getEnv("TRANSITION_STREAM", "ticket_desk:transition_events"),
		TransitionGroup:    getEnv("TRANSITION_GROUP", "ticket-desk-relay-group"),
		TransitionConsumer: getEnv("TRANSITION_CONSUMER", "ticket-desk-relay-1"),
		EventRateLimit:     30,
		EventRateWindow:    time.Second,
		StaffRoleName:      getEnv("STAFF_ROLE_NAME", "Staff"),
		StaffChannelID:     getEnv("STAFF_CHANNEL_ID", ""),
		TicketDeleteDelay:  5 * time.Second,
		RevokeDelay:        4 * time.Hour,
		CompletedCategory:  getEnv("COMPLETED_CATEGORY", "completed-orders"),
		CompletedCapacity:  50,
		WebhookURL:         getEnv("ORDER_WEBHOOK_URL", ""),
		ListPageSize:       10,
		ListExpiry:         120 * time.Second,
		Services:           defaultServices(),
		PaymentMethods:     defaultPaymentMethods(),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("EVENT_RATE_LIMIT", cfg.EventRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid EVENT_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("EVENT_RATE_LIMIT must be > 0")
	}
	cfg.EventRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("EVENT_RATE_WINDOW_SEC", int(cfg.EventRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid EVENT_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("EVENT_RATE_WINDOW_SEC must be > 0")
	}
	cfg.EventRateWindow = time.Duration(rateWindowSec) * time.Second

	deleteDelaySec, err := getEnvInt("TICKET_DELETE_DELAY_SEC", int(cfg.TicketDeleteDelay.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid TICKET_DELETE_DELAY_SEC: %w", err)
	}
	if deleteDelaySec <= 0 {
		return AppConfig{}, fmt.Errorf("TICKET_DELETE_DELAY_SEC must be > 0")
	}
	cfg.TicketDeleteDelay = time.Duration(deleteDelaySec) * time.Second

	revokeDelayMin, err := getEnvInt("REVOKE_DELAY_MIN", int(cfg.RevokeDelay.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REVOKE_DELAY_MIN: %w", err)
	}
	if revokeDelayMin <= 0 {
		return AppConfig{}, fmt.Errorf("REVOKE_DELAY_MIN must be > 0")
	}
	cfg.RevokeDelay = time.Duration(revokeDelayMin) * time.Minute

	capacity, err := getEnvInt("COMPLETED_CAPACITY", cfg.CompletedCapacity)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid COMPLETED_CAPACITY: %w", err)
	}
	if capacity <= 0 {
		return AppConfig{}, fmt.Errorf("COMPLETED_CAPACITY must be > 0")
	}
	cfg.CompletedCapacity = capacity

	if cfg.StaffRoleName == "" {
		return AppConfig{}, fmt.Errorf("STAFF_ROLE_NAME must not be empty")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.TransitionStream == "" {
		return AppConfig{}, fmt.Errorf("TRANSITION_STREAM must not be empty")
	}
	if cfg.TransitionGroup == "" {
		return AppConfig{}, fmt.Errorf("TRANSITION_GROUP must not be empty")
	}
	if cfg.TransitionConsumer == "" {
		return AppConfig{}, fmt.Errorf("TRANSITION_CONSUMER must not be empty")
	}

	return cfg, nil
}

// ServiceByValue 按 value 查服务配置，找不到返回 false。
func (c AppConfig) ServiceByValue(value string) (ServiceConfig, bool) {
	for _, s := range c.Services {
		if s.Value == value {
			return s, true
		}
	}
	return ServiceConfig{}, false
}

// PaymentByValue 按 value 查支付方式。
func (c AppConfig) PaymentByValue(value string) (PaymentMethod, bool) {
	for _, p := range c.PaymentMethods {
		if p.Value == value {
			return p, true
		}
	}
	return PaymentMethod{}, false
}

// defaultServices 服务目录内置默认值。
// RequiredFields 使用仓储层的规范字段名（snake_case）。
func defaultServices() []ServiceConfig {
	return []ServiceConfig{
		{
			Value:          "paragon_leveling",
			Label:          "Paragon Leveling",
			Category:       "paragon-leveling",
			RequiredFields: []string{"battle_tag", "pilot_type", "express_type", "from_level", "to_level"},
		},
		{
			Value:          "powerleveling",
			Label:          "Powerleveling",
			Category:       "powerleveling",
			RequiredFields: []string{"battle_tag", "pilot_type", "express_type", "from_level", "to_level"},
		},
		{
			Value:          "gearing",
			Label:          "Gearing",
			Category:       "gearing",
			RequiredFields: []string{"battle_tag", "pilot_type", "express_type"},
		},
		{
			Value:          "boss_kills",
			Label:          "Boss Kills",
			Category:       "boss-kills",
			RequiredFields: []string{"battle_tag", "pilot_type", "express_type", "kills_amount"},
		},
		{
			Value:          "boss_mats",
			Label:          "Boss Materials",
			Category:       "boss-mats",
			RequiredFields: []string{"battle_tag", "pilot_type", "express_type", "mats_amount"},
		},
		{
			Value:          "custom_order",
			Label:          "Custom Order",
			Category:       "custom-orders",
			RequiredFields: []string{"battle_tag", "custom_order_details"},
		},
		{
			Value:          "hourly_diving",
			Label:          "Hourly Diving",
			Category:       "hourly-diving",
			RequiredFields: []string{"battle_tag", "pilot_type", "hours_amount"},
		},
	}
}

func defaultPaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		{Value: "paypal", Label: "PayPal", Info: "Send as Friends & Family. Staff will share the address in this ticket."},
		{Value: "crypto", Label: "Crypto (USDT)", Info: "TRC-20 preferred. Ask staff for the current wallet address."},
		{Value: "bank_transfer", Label: "Bank Transfer", Info: "SEPA/wire details will be posted by staff. Allow 1-2 business days."},
	}
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
