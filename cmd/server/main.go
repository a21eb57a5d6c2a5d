package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ticket_desk/internal/config"
	"ticket_desk/internal/lifecycle"
	"ticket_desk/internal/model"
	"ticket_desk/internal/notify"
	"ticket_desk/internal/platform"
	"ticket_desk/internal/queue"
	"ticket_desk/internal/router"
	"ticket_desk/internal/scheduler"
	"ticket_desk/internal/store"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 1. 本地后端：SQLite + 规范列对齐（只加列，不动已有行）
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	local := store.NewLocalStore(db)
	if err := local.EnsureSchema(); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// 2. 远端文档库（可选）。连不上也继续跑：
	//    仓储层的读写都会在远端失败时回退本地。
	var rdb *rd.Client
	var remote store.RemoteAPI
	if cfg.RedisAddr != "" {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("remote store unreachable, running on local fallback: %v", err)
		}
		cancel()
		remote = store.NewRemoteStore(rdb)
	} else {
		log.Printf("REDIS_ADDR empty, remote store disabled")
	}
	repo := store.NewRepository(remote, local)

	// 3. 平台胶水层。没接真实网关时用 DryRun 占位，
	//    STAFF_USER_IDS 里的用户视为持有 staff 角色。
	staff := map[string]bool{}
	for _, id := range strings.Split(os.Getenv("STAFF_USER_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			staff[id] = true
		}
	}
	collab := platform.NewDryRun(staff)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. 延迟动作调度器：注册动作、重放上次进程里没执行完的行
	sched := scheduler.New(db, scheduler.RealClock())
	sched.Register(model.ActionDeleteChannel, scheduler.DeleteChannelAction(collab))
	sched.Register(model.ActionRevokeAccess, scheduler.RevokeAccessAction(collab,
		"Thanks for your order! We'd love a quick review of your experience."))
	if err := sched.Replay(rootCtx); err != nil {
		log.Fatalf("scheduler replay: %v", err)
	}
	defer sched.Stop()

	// 5. 审计链路（可选）：outbox(Redis Stream) -> relay -> Kafka -> 落库
	var audit lifecycle.TransitionSink
	if rdb != nil {
		outbox := queue.NewOutbox(rdb, cfg.TransitionStream)
		audit = outbox

		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		relay := queue.NewRelay(rdb, producer, cfg.TransitionStream, cfg.TransitionGroup, cfg.TransitionConsumer)
		go relay.Run(rootCtx)

		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, db)
		defer consumer.Close()
		go consumer.Run(rootCtx)
	}

	webhook := notify.NewWebhook(cfg.WebhookURL, rdb)
	engine := lifecycle.NewEngine(cfg, repo, collab, sched, audit, webhook)

	r := gin.Default()
	router.Setup(r, engine, repo, rdb, cfg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()
	log.Printf("ticket desk listening on %s", cfg.HTTPAddr)

	<-rootCtx.Done()
	log.Printf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
