package router

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"ticket_desk/internal/config"
	"ticket_desk/internal/lifecycle"
	"ticket_desk/internal/middleware"
	"ticket_desk/internal/model"
	"ticket_desk/internal/platform"
	"ticket_desk/internal/store"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// Setup 注册全部 HTTP 路由。
// POST /api/events 是平台适配层的入口：胶水层把按钮/菜单/表单交互
// 翻译成带标签事件打过来，状态机的答复原样回给交互发起者。
func Setup(r *gin.Engine, engine *lifecycle.Engine, repo *store.Repository, rdb *rd.Client, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	events := r.Group("/api")
	if rdb != nil {
		events.Use(middleware.RedisRateLimit(rdb, cfg.EventRateLimit, cfg.EventRateWindow))
	}
	events.POST("/events", handleEvent(engine))

	r.GET("/api/orders/:order_id", getOrder(repo))
	r.GET("/api/orders", listOrders(repo, cfg))
}

// eventRequest 入站事件的线格式。Type 决定取哪些字段。
type eventRequest struct {
	Type    string            `json:"type" binding:"required"`
	ActorID string            `json:"actor_id" binding:"required"`
	OrderID string            `json:"order_id"`
	Service string            `json:"service"`
	Method  string            `json:"method"`
	Fields  map[string]string `json:"fields"`
}

func (req eventRequest) toEvent() (lifecycle.Event, bool) {
	switch req.Type {
	case "service_selected":
		return lifecycle.ServiceSelected{ActorID: req.ActorID, Service: req.Service}, true
	case "ticket_closed":
		return lifecycle.TicketClosed{ActorID: req.ActorID, OrderID: req.OrderID}, true
	case "confirm_requested":
		return lifecycle.ConfirmRequested{ActorID: req.ActorID, OrderID: req.OrderID}, true
	case "form_submitted":
		return lifecycle.FormSubmitted{ActorID: req.ActorID, OrderID: req.OrderID, Fields: req.Fields}, true
	case "payment_selected":
		return lifecycle.PaymentSelected{ActorID: req.ActorID, OrderID: req.OrderID, Method: req.Method}, true
	case "staff_cancelled":
		return lifecycle.StaffCancelled{ActorID: req.ActorID, OrderID: req.OrderID}, true
	case "staff_completed":
		return lifecycle.StaffCompleted{ActorID: req.ActorID, OrderID: req.OrderID}, true
	default:
		return nil, false
	}
}

// handleEvent 把状态机的守卫错误翻成对应的 HTTP 答复。
// 任何路径都必须给发起交互的人一个终态响应。
func handleEvent(engine *lifecycle.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req eventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		ev, ok := req.toEvent()
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "unknown event type: " + req.Type})
			return
		}

		result, err := engine.HandleEvent(c.Request.Context(), ev)
		if err != nil {
			respondError(c, req, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": result})
	}
}

func respondError(c *gin.Context, req eventRequest, err error) {
	var vErr *lifecycle.ValidationError
	var extErr *platform.ExternalError

	switch {
	case errors.Is(err, lifecycle.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "Order not found."})
	case errors.As(err, &vErr):
		resp := gin.H{"code": 400, "msg": vErr.Error()}
		if len(vErr.Missing) > 0 {
			resp["missing"] = vErr.Missing
		}
		c.JSON(http.StatusBadRequest, resp)
	case errors.Is(err, lifecycle.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"code": 403, "msg": "You do not have permission."})
	case errors.As(err, &extErr):
		log.Printf("router: event %s for %s: %v", req.Type, req.OrderID, err)
		c.JSON(http.StatusBadGateway, gin.H{"code": 502, "msg": "Failed to reach the chat platform. Please contact staff."})
	default:
		// 未分类错误：给用户通用失败，给运维完整上下文
		log.Printf("router: event %s actor=%s order=%s: %v", req.Type, req.ActorID, req.OrderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "An unexpected error occurred. Please try again."})
	}
}

// getOrder 查询单个订单（远端优先、本地回退，同仓储读路径）。
func getOrder(repo *store.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		order, found, err := repo.GetOrder(c.Request.Context(), orderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "order not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": order})
	}
}

// listOrders 分页列出订单（运维/staff 侧）。
func listOrders(repo *store.Repository, cfg config.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := model.Status(c.Query("status"))
		page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
		if err != nil || page < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid page"})
			return
		}

		rows, total, err := repo.ListOrders(status, page, cfg.ListPageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"orders":    rows,
			"total":     total,
			"page":      page,
			"page_size": cfg.ListPageSize,
		}})
	}
}
