package handler

import (
	"errors"
	"strconv"

	"orderpay/internal/config"
	"orderpay/internal/infrastructure/lock"
	"orderpay/internal/model"
	"orderpay/internal/ratelimit"
	"orderpay/internal/relay"
	"orderpay/internal/repository"
	"orderpay/internal/service"
	"orderpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	balanceService *service.BalanceService
	couponService  *service.CouponService
	orderService   *service.OrderService
	paymentService *service.PaymentService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, r *relay.Relay, rate *ratelimit.Guard) *Handler {
	locks := lock.NewCoordinator(rdb)
	couponService := service.NewCouponService(db, cfg, locks, r)
	catalog := repository.NewCatalogRepository(db)

	return &Handler{
		balanceService: service.NewBalanceService(db, cfg, locks, rate, r),
		couponService:  couponService,
		orderService:   service.NewOrderService(db, cfg, r, catalog, couponService),
		paymentService: service.NewPaymentService(db, cfg, locks, r),
	}
}

// writeError 按错误分类映射业务码，所有业务失败原样上报，不吞
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lock.ErrLockNotAcquired):
		response.BusinessError(c, response.CodeLockNotAcquired, err.Error())
	case errors.Is(err, ratelimit.ErrRateLimited):
		response.BusinessError(c, response.CodeRateLimited, err.Error())
	case errors.Is(err, model.ErrMinimumCharge):
		response.BusinessError(c, response.CodeMinimumCharge, err.Error())
	case errors.Is(err, model.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, model.ErrInsufficientStock):
		response.BusinessError(c, response.CodeInsufficientStock, err.Error())
	case errors.Is(err, model.ErrCouponExhausted):
		response.BusinessError(c, response.CodeCouponExhausted, err.Error())
	case errors.Is(err, model.ErrCouponIssuedDup):
		response.BusinessError(c, response.CodeCouponAlreadyIssued, err.Error())
	case errors.Is(err, model.ErrCouponNotIssued):
		response.BusinessError(c, response.CodeCouponNotIssued, err.Error())
	case errors.Is(err, model.ErrCouponExpired), errors.Is(err, model.ErrCouponUsed):
		response.BusinessError(c, response.CodeCouponInvalid, err.Error())
	case errors.Is(err, repository.ErrPaymentAlreadyRecorded):
		response.BusinessError(c, response.CodePaymentDuplicated, err.Error())
	case errors.Is(err, model.ErrInvalidOrderState):
		response.BusinessError(c, response.CodeInvalidOrderState, err.Error())
	case errors.Is(err, service.ErrConflictExceeded):
		response.BusinessError(c, response.CodeConflictExceeded, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrCouponNotFound),
		errors.Is(err, repository.ErrStockNotFound),
		errors.Is(err, repository.ErrBalanceNotFound):
		response.BusinessError(c, response.CodeNotFound, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 余额相关接口
// ============================================================

// GetBalance 查询用户余额
// GET /api/v1/balance?owner_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Query("owner_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "owner_id 参数错误")
		return
	}

	balance, err := h.balanceService.GetBalance(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"owner_id": balance.OwnerID,
		"balance":  balance.Amount,
	})
}

// Charge 充值接口
// POST /api/v1/balance/charge
//
// 【关键点】request_id 由客户端生成：网络抖动重试时带同一个
// request_id，服务端保证余额只加一次
func (h *Handler) Charge(c *gin.Context) {
	var req service.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.balanceService.Charge(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// ListLedger 查询余额流水
// GET /api/v1/balance/ledger?owner_id=xxx&page=1&page_size=10
func (h *Handler) ListLedger(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Query("owner_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "owner_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.balanceService.ListLedger(c.Request.Context(), ownerID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 优惠券相关接口
// ============================================================

// IssueCoupon 领取限量优惠券
// POST /api/v1/coupon/issue
func (h *Handler) IssueCoupon(c *gin.Context) {
	var req service.IssueCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.couponService.Issue(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 订单相关接口
// ============================================================

// CreateOrder 创建订单
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_id":     order.ID,
		"status":       order.Status,
		"total_amount": order.TotalAmount,
	})
}

// GetOrder 查询订单详情
// GET /api/v1/order/detail?order_id=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderID := c.Query("order_id")
	if orderID == "" {
		response.ParamError(c, "order_id 参数不能为空")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, order)
}

// ListOrders 查询用户订单列表
// GET /api/v1/order/list?owner_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Query("owner_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "owner_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), ownerID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CancelOrder 取消订单
// POST /api/v1/order/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	var req struct {
		OrderID string `json:"order_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.orderService.CancelOrder(c.Request.Context(), req.OrderID); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "订单已取消",
	})
}

// ============================================================
// 支付相关接口
// ============================================================

// Pay 支付订单
// POST /api/v1/payment/execute
//
// 【关键点】支付是整个系统最核心的操作：
// 1. 一单一付：并发支付同一订单只有一笔成功
// 2. 原子性：扣余额、落支付记录、记流水同事务
// 3. 订单确认异步：支付返回时订单可能还是 CREATED，调用方轮询
func (h *Handler) Pay(c *gin.Context) {
	var req service.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.paymentService.Pay(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// QueryPayment 查询支付结果
// GET /api/v1/payment/detail?order_id=xxx
func (h *Handler) QueryPayment(c *gin.Context) {
	orderID := c.Query("order_id")
	if orderID == "" {
		response.ParamError(c, "order_id 参数不能为空")
		return
	}

	result, err := h.paymentService.QueryPayment(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}
