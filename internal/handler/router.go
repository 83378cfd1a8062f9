package handler

import (
	"orderpay/internal/config"
	"orderpay/internal/ratelimit"
	"orderpay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, r *relay.Relay, rate *ratelimit.Guard) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	engine.Use(RecoveryMiddleware())
	engine.Use(LoggerMiddleware())
	engine.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg, r, rate)

	api := engine.Group("/api/v1")
	{
		balance := api.Group("/balance")
		{
			balance.GET("", h.GetBalance)
			balance.POST("/charge", h.Charge)
			balance.GET("/ledger", h.ListLedger)
		}

		coupon := api.Group("/coupon")
		{
			coupon.POST("/issue", h.IssueCoupon)
		}

		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
			order.POST("/cancel", h.CancelOrder)
		}

		payment := api.Group("/payment")
		{
			payment.POST("/execute", h.Pay)
			payment.GET("/detail", h.QueryPayment)
		}
	}

	// 健康检查
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return engine
}
