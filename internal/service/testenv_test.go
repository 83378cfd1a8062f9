package service

import (
	"context"
	"testing"
	"time"

	"orderpay/internal/config"
	"orderpay/internal/infrastructure/database"
	"orderpay/internal/infrastructure/lock"
	"orderpay/internal/model"
	"orderpay/internal/ratelimit"
	"orderpay/internal/relay"
	"orderpay/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// testEnv 一套完整的服务层测试环境：
// 内存 sqlite（单连接，事务天然串行）+ miniredis 撑起分布式锁
type testEnv struct {
	db    *gorm.DB
	cfg   *config.Config
	locks *lock.Coordinator
	relay *relay.Relay
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("打开测试库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("建表失败: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := relay.New(2, 64)
	t.Cleanup(r.Close)

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				PaymentResult: "payment-result",
				BalanceEvent:  "balance-event",
			},
		},
		Business: config.BusinessConfig{
			MinChargeAmount:  1000,
			LockWaitSeconds:  5,
			LockLeaseSeconds: 3,
			MaxRetryCount:    5,
			RetryBackoffMs:   5,
		},
	}

	return &testEnv{
		db:    db,
		cfg:   cfg,
		locks: lock.NewCoordinator(client),
		relay: r,
	}
}

// noRateLimit 测试里除非专门测限流，否则不做间隔限制
func noRateLimit() *ratelimit.Guard {
	return ratelimit.NewGuard(0)
}

func (e *testEnv) createStock(t *testing.T, productID, variant string, quantity, unitPrice int64) {
	t.Helper()
	ctx := context.Background()

	stockRepo := repository.NewStockRepository(e.db)
	if err := stockRepo.Create(ctx, &model.StockUnit{
		ProductID: productID,
		Variant:   variant,
		Quantity:  quantity,
	}); err != nil {
		t.Fatalf("初始化库存失败: %v", err)
	}

	catalogRepo := repository.NewCatalogRepository(e.db)
	if err := catalogRepo.CreatePrice(ctx, &model.ProductPrice{
		ProductID: productID,
		Variant:   variant,
		UnitPrice: unitPrice,
	}); err != nil {
		t.Fatalf("初始化价格失败: %v", err)
	}
}

func (e *testEnv) createCoupon(t *testing.T, code, discountType string, value, quantity int64) {
	t.Helper()

	now := time.Now()
	couponRepo := repository.NewCouponRepository(e.db)
	if err := couponRepo.Create(context.Background(), &model.Coupon{
		Code:              code,
		DiscountType:      discountType,
		DiscountValue:     value,
		RemainingQuantity: quantity,
		ValidFrom:         now.Add(-time.Hour),
		ValidUntil:        now.Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("初始化优惠券失败: %v", err)
	}
}

func (e *testEnv) fundBalance(t *testing.T, ownerID, amount int64) {
	t.Helper()
	if err := e.db.Create(&model.Balance{OwnerID: ownerID, Amount: amount}).Error; err != nil {
		t.Fatalf("初始化余额失败: %v", err)
	}
}

func (e *testEnv) balanceOf(t *testing.T, ownerID int64) int64 {
	t.Helper()
	balance, err := repository.NewBalanceRepository(e.db).GetByOwnerID(context.Background(), nil, ownerID)
	if err != nil {
		t.Fatalf("查询余额失败: %v", err)
	}
	return balance.Amount
}
