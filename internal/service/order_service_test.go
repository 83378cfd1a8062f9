package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"orderpay/internal/model"
	"orderpay/internal/repository"

	"golang.org/x/sync/errgroup"
)

func newOrderService(env *testEnv) *OrderService {
	coupons := NewCouponService(env.db, env.cfg, env.locks, env.relay)
	catalog := repository.NewCatalogRepository(env.db)
	return NewOrderService(env.db, env.cfg, env.relay, catalog, coupons)
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)
	env.createStock(t, "SKU-1", "RED", 10, 2500)
	env.createStock(t, "SKU-2", "BLUE", 5, 1000)
	svc := newOrderService(env)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		OwnerID: 100,
		Items: []OrderItemRequest{
			{ProductID: "SKU-1", Variant: "RED", Quantity: 2},
			{ProductID: "SKU-2", Variant: "BLUE", Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}
	if order.Status != model.OrderStatusCreated {
		t.Fatalf("status = %s, want CREATED", order.Status)
	}
	// 2*2500 + 3*1000
	if order.TotalAmount != 8000 {
		t.Fatalf("total = %d, want 8000", order.TotalAmount)
	}

	stockRepo := repository.NewStockRepository(env.db)
	unit, _ := stockRepo.Get(ctx, "SKU-1", "RED")
	if unit.Quantity != 8 {
		t.Fatalf("SKU-1 剩余 = %d, want 8", unit.Quantity)
	}
	unit, _ = stockRepo.Get(ctx, "SKU-2", "BLUE")
	if unit.Quantity != 2 {
		t.Fatalf("SKU-2 剩余 = %d, want 2", unit.Quantity)
	}

	loaded, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("查询订单失败: %v", err)
	}
	if len(loaded.Items) != 2 {
		t.Fatalf("订单项数 = %d, want 2", len(loaded.Items))
	}
}

func TestCreateOrderEmpty(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env)

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{OwnerID: 100})
	if !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("空订单应报 ErrEmptyOrder, got %v", err)
	}
}

// 库存不足时整单回滚：已扣的其他商品一并退回
func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.createStock(t, "SKU-1", "RED", 10, 2500)
	env.createStock(t, "SKU-2", "BLUE", 1, 1000)
	svc := newOrderService(env)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		OwnerID: 100,
		Items: []OrderItemRequest{
			{ProductID: "SKU-1", Variant: "RED", Quantity: 2},
			{ProductID: "SKU-2", Variant: "BLUE", Quantity: 5},
		},
	})
	if !errors.Is(err, model.ErrInsufficientStock) {
		t.Fatalf("库存不足应报 ErrInsufficientStock, got %v", err)
	}

	stockRepo := repository.NewStockRepository(env.db)
	unit, _ := stockRepo.Get(ctx, "SKU-1", "RED")
	if unit.Quantity != 10 {
		t.Fatalf("回滚后 SKU-1 剩余 = %d, want 10", unit.Quantity)
	}
}

// 库存 10、三个并发订单各要 5：恰好两单成功，库存清零不超卖
func TestCreateOrderConcurrentReservation(t *testing.T) {
	env := newTestEnv(t)
	env.createStock(t, "HOT", "DEFAULT", 10, 5000)
	svc := newOrderService(env)
	ctx := context.Background()

	var succeeded, rejected int32
	var g errgroup.Group
	for i := 0; i < 3; i++ {
		ownerID := int64(100 + i)
		g.Go(func() error {
			_, err := svc.CreateOrder(ctx, &CreateOrderRequest{
				OwnerID: ownerID,
				Items:   []OrderItemRequest{{ProductID: "HOT", Variant: "DEFAULT", Quantity: 5}},
			})
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, model.ErrInsufficientStock):
				atomic.AddInt32(&rejected, 1)
			default:
				return fmt.Errorf("意外错误: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if succeeded != 2 || rejected != 1 {
		t.Fatalf("成功 %d 失败 %d, want 2/1", succeeded, rejected)
	}

	unit, _ := repository.NewStockRepository(env.db).Get(ctx, "HOT", "DEFAULT")
	if unit.Quantity != 0 {
		t.Fatalf("最终库存 = %d, want 0", unit.Quantity)
	}
}

func TestCreateOrderWithCoupon(t *testing.T) {
	env := newTestEnv(t)
	env.createStock(t, "SKU-1", "RED", 10, 5000)
	env.createCoupon(t, "SAVE3000", model.DiscountTypeFixed, 3000, 10)
	svc := newOrderService(env)
	ctx := context.Background()

	coupons := NewCouponService(env.db, env.cfg, env.locks, env.relay)
	if _, err := coupons.Issue(ctx, &IssueCouponRequest{OwnerID: 100, CouponCode: "SAVE3000"}); err != nil {
		t.Fatalf("领券失败: %v", err)
	}

	order, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		OwnerID:    100,
		Items:      []OrderItemRequest{{ProductID: "SKU-1", Variant: "RED", Quantity: 2}},
		CouponCode: "SAVE3000",
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}
	// 2*5000 - 3000
	if order.TotalAmount != 7000 {
		t.Fatalf("total = %d, want 7000", order.TotalAmount)
	}

	issuance, err := repository.NewCouponRepository(env.db).GetIssuance(ctx, nil, 100, "SAVE3000")
	if err != nil {
		t.Fatalf("查询领取记录失败: %v", err)
	}
	if issuance.Status != model.IssuanceStatusUsed {
		t.Fatalf("核销后状态 = %s, want USED", issuance.Status)
	}

	// 已核销的券不能再用
	_, err = svc.CreateOrder(ctx, &CreateOrderRequest{
		OwnerID:    100,
		Items:      []OrderItemRequest{{ProductID: "SKU-1", Variant: "RED", Quantity: 1}},
		CouponCode: "SAVE3000",
	})
	if !errors.Is(err, model.ErrCouponUsed) {
		t.Fatalf("复用已核销券应报 ErrCouponUsed, got %v", err)
	}

	// 第二单被回滚，库存只扣了第一单的量
	unit, _ := repository.NewStockRepository(env.db).Get(ctx, "SKU-1", "RED")
	if unit.Quantity != 8 {
		t.Fatalf("库存 = %d, want 8", unit.Quantity)
	}
}

func TestCreateOrderWithUnissuedCoupon(t *testing.T) {
	env := newTestEnv(t)
	env.createStock(t, "SKU-1", "RED", 10, 5000)
	env.createCoupon(t, "SAVE3000", model.DiscountTypeFixed, 3000, 10)
	svc := newOrderService(env)

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		OwnerID:    100,
		Items:      []OrderItemRequest{{ProductID: "SKU-1", Variant: "RED", Quantity: 1}},
		CouponCode: "SAVE3000",
	})
	if !errors.Is(err, model.ErrCouponNotIssued) {
		t.Fatalf("未领取的券应报 ErrCouponNotIssued, got %v", err)
	}
}

func TestCancelOrderRestoresStock(t *testing.T) {
	env := newTestEnv(t)
	env.createStock(t, "SKU-1", "RED", 10, 2500)
	svc := newOrderService(env)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		OwnerID: 100,
		Items:   []OrderItemRequest{{ProductID: "SKU-1", Variant: "RED", Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("下单失败: %v", err)
	}

	if err := svc.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("取消失败: %v", err)
	}

	loaded, _ := svc.GetOrder(ctx, order.ID)
	if loaded.Status != model.OrderStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", loaded.Status)
	}
	unit, _ := repository.NewStockRepository(env.db).Get(ctx, "SKU-1", "RED")
	if unit.Quantity != 10 {
		t.Fatalf("回补后库存 = %d, want 10", unit.Quantity)
	}

	// 终态订单不能再取消
	if err := svc.CancelOrder(ctx, order.ID); !errors.Is(err, model.ErrInvalidOrderState) {
		t.Fatalf("重复取消应报 ErrInvalidOrderState, got %v", err)
	}
}

func TestListOrders(t *testing.T) {
	env := newTestEnv(t)
	env.createStock(t, "SKU-1", "RED", 100, 1000)
	svc := newOrderService(env)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateOrder(ctx, &CreateOrderRequest{
			OwnerID: 100,
			Items:   []OrderItemRequest{{ProductID: "SKU-1", Variant: "RED", Quantity: 1}},
		}); err != nil {
			t.Fatalf("下单失败: %v", err)
		}
	}

	orders, total, err := svc.ListOrders(ctx, 100, 1, 2)
	if err != nil {
		t.Fatalf("查询订单列表失败: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if len(orders) != 2 {
		t.Fatalf("page size = %d, want 2", len(orders))
	}
}
