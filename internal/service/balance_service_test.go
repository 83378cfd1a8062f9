package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"orderpay/internal/model"
	"orderpay/internal/ratelimit"
	"orderpay/internal/repository"

	"golang.org/x/sync/errgroup"
)

func TestChargeHappyPath(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBalanceService(env.db, env.cfg, env.locks, noRateLimit(), env.relay)
	ctx := context.Background()

	resp, err := svc.Charge(ctx, &ChargeRequest{
		RequestID: "req-1",
		OwnerID:   100,
		Amount:    5000,
	})
	if err != nil {
		t.Fatalf("充值失败: %v", err)
	}
	if resp.Duplicate {
		t.Fatal("首次充值不应标记为重复")
	}
	if resp.Balance != 5000 {
		t.Fatalf("balance = %d, want 5000", resp.Balance)
	}

	if got := env.balanceOf(t, 100); got != 5000 {
		t.Fatalf("落库余额 = %d, want 5000", got)
	}

	count, err := repository.NewLedgerRepository(env.db).CountByOwnerID(ctx, 100)
	if err != nil {
		t.Fatalf("查询流水失败: %v", err)
	}
	if count != 1 {
		t.Fatalf("流水条数 = %d, want 1", count)
	}

	// 提交后效果写出 outbox 通知
	env.relay.Drain()
	exists, err := repository.NewOutboxRepository(env.db).ExistsByTopicKey(ctx, nil, env.cfg.Kafka.Topic.BalanceEvent, "req-1")
	if err != nil {
		t.Fatalf("查询 outbox 失败: %v", err)
	}
	if !exists {
		t.Fatal("充值提交后应有 outbox 消息")
	}
}

func TestChargeMinimumAmount(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBalanceService(env.db, env.cfg, env.locks, noRateLimit(), env.relay)

	_, err := svc.Charge(context.Background(), &ChargeRequest{
		RequestID: "req-small",
		OwnerID:   100,
		Amount:    env.cfg.Business.MinChargeAmount - 1,
	})
	if !errors.Is(err, model.ErrMinimumCharge) {
		t.Fatalf("低于最低充值额应报 ErrMinimumCharge, got %v", err)
	}

	count, _ := repository.NewLedgerRepository(env.db).CountByOwnerID(context.Background(), 100)
	if count != 0 {
		t.Fatalf("被拒绝的充值不应留流水, count=%d", count)
	}
}

// 10 个并发充值（request_id 各不相同）最终余额等于总和，流水一条不少
func TestChargeConcurrentDistinctRequests(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBalanceService(env.db, env.cfg, env.locks, noRateLimit(), env.relay)
	ctx := context.Background()

	const n = 10
	const amount = 10000

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.Charge(ctx, &ChargeRequest{
				RequestID: fmt.Sprintf("req-%d", i),
				OwnerID:   200,
				Amount:    amount,
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("并发充值失败: %v", err)
	}

	if got := env.balanceOf(t, 200); got != n*amount {
		t.Fatalf("最终余额 = %d, want %d", got, n*amount)
	}
	count, _ := repository.NewLedgerRepository(env.db).CountByOwnerID(ctx, 200)
	if count != n {
		t.Fatalf("流水条数 = %d, want %d", count, n)
	}
}

// 同一个 request_id 并发重放：余额只加一次，流水只有一条
func TestChargeConcurrentSameRequestID(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBalanceService(env.db, env.cfg, env.locks, noRateLimit(), env.relay)
	ctx := context.Background()

	const m = 8
	var firstTime int32

	var g errgroup.Group
	for i := 0; i < m; i++ {
		g.Go(func() error {
			resp, err := svc.Charge(ctx, &ChargeRequest{
				RequestID: "req-replay",
				OwnerID:   300,
				Amount:    20000,
			})
			if err != nil {
				return err
			}
			if !resp.Duplicate {
				atomic.AddInt32(&firstTime, 1)
			}
			if resp.Balance != 20000 {
				return fmt.Errorf("balance = %d, want 20000", resp.Balance)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("并发重放失败: %v", err)
	}

	if firstTime != 1 {
		t.Fatalf("首次处理应恰好 1 次, got %d", firstTime)
	}
	if got := env.balanceOf(t, 300); got != 20000 {
		t.Fatalf("最终余额 = %d, want 20000", got)
	}
	count, _ := repository.NewLedgerRepository(env.db).CountByOwnerID(ctx, 300)
	if count != 1 {
		t.Fatalf("流水条数 = %d, want 1", count)
	}
}

// 串行重放同一 request_id 返回先前结果，不报错
func TestChargeSequentialReplay(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBalanceService(env.db, env.cfg, env.locks, noRateLimit(), env.relay)
	ctx := context.Background()

	req := &ChargeRequest{RequestID: "req-seq", OwnerID: 400, Amount: 3000}
	if _, err := svc.Charge(ctx, req); err != nil {
		t.Fatalf("首次充值失败: %v", err)
	}

	resp, err := svc.Charge(ctx, req)
	if err != nil {
		t.Fatalf("重放不应报错: %v", err)
	}
	if !resp.Duplicate {
		t.Fatal("重放应标记为重复")
	}
	if resp.Balance != 3000 {
		t.Fatalf("重放返回余额 = %d, want 3000", resp.Balance)
	}
}

func TestChargeRateLimited(t *testing.T) {
	env := newTestEnv(t)
	guard := ratelimit.NewGuard(800 * time.Millisecond)
	svc := NewBalanceService(env.db, env.cfg, env.locks, guard, env.relay)
	ctx := context.Background()

	if _, err := svc.Charge(ctx, &ChargeRequest{RequestID: "rate-1", OwnerID: 500, Amount: 5000}); err != nil {
		t.Fatalf("首次充值失败: %v", err)
	}

	_, err := svc.Charge(ctx, &ChargeRequest{RequestID: "rate-2", OwnerID: 500, Amount: 5000})
	if !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Fatalf("间隔内的第二次请求应被限流, got %v", err)
	}

	// 其他用户不受影响
	if _, err := svc.Charge(ctx, &ChargeRequest{RequestID: "rate-3", OwnerID: 501, Amount: 5000}); err != nil {
		t.Fatalf("不同用户不应被限流: %v", err)
	}
}

func TestGetBalanceCreatesAccount(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBalanceService(env.db, env.cfg, env.locks, noRateLimit(), env.relay)

	balance, err := svc.GetBalance(context.Background(), 600)
	if err != nil {
		t.Fatalf("查询余额失败: %v", err)
	}
	if balance.Amount != 0 {
		t.Fatalf("新账户余额 = %d, want 0", balance.Amount)
	}
}
