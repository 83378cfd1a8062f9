package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestCheckEnforcesInterval(t *testing.T) {
	g := NewGuard(800 * time.Millisecond)

	now := time.Unix(1000, 0)
	g.now = func() time.Time { return now }

	if err := g.Check("owner:1"); err != nil {
		t.Fatalf("首次请求应放行: %v", err)
	}

	now = now.Add(300 * time.Millisecond)
	if err := g.Check("owner:1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("间隔不足应拒绝, got %v", err)
	}

	// 被拒绝的请求不刷新时间戳：累计到 800ms 后就该放行
	now = now.Add(500 * time.Millisecond)
	if err := g.Check("owner:1"); err != nil {
		t.Fatalf("间隔已满应放行: %v", err)
	}
}

func TestCheckIsPerKey(t *testing.T) {
	g := NewGuard(800 * time.Millisecond)

	if err := g.Check("owner:1"); err != nil {
		t.Fatalf("owner:1 应放行: %v", err)
	}
	if err := g.Check("owner:2"); err != nil {
		t.Fatalf("不同 key 互不影响: %v", err)
	}
	if err := g.Check("owner:1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("owner:1 连续请求应拒绝, got %v", err)
	}
}

func TestSweepEvictsStaleEntries(t *testing.T) {
	g := NewGuard(800 * time.Millisecond)

	now := time.Unix(1000, 0)
	g.now = func() time.Time { return now }

	_ = g.Check("stale")
	now = now.Add(time.Hour)
	_ = g.Check("fresh")

	g.mu.Lock()
	g.sweepLocked(now)
	_, staleKept := g.last["stale"]
	_, freshKept := g.last["fresh"]
	g.mu.Unlock()

	if staleKept {
		t.Fatal("过期条目应被清理")
	}
	if !freshKept {
		t.Fatal("新条目不应被清理")
	}
}
