package ratelimit

import (
	"errors"
	"sync"
	"time"
)

var ErrRateLimited = errors.New("请求过于频繁，请稍后重试")

// maxEntries 超过这个数量时顺带清理过期条目，保证 map 有界
const maxEntries = 100_000

// Guard 进程内最小间隔限流
//
// 按 key 记录上一次放行的时间，两次放行的间隔小于 interval 时拒绝。
//
// 【已知局限】只在单实例内生效：水平扩容后每个实例各限各的，
// 全局限流需要把计数挪到共享存储，当前不做（见部署文档）。
type Guard struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	ttl      time.Duration

	now func() time.Time // 测试注入
}

func NewGuard(interval time.Duration) *Guard {
	return &Guard{
		last:     make(map[string]time.Time),
		interval: interval,
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

// Check 校验并记录一次访问
// 距上次放行不足 interval 时返回 ErrRateLimited，且不刷新时间戳
func (g *Guard) Check(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if last, ok := g.last[key]; ok && now.Sub(last) < g.interval {
		return ErrRateLimited
	}

	if len(g.last) >= maxEntries {
		g.sweepLocked(now)
	}

	g.last[key] = now
	return nil
}

// Run 周期清理过期条目，ctx 取消后退出
func (g *Guard) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.mu.Lock()
			g.sweepLocked(g.now())
			g.mu.Unlock()
		}
	}
}

func (g *Guard) sweepLocked(now time.Time) {
	for key, last := range g.last {
		if now.Sub(last) > g.ttl {
			delete(g.last, key)
		}
	}
}
