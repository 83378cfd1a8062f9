package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 余额、库存、限量券都是多实例共享的竞争资源，进程内的 mutex 管不到
// 另一个实例。Redis 锁把"同一个 key 的操作"跨实例串行化：
//
//   实例A: 获取 balance:charge:42 -> 读余额 -> 写余额 -> 释放
//   实例B: 等待...                -> 获取    -> 读到 A 写完的最新值
//
// 【加锁】SET key token NX PX lease
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - PX: 租约时间，持有者崩溃后锁自动过期，不会死锁
//   - token: 持有者标识，释放时验证，防止误删别人的锁
//
// 【释放】Lua 脚本保证"校验 token + 删除"的原子性：
//   A 超时后锁过期 -> B 拿到锁 -> A 迟到的 Unlock 发现 token 不是
//   自己的，不会把 B 的锁删掉
//
// ============================================================================

var ErrLockNotAcquired = errors.New("获取分布式锁超时")

const defaultRetryInterval = 50 * time.Millisecond

// Coordinator 分布式锁协调器，所有命名互斥锁共用一个 Redis 客户端
type Coordinator struct {
	client *redis.Client
}

func NewCoordinator(client *redis.Client) *Coordinator {
	return &Coordinator{client: client}
}

// WithLock 在命名互斥锁的保护下执行 fn
//
// 语义：
//   - 最多阻塞 waitTimeout 等待锁；等不到返回 ErrLockNotAcquired，fn 不执行
//   - 锁持有 leaseTimeout 后自动过期（崩溃兜底）
//   - fn 无论成功失败，锁都恰好释放一次
func (c *Coordinator) WithLock(ctx context.Context, key string, waitTimeout, leaseTimeout time.Duration, fn func(ctx context.Context) error) error {
	l := newMutex(c.client, key, leaseTimeout)

	if err := l.lock(ctx, waitTimeout); err != nil {
		return err
	}
	defer l.unlock(context.WithoutCancel(ctx))

	return fn(ctx)
}

// mutex 一次加锁的句柄
type mutex struct {
	client *redis.Client
	key    string
	token  string // 锁持有者标识
	lease  time.Duration
}

func newMutex(client *redis.Client, key string, lease time.Duration) *mutex {
	return &mutex{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		lease:  lease,
	}
}

// tryLock 尝试获取锁（非阻塞）
func (l *mutex) tryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.lease).Result()
}

// lock 阻塞式获取锁，最多等待 waitTimeout
func (l *mutex) lock(ctx context.Context, waitTimeout time.Duration) error {
	deadline := time.Now().Add(waitTimeout)

	for {
		success, err := l.tryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}

		if time.Now().Add(defaultRetryInterval).After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(defaultRetryInterval):
			// 继续重试
		}
	}
}

// unlock 释放锁，只删 token 匹配的 key
func (l *mutex) unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.token).Result()
	return err
}
