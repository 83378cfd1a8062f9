package relay

import (
	"context"
	"log"
	"sync"

	"gorm.io/gorm"
)

// ============================================================================
// 事务后事件分发
// ============================================================================
//
// 【为什么不在业务事务里直接做后续动作？】
//
// 支付成功后要把订单置为 CONFIRMED、把事件发给下游。如果这些动作和扣款
// 放在同一个事务里，任何一个失败都会把已经成功的扣款回滚 ——
// "钱动了" 和 "账记了" 必须解耦。
//
// 【机制】每个业务事务挂一个 Batch：
//   - 事务执行中 Enqueue 只是把效果攒在内存里
//   - 事务提交成功 -> Commit 把效果投递到 worker 池异步执行
//   - 事务回滚     -> Rollback 直接丢弃，效果不会泄漏
//
// 效果在独立协程里跑，请求先返回、效果后生效（最终一致）。
// 每个效果自己保证幂等：执行失败只记日志，不重试，也绝不回滚
// 已经提交的触发事务。
//
// ============================================================================

// Effect 事务提交后要执行的一个效果
type Effect struct {
	Name string
	Run  func(ctx context.Context) error
}

// Relay 提交后效果的分发器（进程级单例，worker 池消费）
type Relay struct {
	queue   chan Effect
	pending sync.WaitGroup // 已投递未执行完的效果
	workers sync.WaitGroup
}

func New(workers, queueSize int) *Relay {
	if workers <= 0 {
		workers = 1
	}
	r := &Relay{
		queue: make(chan Effect, queueSize),
	}
	for i := 0; i < workers; i++ {
		r.workers.Add(1)
		go r.worker()
	}
	return r
}

func (r *Relay) worker() {
	defer r.workers.Done()

	// 效果不继承请求的 ctx：触发请求可能早就返回了
	ctx := context.Background()

	for effect := range r.queue {
		if err := effect.Run(ctx); err != nil {
			log.Printf("[EventRelay] 效果执行失败（不重试）: name=%s, err=%v", effect.Name, err)
		}
		r.pending.Done()
	}
}

// Drain 等待所有已投递的效果执行完（优雅关闭用）
func (r *Relay) Drain() {
	r.pending.Wait()
}

// Close 停止接收并等待 worker 退出，须在所有业务请求结束后调用
func (r *Relay) Close() {
	r.pending.Wait()
	close(r.queue)
	r.workers.Wait()
}

// NewBatch 为一个工作单元创建效果缓冲
func (r *Relay) NewBatch() *Batch {
	return &Batch{relay: r}
}

// InTransaction 执行一个带效果缓冲的数据库事务
//
// fn 里攒的效果只有在事务提交成功后才会投递；事务失败全部丢弃。
// 这是系统里唯一的提交边界入口，业务代码不自己调 db.Transaction。
func (r *Relay) InTransaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB, b *Batch) error) error {
	b := r.NewBatch()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, b)
	})
	if err != nil {
		b.Rollback()
		return err
	}

	b.Commit()
	return nil
}

// Batch 单个工作单元内攒起来的效果
type Batch struct {
	relay   *Relay
	effects []Effect
	done    bool
}

// Enqueue 登记一个效果，此时不执行
func (b *Batch) Enqueue(e Effect) {
	b.effects = append(b.effects, e)
}

// Commit 事务提交成功后调用，把效果交给 worker 池
func (b *Batch) Commit() {
	if b.done {
		return
	}
	b.done = true
	for _, e := range b.effects {
		b.relay.pending.Add(1)
		b.relay.queue <- e
	}
	b.effects = nil
}

// Rollback 事务失败后调用，丢弃全部效果
func (b *Batch) Rollback() {
	b.done = true
	b.effects = nil
}
