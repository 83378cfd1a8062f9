package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestBatchCommitDispatches(t *testing.T) {
	r := New(2, 16)
	defer r.Close()

	var ran int32
	b := r.NewBatch()
	for i := 0; i < 3; i++ {
		b.Enqueue(Effect{
			Name: "count",
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&ran, 1)
				return nil
			},
		})
	}

	// Commit 之前效果不执行
	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&ran); n != 0 {
		t.Fatalf("Commit 前不应执行效果, ran=%d", n)
	}

	b.Commit()
	r.Drain()
	if n := atomic.LoadInt32(&ran); n != 3 {
		t.Fatalf("ran = %d, want 3", n)
	}

	// Commit 幂等，重复调用不会二次投递
	b.Commit()
	r.Drain()
	if n := atomic.LoadInt32(&ran); n != 3 {
		t.Fatalf("重复 Commit 后 ran = %d, want 3", n)
	}
}

func TestBatchRollbackDiscards(t *testing.T) {
	r := New(1, 16)
	defer r.Close()

	var ran int32
	b := r.NewBatch()
	b.Enqueue(Effect{
		Name: "leak",
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		},
	})

	b.Rollback()
	b.Commit() // 回滚之后 Commit 不生效
	r.Drain()

	if n := atomic.LoadInt32(&ran); n != 0 {
		t.Fatalf("回滚后效果不应执行, ran=%d", n)
	}
}

func TestEffectFailureDoesNotBlockOthers(t *testing.T) {
	r := New(1, 16)
	defer r.Close()

	var ran int32
	b := r.NewBatch()
	b.Enqueue(Effect{
		Name: "boom",
		Run: func(ctx context.Context) error {
			return errors.New("下游不可用")
		},
	})
	b.Enqueue(Effect{
		Name: "after",
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		},
	})
	b.Commit()
	r.Drain()

	if n := atomic.LoadInt32(&ran); n != 1 {
		t.Fatalf("前序效果失败不应影响后续, ran=%d", n)
	}
}

type relayRow struct {
	ID    int64 `gorm:"primaryKey;autoIncrement"`
	Value int64
}

func TestInTransactionCommit(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&relayRow{}); err != nil {
		t.Fatalf("建表失败: %v", err)
	}

	r := New(1, 16)
	defer r.Close()

	var ran int32
	err := r.InTransaction(context.Background(), db, func(tx *gorm.DB, b *Batch) error {
		if err := tx.Create(&relayRow{Value: 1}).Error; err != nil {
			return err
		}
		b.Enqueue(Effect{Name: "notify", Run: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}})
		return nil
	})
	if err != nil {
		t.Fatalf("InTransaction 失败: %v", err)
	}
	r.Drain()

	var count int64
	db.Model(&relayRow{}).Count(&count)
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}
	if n := atomic.LoadInt32(&ran); n != 1 {
		t.Fatalf("提交后效果应执行, ran=%d", n)
	}
}

func TestInTransactionRollback(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&relayRow{}); err != nil {
		t.Fatalf("建表失败: %v", err)
	}

	r := New(1, 16)
	defer r.Close()

	boom := errors.New("业务失败")
	var ran int32
	err := r.InTransaction(context.Background(), db, func(tx *gorm.DB, b *Batch) error {
		if err := tx.Create(&relayRow{Value: 1}).Error; err != nil {
			return err
		}
		b.Enqueue(Effect{Name: "notify", Run: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("应透传业务错误, got %v", err)
	}
	r.Drain()

	var count int64
	db.Model(&relayRow{}).Count(&count)
	if count != 0 {
		t.Fatalf("回滚后 rows = %d, want 0", count)
	}
	if n := atomic.LoadInt32(&ran); n != 0 {
		t.Fatalf("回滚后效果不应执行, ran=%d", n)
	}
}
