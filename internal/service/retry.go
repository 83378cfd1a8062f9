package service

import (
	"context"
	"errors"
	"time"

	"orderpay/internal/repository"
)

// ErrConflictExceeded 乐观锁冲突重试次数用尽，放弃并上报调用方
var ErrConflictExceeded = errors.New("系统繁忙，请稍后重试")

// withVersionRetry 乐观锁写入的重试包装
//
// fn 返回 ErrOptimisticLock 时退避后重试，最多 maxAttempts 次；
// 其他错误（包括业务错误）直接透传，不消耗重试。
// 次数用尽返回 ErrConflictExceeded —— 有界重试，绝不无限打转
func withVersionRetry(ctx context.Context, maxAttempts int, backoff time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if !errors.Is(err, repository.ErrOptimisticLock) {
			return err
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			// 退避后重读重试
		}
	}

	return ErrConflictExceeded
}
