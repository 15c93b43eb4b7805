package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/types"
)

// Policy 指数退避策略
type Policy struct {
	MaxRetries   int                                               // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration                                     // 初始延迟
	MaxDelay     time.Duration                                     // 最大延迟
	Multiplier   float64                                           // 倍增因子
	Jitter       bool                                              // ±25% 随机抖动
	ShouldRetry  func(err error) bool                              // 为空则重试所有错误
	OnRetry      func(attempt int, err error, delay time.Duration) // 重试回调
}

// DefaultPolicy 启动期依赖的默认策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Backoff 指数退避重试器
type Backoff struct {
	policy Policy
	logger *zap.Logger
}

// NewBackoff creates a retryer. Out-of-range policy fields fall back to sane values.
func NewBackoff(policy Policy, logger *zap.Logger) *Backoff {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 500 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 10 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	return &Backoff{policy: policy, logger: logger}
}

// Do runs fn until it succeeds, returns a non-retryable error or the
// policy is exhausted.
func (b *Backoff) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is the typed form of Backoff.Do.
//
//	db, err := retry.Do(ctx, b, func(ctx context.Context) (*gorm.DB, error) {
//	    return gorm.Open(dialector, cfg)
//	})
func Do[T any](ctx context.Context, b *Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= b.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := b.delay(attempt)
			b.logger.Debug("重试中",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", b.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if b.policy.OnRetry != nil {
				b.policy.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, types.FromContext(ctx.Err())
			case <-timer.C:
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				b.logger.Info("重试成功", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if b.policy.ShouldRetry != nil && !b.policy.ShouldRetry(err) {
			b.logger.Debug("错误不可重试", zap.Error(err))
			return zero, err
		}
	}

	b.logger.Warn("重试次数耗尽",
		zap.Int("attempts", b.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return zero, lastErr
}

// delay = initial * multiplier^(attempt-1)，不超过 MaxDelay，不低于 InitialDelay
func (b *Backoff) delay(attempt int) time.Duration {
	d := float64(b.policy.InitialDelay) * math.Pow(b.policy.Multiplier, float64(attempt-1))
	if d > float64(b.policy.MaxDelay) {
		d = float64(b.policy.MaxDelay)
	}
	if b.policy.Jitter {
		jitter := d * 0.25
		d += (rand.Float64()*2 - 1) * jitter
	}
	if d < float64(b.policy.InitialDelay) {
		d = float64(b.policy.InitialDelay)
	}
	return time.Duration(d)
}
