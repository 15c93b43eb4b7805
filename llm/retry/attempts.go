package retry

import (
	"context"

	"github.com/BaSui01/cardflow/types"
)

// Op 一次完整尝试；attempt 从 1 开始
type Op[T any] func(ctx context.Context, attempt int) (T, error)

// WithRetry runs op up to attempts times with no delay between tries.
// A failure for which shouldRetry returns false is returned at once.
// When every attempt fails, the last error is returned.
//
// Cancellation is checked before each attempt and is never retried.
func WithRetry[T any](ctx context.Context, attempts int, shouldRetry func(error) bool, op Op[T]) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, types.FromContext(err)
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if types.IsErrorCode(err, types.ErrCancelled) {
			return zero, err
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// OnCodes 返回仅对给定错误码重试的判定函数
func OnCodes(codes ...types.ErrorCode) func(error) bool {
	return func(err error) bool {
		return types.IsErrorCode(err, codes...)
	}
}
