package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/cardflow/types"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoff_RetryAndSuccess(t *testing.T) {
	b := NewBackoff(fastPolicy(3), zap.NewNop())

	calls := 0
	got, err := Do(context.Background(), b, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestBackoff_Exhausted(t *testing.T) {
	var retried []int
	p := fastPolicy(2)
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }
	b := NewBackoff(p, nil)

	persistent := errors.New("persistent")
	calls := 0
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		return persistent
	})

	assert.ErrorIs(t, err, persistent)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestBackoff_NonRetryable(t *testing.T) {
	p := fastPolicy(5)
	p.ShouldRetry = func(err error) bool { return types.IsRetryable(err) }
	b := NewBackoff(p, nil)

	calls := 0
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		return types.NewError(types.ErrInvalidRequest, "bad dsn")
	})

	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	assert.Equal(t, 1, calls)
}

func TestBackoff_CancelledWhileWaiting(t *testing.T) {
	p := fastPolicy(5)
	p.InitialDelay = time.Hour
	p.MaxDelay = time.Hour
	b := NewBackoff(p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := b.Do(ctx, func(context.Context) error {
		cancel()
		return errors.New("down")
	})

	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(err))
}

func TestBackoff_DelayBounds(t *testing.T) {
	b := NewBackoff(Policy{MaxRetries: 10, InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2, Jitter: true}, nil)
	for attempt := 1; attempt <= 10; attempt++ {
		d := b.delay(attempt)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 63*time.Millisecond)
	}
}

func TestWithRetry(t *testing.T) {
	parseErr := types.NewError(types.ErrRecoveryParse, "bad json")
	formatErr := types.NewError(types.ErrProviderResponseFormat, "no content")
	authErr := types.NewError(types.ErrProviderRequest, "401")
	shouldRetry := OnCodes(types.ErrRecoveryParse, types.ErrProviderResponseFormat)

	tests := []struct {
		name      string
		attempts  int
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{"first try succeeds", 2, []error{nil}, 1, nil},
		{"parse then success", 2, []error{parseErr, nil}, 2, nil},
		{"format then success", 2, []error{formatErr, nil}, 2, nil},
		{"exhausted returns last error", 2, []error{parseErr, formatErr}, 2, formatErr},
		{"non-retryable stops", 3, []error{authErr, nil}, 1, authErr},
		{"zero attempts means one", 0, []error{parseErr}, 1, parseErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []int
			got, err := WithRetry(context.Background(), tt.attempts, shouldRetry, func(_ context.Context, attempt int) (int, error) {
				seen = append(seen, attempt)
				if e := tt.errs[attempt-1]; e != nil {
					return 0, e
				}
				return attempt * 10, nil
			})

			assert.Len(t, seen, tt.wantCalls)
			if tt.wantErr != nil {
				assert.Same(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls*10, got)
		})
	}
}

func TestWithRetry_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := WithRetry(ctx, 3, nil, func(context.Context, int) (int, error) {
		calls++
		return 0, nil
	})

	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(err))
	assert.Zero(t, calls)
}

func TestWithRetry_CancelledErrorIsNotRetried(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), 3, nil, func(context.Context, int) (int, error) {
		calls++
		return 0, types.NewError(types.ErrCancelled, "request cancelled")
	})

	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(err))
	assert.Equal(t, 1, calls)
}
