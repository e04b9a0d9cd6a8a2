package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("busy")

func fast(opts ...Option) *Retrier {
	return New(append([]Option{WithInitialDelay(0), WithJitter(0)}, opts...)...)
}

func TestDo(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		opts      []Option
		permanent bool
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", failures: 0, wantCalls: 1},
		{name: "recovers", failures: 2, wantCalls: 3},
		{name: "gives up", failures: 5, wantCalls: 3, wantErr: true},
		{name: "not retryable", failures: 5, opts: []Option{WithRetryIf(func(error) bool { return false })}, wantCalls: 1, wantErr: true},
		{name: "permanent", failures: 5, permanent: true, wantCalls: 1, wantErr: true},
		{name: "single attempt", failures: 1, opts: []Option{WithMaxAttempts(1)}, wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fast(tt.opts...).Do(context.Background(), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					if tt.permanent {
						return Permanent(errBusy)
					}
					return errBusy
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.ErrorIs(t, err, errBusy)
				assert.False(t, IsPermanent(err), "permanent wrapper is removed")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := New().Do(ctx, func(context.Context) error { calls++; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDo_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := New(WithInitialDelay(time.Minute)).Do(ctx, func(context.Context) error { return errBusy })
	assert.ErrorIs(t, err, errBusy, "last operation error wins over ctx error")
}

func TestOnRetry(t *testing.T) {
	var attempts []int
	_ = fast(WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	})).Do(context.Background(), func(context.Context) error { return errBusy })
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestBackoff(t *testing.T) {
	p := Policy{Delay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, p.backoff(1))
	assert.Equal(t, 20*time.Millisecond, p.backoff(2))
	assert.Equal(t, 40*time.Millisecond, p.backoff(3))
	assert.Equal(t, 50*time.Millisecond, p.backoff(4))
	assert.Equal(t, 50*time.Millisecond, p.backoff(10))

	p.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := p.backoff(1)
		assert.GreaterOrEqual(t, d, 5*time.Millisecond)
		assert.LessOrEqual(t, d, 15*time.Millisecond)
	}
}

func TestPresets(t *testing.T) {
	isBusy := func(err error) bool { return errors.Is(err, errBusy) }

	c := ForConflicts(isBusy, 5).Policy()
	assert.Equal(t, 5, c.Attempts)
	assert.True(t, c.RetryIf(errBusy))

	s := ForStorage(isBusy).Policy()
	assert.Equal(t, 3, s.Attempts)
	assert.Equal(t, time.Second, s.MaxDelay)

	assert.Equal(t, 1, ForConflicts(isBusy, 0).Policy().Attempts)
}
