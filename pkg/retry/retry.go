// Package retry runs an operation again after transient failures, waiting
// with exponential backoff and jitter between attempts.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// stopError marks an error that ends the loop at once.
type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Permanent wraps err so Do returns it without further attempts.
// Do unwraps it again before returning.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var s *stopError
	return errors.As(err, &s)
}

// Policy describes how often and how patiently to retry.
type Policy struct {
	// Attempts counts the first call too. Values below 1 mean 1.
	Attempts int

	// Delay is the wait before the second attempt; it doubles afterwards
	// up to MaxDelay.
	Delay    time.Duration
	MaxDelay time.Duration

	// Jitter spreads each wait by +/- this fraction (0..1).
	Jitter float64

	// RetryIf selects retryable errors. Nil retries every error.
	RetryIf func(error) bool

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Option adjusts a Policy.
type Option func(*Policy)

func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.Attempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d >= 0 {
			p.Delay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.MaxDelay = d
		}
	}
}

func WithJitter(j float64) Option {
	return func(p *Policy) {
		if j >= 0 && j <= 1 {
			p.Jitter = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(p *Policy) { p.RetryIf = fn }
}

func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy Policy
}

// New builds a Retrier. Without options it makes 3 attempts starting at 100ms.
func New(opts ...Option) *Retrier {
	p := Policy{Attempts: 3, Delay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, Jitter: 0.1}
	for _, opt := range opts {
		opt(&p)
	}
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	return &Retrier{policy: p}
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do calls op until it succeeds, returns a non-retryable error or the
// attempts run out. The last error is returned; a cancelled ctx stops
// waiting and returns the last error seen (or ctx.Err() if op never ran).
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var stop *stopError
		if errors.As(err, &stop) {
			return stop.err
		}
		last = err

		if attempt >= r.policy.Attempts || !r.retryable(err) {
			return err
		}

		wait := r.policy.backoff(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, wait)
		}
		if !sleep(ctx, wait) {
			return last
		}
	}
}

func (r *Retrier) retryable(err error) bool {
	if r.policy.RetryIf == nil {
		return true
	}
	return r.policy.RetryIf(err)
}

// backoff returns the wait after the given (1-based) failed attempt.
func (p Policy) backoff(attempt int) time.Duration {
	wait := p.Delay
	for i := 1; i < attempt && wait < p.MaxDelay; i++ {
		wait *= 2
	}
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	if p.Jitter > 0 && wait > 0 {
		spread := float64(wait) * p.Jitter
		wait += time.Duration(spread * (2*rand.Float64() - 1))
	}
	return max(wait, 0)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Do runs op with a Retrier built from opts.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// ForConflicts retries optimistic-lock conflicts. The caller reloads state
// before each new attempt, so waits stay short.
func ForConflicts(isConflict func(error) bool, attempts int) *Retrier {
	return New(
		WithMaxAttempts(attempts),
		WithInitialDelay(10*time.Millisecond),
		WithMaxDelay(200*time.Millisecond),
		WithJitter(0.2),
		WithRetryIf(isConflict),
	)
}

// ForStorage retries transient storage reads.
func ForStorage(isTransient func(error) bool) *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0.05),
		WithRetryIf(isTransient),
	)
}
