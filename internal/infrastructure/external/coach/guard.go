// Package coach implements coach.Client for hosted chat models.
//
// Every provider call passes through a guard that paces requests with a
// token bucket, stops calling a failing provider for a while and bounds
// each call with a timeout. Provider errors leave the package as
// shared.DomainError values so the HTTP layer can map them.
package coach

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/pkg/circuitbreaker"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

// GuardConfig tunes pacing and fault tolerance of one provider.
type GuardConfig struct {
	// RequestsPerMinute is the sustained call rate. Zero disables pacing.
	RequestsPerMinute float64
	Burst             int

	// Timeout bounds one provider call.
	Timeout time.Duration
}

// DefaultGuardConfig returns conservative limits for free-tier API keys.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RequestsPerMinute: 15,
		Burst:             3,
		Timeout:           30 * time.Second,
	}
}

type guard struct {
	provider string
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
	timeout  time.Duration
	log      *logger.Logger
}

func newGuard(provider string, cfg GuardConfig, log *logger.Logger) *guard {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("coach"), logger.String("provider", provider))

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultGuardConfig().Timeout
	}

	return &guard{
		provider: provider,
		limiter:  rate.NewLimiter(limit, burst),
		breaker: circuitbreaker.CoachBreaker(provider, countsAgainstProvider,
			func(name string, from, to circuitbreaker.State) {
				log.Warn("coach circuit changed state",
					logger.String("from", from.String()),
					logger.String("to", to.String()))
			}),
		timeout: timeout,
		log:     log,
	}
}

// call runs fn under the guard. classify turns provider-specific errors
// into domain errors; context errors are handled here.
func (g *guard) call(ctx context.Context, fn func(context.Context) (string, error), classify func(error) error) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		// Wait fails early when the token would arrive after the deadline.
		if ctx.Err() != nil {
			return "", g.contextError(ctx.Err())
		}
		return "", shared.WrapError("coach", g.provider, shared.ErrCoachRateLimited, "local request budget exhausted", err)
	}

	var reply string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		out, err := fn(callCtx)
		if err != nil {
			if callCtx.Err() != nil {
				return g.contextError(callCtx.Err())
			}
			return classify(err)
		}
		reply = out
		return nil
	})

	switch {
	case err == nil:
		return reply, nil
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return "", shared.WrapError("coach", g.provider, shared.ErrCoachUnavailable, "provider temporarily disabled after repeated failures", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if !shared.IsAPI(err) {
			return "", g.contextError(err)
		}
	}
	return "", err
}

func (g *guard) contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("coach", g.provider, shared.ErrCoachTimeout, "coach request timed out", err)
	}
	return shared.WrapError("coach", g.provider, shared.ErrCoachUnavailable, "coach request cancelled", err)
}

// countsAgainstProvider keeps client-side problems and throttling from
// opening the circuit.
func countsAgainstProvider(err error) bool {
	if errors.Is(err, shared.ErrRateLimited) || errors.Is(err, shared.ErrValidation) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// statusError maps an HTTP status from a provider to a domain error.
func statusError(provider string, status int, err error) error {
	switch {
	case status == 429:
		return shared.WrapError("coach", provider, shared.ErrCoachRateLimited, "provider rate limit exceeded", err)
	case status == 408 || status == 504:
		return shared.WrapError("coach", provider, shared.ErrCoachTimeout, "provider timed out", err)
	case status >= 400 && status < 500:
		return shared.WrapError("coach", provider, shared.ErrAPI, "provider rejected the request", err)
	default:
		return shared.WrapError("coach", provider, shared.ErrCoachUnavailable, "provider request failed", err)
	}
}
