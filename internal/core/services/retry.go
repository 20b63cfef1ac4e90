package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/logger"
	"github.com/custodia-labs/fleetsync/internal/metrics"
)

// RetryPolicy is the bounded exponential backoff shared by connector calls,
// the data lake writer and the event bridge.
//
// Classification decides what happens after a failure:
//   - AuthExpired: re-authenticate once (when a reauth func is given) and retry immediately
//   - RateLimited: wait the provider's Retry-After, or the computed delay
//   - Transient, WriteConflict: wait the computed delay
//   - anything else: return at once
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a policy from settings.
func NewRetryPolicy(cfg domain.RetrySettings) *RetryPolicy {
	p := &RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Multiplier:  cfg.Multiplier,
		sleep:       sleepContext,
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// WithMaxAttempts returns a copy of the policy with a different attempt bound.
func (p *RetryPolicy) WithMaxAttempts(n int) *RetryPolicy {
	cp := *p
	if n < 1 {
		n = 1
	}
	cp.MaxAttempts = n
	return &cp
}

// Delay returns the wait before the attempt following attempt (1-indexed).
func (p *RetryPolicy) Delay(attempt int, err error) time.Duration {
	if d, ok := domain.RetryAfter(err); ok {
		return d
	}
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Do calls op until it succeeds, fails with a non-retryable error, or the
// attempt bound is reached. reauth may be nil. The single re-authentication
// and the call that follows it do not count against MaxAttempts.
func (p *RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, reauth func(ctx context.Context) error) error {
	reauthed := false
	attempt := 1
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		kind := domain.Classify(err)
		if kind == domain.KindAuthExpired {
			if reauth == nil || reauthed {
				return err
			}
			reauthed = true
			metrics.ProviderRetries.WithLabelValues(kind.String()).Inc()
			if rerr := reauth(ctx); rerr != nil {
				return fmt.Errorf("re-authenticate: %w", rerr)
			}
			continue
		}
		if !kind.Retryable() || attempt >= p.MaxAttempts {
			return err
		}
		metrics.ProviderRetries.WithLabelValues(kind.String()).Inc()

		delay := p.Delay(attempt, err)
		logger.Debug("retrying after error",
			zap.String("kind", kind.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if serr := p.sleep(ctx, delay); serr != nil {
			return serr
		}
		attempt++
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
