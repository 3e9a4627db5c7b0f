package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
)

// Policy controls how Retry spaces out attempts.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Retryable reports whether a failure is worth another attempt.
	// A nil Retryable retries every error.
	Retryable func(error) bool

	// Name labels log lines and metrics.
	Name string
}

var DefaultPolicy = Policy{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   10 * time.Second,
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Exponential returns min(BaseDelay*2^attempt, MaxDelay) for a 0-based attempt.
func Exponential(attempt int, p Policy) time.Duration {
	if attempt <= 0 {
		return min(p.BaseDelay, p.MaxDelay)
	}

	// Compare against MaxDelay shifted down so BaseDelay*2^attempt is only
	// computed when it fits under the cap and cannot overflow.
	if attempt >= 63 || p.BaseDelay > p.MaxDelay>>attempt {
		return p.MaxDelay
	}

	return p.BaseDelay << attempt
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	if p.Name == "" {
		p.Name = "default"
	}
	return p
}

// Retry runs op up to MaxRetries+1 times. The error of the last attempt is
// returned as is.
func Retry[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	return RetryWithSleeper(ctx, p, sleepContext, op)
}

// RetryWithSleeper is Retry with an injectable wait. A nil sleep waits on a
// timer.
func RetryWithSleeper[T any](ctx context.Context, p Policy, sleep Sleeper, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	if sleep == nil {
		sleep = sleepContext
	}

	var (
		zero    T
		lastErr error
	)

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == p.MaxRetries {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			break
		}

		delay := Exponential(attempt, p)
		metrics.Retries.WithLabelValues(p.Name).Inc()
		logging.Get().InfoContext(ctx, "retrying after backoff",
			slog.String("operation", p.Name),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", p.MaxRetries),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}
