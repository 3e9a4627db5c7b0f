package worker

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

type RateConfig struct {
	Concurrency int
	Rate        rate.Limit
	Burst       int
}

var DefaultRateConfigs = map[string]RateConfig{
	"fetch_post": {Concurrency: 4, Rate: 5, Burst: 5},
	"embed_post": {Concurrency: 4, Rate: 2, Burst: 4},
	"default":    {Concurrency: 2, Rate: 1, Burst: 2},
}

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateConfigFor returns the configuration registered for a task type, or the
// default one.
func RateConfigFor(taskType string) RateConfig {
	if cfg, ok := DefaultRateConfigs[taskType]; ok {
		return cfg
	}
	return DefaultRateConfigs["default"]
}

func (c RateConfig) normalize() RateConfig {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Rate <= 0 {
		c.Rate = rate.Inf
	}
	if c.Burst < 1 {
		c.Burst = c.Concurrency
	}
	return c
}

func newLimiter(c RateConfig) *rate.Limiter {
	return rate.NewLimiter(c.Rate, c.Burst)
}

func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	if err := l.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRateLimitExceeded
	}
	return nil
}
