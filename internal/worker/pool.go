package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
)

// Pool runs batches of tasks with bounded concurrency, paced by a token
// bucket so outbound providers are not flooded.
type Pool struct {
	name    string
	pool    *ants.Pool
	limiter *rate.Limiter
	logger  *slog.Logger
}

type PoolOption func(*Pool)

func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewPool(name string, cfg RateConfig, opts ...PoolOption) (*Pool, error) {
	cfg = cfg.normalize()

	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pool: %w", name, err)
	}

	p := &Pool{
		name:    name,
		pool:    pool,
		limiter: newLimiter(cfg),
		logger:  logging.Get(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Run calls task for every index in [0, n). It waits for every submitted
// task and returns all task errors joined.
func (p *Pool) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for i := range n {
		if err := waitLimiter(ctx, p.limiter); err != nil {
			record(err)
			break
		}

		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()

			start := time.Now()
			status := "success"
			if err := task(ctx, i); err != nil {
				status = "failed"
				record(err)
			}
			metrics.TaskDuration.WithLabelValues(p.name, status).Observe(time.Since(start).Seconds())
			metrics.TasksProcessed.WithLabelValues(p.name, status).Inc()
		})
		if submitErr != nil {
			wg.Done()
			record(fmt.Errorf("failed to submit %s task: %w", p.name, submitErr))
			break
		}
	}

	wg.Wait()

	if len(errs) > 0 {
		p.logger.WarnContext(ctx, "pool finished with errors",
			slog.String("pool", p.name),
			slog.Int("tasks", n),
			slog.Int("errors", len(errs)),
		)
	}

	return errors.Join(errs...)
}

func (p *Pool) Release() {
	p.pool.Release()
}
