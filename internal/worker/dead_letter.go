package worker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/PauloHFS/guidebot/internal/metrics"
)

const DefaultDeadLetterCapacity = 100

type DeadLetter struct {
	Job      Job
	LastErr  string
	FailedAt time.Time
}

// DeadLetterQueue keeps the most recent jobs that exhausted their retries.
// The oldest entry is evicted once the capacity is reached.
type DeadLetterQueue struct {
	mu       sync.Mutex
	items    []DeadLetter
	capacity int
	logger   *slog.Logger
}

func NewDeadLetterQueue(logger *slog.Logger, capacity int) *DeadLetterQueue {
	if capacity < 1 {
		capacity = DefaultDeadLetterCapacity
	}
	return &DeadLetterQueue{
		capacity: capacity,
		logger:   logger,
	}
}

func (dlq *DeadLetterQueue) Move(job Job, lastErr error) {
	dlq.mu.Lock()
	defer dlq.mu.Unlock()

	if len(dlq.items) == dlq.capacity {
		evicted := dlq.items[0]
		dlq.items = dlq.items[1:]
		dlq.logger.Warn("dead letter evicted",
			"job_type", evicted.Job.Type,
			"job_key", evicted.Job.Key,
		)
	}

	dlq.items = append(dlq.items, DeadLetter{
		Job:      job,
		LastErr:  lastErr.Error(),
		FailedAt: time.Now(),
	})
	metrics.DeadLetterJobs.Set(float64(len(dlq.items)))

	dlq.logger.Warn("job moved to dead letter queue",
		"job_type", job.Type,
		"job_key", job.Key,
		"attempts", job.Attempts,
		"error", lastErr.Error(),
	)
}

// List returns a copy of the dead letters, oldest first.
func (dlq *DeadLetterQueue) List() []DeadLetter {
	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	return append([]DeadLetter(nil), dlq.items...)
}

func (dlq *DeadLetterQueue) Len() int {
	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	return len(dlq.items)
}

// Stats counts dead letters per job type.
func (dlq *DeadLetterQueue) Stats() map[string]int {
	dlq.mu.Lock()
	defer dlq.mu.Unlock()

	stats := make(map[string]int)
	for _, item := range dlq.items {
		stats[item.Job.Type]++
	}
	return stats
}

// Requeue moves dead letters back into p and returns how many were accepted.
// Jobs already requeued maxRequeues times are kept; zero means no limit.
func (dlq *DeadLetterQueue) Requeue(p *Processor, maxRequeues int) int {
	dlq.mu.Lock()
	items := dlq.items
	dlq.items = nil
	dlq.mu.Unlock()

	var kept []DeadLetter
	requeued := 0
	for _, item := range items {
		if maxRequeues > 0 && item.Job.Requeues >= maxRequeues {
			kept = append(kept, item)
			continue
		}

		job := item.Job
		job.Attempts = 0
		job.Requeues++
		if err := p.Enqueue(job); err != nil {
			kept = append(kept, item)
			continue
		}
		requeued++
	}

	dlq.mu.Lock()
	dlq.items = append(kept, dlq.items...)
	if len(dlq.items) > dlq.capacity {
		dlq.items = dlq.items[len(dlq.items)-dlq.capacity:]
	}
	metrics.DeadLetterJobs.Set(float64(len(dlq.items)))
	dlq.mu.Unlock()
	return requeued
}
