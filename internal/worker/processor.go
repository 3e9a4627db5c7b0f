package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PauloHFS/guidebot/internal/contextkeys"
	"github.com/PauloHFS/guidebot/internal/logging"
	"github.com/PauloHFS/guidebot/internal/metrics"
)

var (
	ErrQueueFull        = errors.New("job queue is full")
	ErrProcessorStopped = errors.New("job processor is stopped")
)

const DefaultQueueSize = 256

// Job is a unit of background work. Jobs with the same Type and Key are
// coalesced while one is still waiting in the queue.
type Job struct {
	Type      string
	Key       string
	CreatedAt time.Time
	Attempts  int
	// Requeues counts how often the job came back from the dead letter queue.
	Requeues int
	// RequestID ties the job's log lines and outbound calls to the request
	// that queued it.
	RequestID string
}

func (j Job) id() string {
	return j.Type + ":" + j.Key
}

type HandlerFunc func(ctx context.Context, job Job) error

// Processor runs queued jobs one at a time, retrying failures with its
// policy and moving exhausted jobs to the dead letter queue.
type Processor struct {
	logger   *slog.Logger
	policy   Policy
	sleep    Sleeper
	handlers map[string]HandlerFunc
	dlq      *DeadLetterQueue

	queue   chan Job
	mu      sync.Mutex
	pending map[string]struct{}
	stopped bool
	wg      sync.WaitGroup

	requeueEvery time.Duration
	maxRequeues  int
}

type ProcessorOption func(*Processor)

func WithQueueSize(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.queue = make(chan Job, n)
		}
	}
}

func WithJobSleeper(s Sleeper) ProcessorOption {
	return func(p *Processor) {
		p.sleep = s
	}
}

func WithDeadLetterQueue(dlq *DeadLetterQueue) ProcessorOption {
	return func(p *Processor) {
		p.dlq = dlq
	}
}

// WithRequeue moves dead letters back onto the queue every interval. A job
// that has already been requeued maxRequeues times stays dead; zero means no
// limit.
func WithRequeue(interval time.Duration, maxRequeues int) ProcessorOption {
	return func(p *Processor) {
		p.requeueEvery = interval
		p.maxRequeues = maxRequeues
	}
}

func NewProcessor(l *slog.Logger, policy Policy, opts ...ProcessorOption) *Processor {
	if l == nil {
		l = logging.Get()
	}
	if policy.Name == "" {
		policy.Name = "job"
	}

	p := &Processor{
		logger:   l,
		policy:   policy,
		handlers: make(map[string]HandlerFunc),
		queue:    make(chan Job, DefaultQueueSize),
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dlq == nil {
		p.dlq = NewDeadLetterQueue(l, DefaultDeadLetterCapacity)
	}
	return p
}

// Handle registers the handler for a job type. Call it before Start.
func (p *Processor) Handle(jobType string, h HandlerFunc) {
	p.handlers[jobType] = h
}

func (p *Processor) DeadLetters() *DeadLetterQueue {
	return p.dlq
}

// Enqueue adds a job without blocking. A job already waiting under the same
// type and key is not queued twice.
func (p *Processor) Enqueue(job Job) error {
	if _, ok := p.handlers[job.Type]; !ok {
		return fmt.Errorf("unknown job type %q", job.Type)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrProcessorStopped
	}
	if _, ok := p.pending[job.id()]; ok {
		return nil
	}

	select {
	case p.queue <- job:
		p.pending[job.id()] = struct{}{}
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Start consumes the queue in a goroutine until ctx is done. Jobs still
// queued at that point are dropped.
func (p *Processor) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.logger.Info("worker started", "queue_size", cap(p.queue))

		var requeue <-chan time.Time
		if p.requeueEvery > 0 {
			t := time.NewTicker(p.requeueEvery)
			defer t.Stop()
			requeue = t.C
		}

		for {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.stopped = true
				p.mu.Unlock()
				p.logger.Info("worker signal received: waiting for active jobs to finish",
					"dropped", len(p.queue))
				return
			case job := <-p.queue:
				p.process(ctx, job)
			case <-requeue:
				if n := p.dlq.Requeue(p, p.maxRequeues); n > 0 {
					p.logger.Info("dead letters requeued", "count", n, "remaining", p.dlq.Len())
				}
			}
		}
	}()
}

// Wait blocks until the worker goroutine has returned.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) process(ctx context.Context, job Job) {
	p.mu.Lock()
	delete(p.pending, job.id())
	metrics.QueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()

	start := time.Now()
	ctx, event := logging.NewEventContext(ctx)
	event.Add(
		slog.String("job_type", job.Type),
		slog.String("job_key", job.Key),
		slog.Int("requeues", job.Requeues),
		slog.Float64("queued_ms", float64(start.Sub(job.CreatedAt).Nanoseconds())/1e6),
	)
	if job.RequestID != "" {
		ctx = contextkeys.WithRequestID(ctx, job.RequestID)
		event.Add(slog.String("request_id", job.RequestID))
	}

	h := p.handlers[job.Type]
	_, err := RetryWithSleeper(ctx, p.policy, p.sleep, func(ctx context.Context) (struct{}, error) {
		job.Attempts++
		return struct{}{}, h(ctx, job)
	})

	duration := time.Since(start)
	event.Add(
		slog.Int("attempts", job.Attempts),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/1e6),
	)

	if err != nil {
		metrics.JobDuration.WithLabelValues(job.Type, "failed").Observe(duration.Seconds())
		p.logger.ErrorContext(ctx, "job processing failed",
			append(event.Attrs(), slog.String("error", err.Error()))...)

		if ctx.Err() == nil {
			p.dlq.Move(job, err)
		}
		return
	}

	metrics.JobDuration.WithLabelValues(job.Type, "success").Observe(duration.Seconds())
	p.logger.InfoContext(ctx, "job completed", event.Attrs()...)
}
