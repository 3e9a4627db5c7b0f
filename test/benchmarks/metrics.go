package benchmarks

import (
	"fmt"
	"slices"
	"time"
)

// Latencies collects samples for one pipeline stage (embed, search,
// complete) and reports nearest-rank percentiles.
type Latencies struct {
	Stage   string
	samples []time.Duration
}

func NewLatencies(stage string) *Latencies {
	return &Latencies{Stage: stage}
}

func (l *Latencies) Record(d time.Duration) {
	l.samples = append(l.samples, d)
}

// Time runs fn and records its duration, whether or not it fails.
func (l *Latencies) Time(fn func() error) error {
	start := time.Now()
	err := fn()
	l.Record(time.Since(start))
	return err
}

func (l *Latencies) Len() int {
	return len(l.samples)
}

// Percentile returns the sample at rank p in [0, 1].
func (l *Latencies) Percentile(p float64) time.Duration {
	if len(l.samples) == 0 {
		return 0
	}
	sorted := slices.Clone(l.samples)
	slices.Sort(sorted)
	return sorted[int(float64(len(sorted)-1)*p)]
}

func (l *Latencies) Mean() time.Duration {
	if len(l.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range l.samples {
		total += d
	}
	return total / time.Duration(len(l.samples))
}

func (l *Latencies) Max() time.Duration {
	if len(l.samples) == 0 {
		return 0
	}
	return slices.Max(l.samples)
}

// Within reports whether the p-th percentile stays under budget.
func (l *Latencies) Within(p float64, budget time.Duration) bool {
	return l.Percentile(p) <= budget
}

func (l *Latencies) String() string {
	return fmt.Sprintf("%s: n=%d mean=%s p50=%s p95=%s max=%s",
		l.Stage, len(l.samples), l.Mean(), l.Percentile(0.5), l.Percentile(0.95), l.Max())
}
