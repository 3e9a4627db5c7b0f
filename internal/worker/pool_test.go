package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	p, err := NewPool("test", RateConfig{Concurrency: 2, Rate: rate.Inf})
	require.NoError(t, err)
	defer p.Release()

	var inFlight, peak, done atomic.Int32

	err = p.Run(context.Background(), 20, func(ctx context.Context, i int) error {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		inFlight.Add(-1)
		done.Add(1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(20), done.Load())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_JoinsTaskErrors(t *testing.T) {
	p, err := NewPool("test", RateConfig{Concurrency: 3, Rate: rate.Inf})
	require.NoError(t, err)
	defer p.Release()

	errOdd := errors.New("odd")

	err = p.Run(context.Background(), 6, func(ctx context.Context, i int) error {
		if i%2 == 1 {
			return errOdd
		}
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errOdd)
}

func TestRateConfigFor(t *testing.T) {
	assert.Equal(t, DefaultRateConfigs["embed_post"], RateConfigFor("embed_post"))
	assert.Equal(t, DefaultRateConfigs["default"], RateConfigFor("unknown"))
}
