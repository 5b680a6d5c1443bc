package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunPollsUntilCancelled(t *testing.T) {
	var runs int32
	p := New(10*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(3))
}

func TestRunNeverOverlaps(t *testing.T) {
	var inFlight, maxInFlight, cancelled int32
	p := New(10*time.Millisecond, func(ctx context.Context) error {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		// slower than the interval: each run is cut short by the next tick
		<-ctx.Done()
		atomic.AddInt32(&cancelled, 1)
		return ctx.Err()
	}, WithTimeout(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&cancelled), int32(2))
	assert.Zero(t, atomic.LoadInt32(&inFlight))
}

func TestRunReportsErrorsButNotCancellations(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	boom := errors.New("api down")

	p := New(10*time.Millisecond, func(context.Context) error { return boom },
		WithErrorHandler(func(err error) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		}),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, errs)
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
}

func TestRunTimeoutBoundsSingleRun(t *testing.T) {
	var timedOut int32
	p := New(time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			atomic.AddInt32(&timedOut, 1)
		}
		return ctx.Err()
	}, WithTimeout(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	assert.Equal(t, int32(1), atomic.LoadInt32(&timedOut))
}
