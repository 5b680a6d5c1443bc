// Package poller runs a fetch on a fixed interval. Each run gets its own
// context, and a tick cancels the run still in flight before starting the
// next one, so runs never overlap.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Func func(ctx context.Context) error

type Poller struct {
	interval time.Duration
	timeout  time.Duration
	fn       Func
	onError  func(error)
	logger   *zap.Logger
}

type Option func(*Poller)

// WithTimeout bounds a single run. It defaults to the interval.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithErrorHandler is called with every failed run, except runs cut short by a tick.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Poller) { p.onError = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

func New(interval time.Duration, fn Func, opts ...Option) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p := &Poller{
		interval: interval,
		timeout:  interval,
		fn:       fn,
		onError:  func(error) {},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	cancel, done := p.start(ctx)
	for {
		select {
		case <-ctx.Done():
			cancel()
			<-done
			return
		case <-ticker.C:
			cancel()
			<-done
			cancel, done = p.start(ctx)
		}
	}
}

func (p *Poller) start(parent context.Context) (context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := p.fn(ctx)
		if err == nil {
			return
		}
		// superseded by the next tick or shutdown
		if ctx.Err() == context.Canceled {
			p.logger.Debug("Poll cancelled", zap.Error(err))
			return
		}
		p.logger.Warn("Poll failed", zap.Error(err))
		p.onError(err)
	}()
	return cancel, done
}
