package poller

import (
	"context"
	"sync"
	"time"

	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"
)

// ReadFunc is one execution of a view's read path
type ReadFunc func(ctx context.Context) error

type Options struct {
	Name        string
	TickTimeout time.Duration
	Logger      *logger.Logger
}

// Poller re-runs a read path on a fixed interval so a view converges on
// changes it was not signalled about. Errors are logged and never stop
// the loop.
type Poller struct {
	interval time.Duration
	fn       ReadFunc
	name     string
	timeout  time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func New(interval time.Duration, fn ReadFunc, opts Options) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "poller"
	}
	if opts.TickTimeout <= 0 || opts.TickTimeout > interval {
		opts.TickTimeout = interval
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}

	return &Poller{
		interval: interval,
		fn:       fn,
		name:     opts.Name,
		timeout:  opts.TickTimeout,
		log:      opts.Logger.Component("poller").WithField("poller", opts.Name),
	}
}

// Start runs fn once right away and then on every tick until Stop is
// called or ctx ends. Starting a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	metrics.PollersActive.Inc()
	go p.loop(ctx, p.done)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer metrics.PollersActive.Dec()

	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.fn(tickCtx)
	metrics.RecordPollTick(p.name, err == nil)
	if err != nil && ctx.Err() == nil {
		p.log.WithError(err).Warn("poll tick failed")
	}
}

// Stop cancels the loop and waits for an in-flight tick to return. Safe to
// call more than once and on a poller that never started.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the loop is active. A poller whose parent ctx
// ended is no longer running even before Stop is called.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
