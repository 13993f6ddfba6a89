package poller

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"call-insights-go/internal/logger"
)

// FetchFunc performs one refresh. It must respect ctx and own committing
// its results; the poller only schedules it.
type FetchFunc func(ctx context.Context) error

// Poller drives periodic refresh of one provider's call data. Non-forced
// refreshes requested sooner than 80% of the interval since the last
// completed fetch are suppressed; a manual "refresh now" bypasses the
// guard. Stop cancels the loop and no state is touched afterwards.
type Poller struct {
	name     string
	interval time.Duration
	fetch    FetchFunc
	log      *logrus.Entry

	mu            sync.Mutex
	lastCompleted time.Time
	stopped       bool

	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, interval time.Duration, fetch FetchFunc) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		fetch:    fetch,
		log:      logger.New().WithComponent("poller").WithField("target", name),
		done:     make(chan struct{}),
	}
}

// Start launches the refresh loop. One immediate refresh runs before the
// ticker takes over.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go func() {
		defer close(p.done)

		if err := p.Refresh(ctx, true); err != nil {
			p.log.WithError(err).Warn("initial refresh failed")
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := p.Refresh(ctx, false); err != nil {
					p.log.WithError(err).Warn("scheduled refresh failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop tears the loop down and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

// Refresh runs one fetch. force bypasses the minimum-interval guard.
func (p *Poller) Refresh(ctx context.Context, force bool) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	if !force && !p.lastCompleted.IsZero() {
		elapsed := time.Since(p.lastCompleted)
		if elapsed < time.Duration(float64(p.interval)*0.8) {
			p.mu.Unlock()
			p.log.WithField("elapsed", elapsed.String()).Debug("refresh suppressed by interval guard")
			return nil
		}
	}
	p.mu.Unlock()

	err := p.fetch(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	// Liveness check: a refresh finishing after Stop (or cancellation)
	// must not act on stale data.
	if p.stopped || ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		p.lastCompleted = time.Now()
	}
	return err
}

// LastCompleted reports when the most recent successful fetch finished.
func (p *Poller) LastCompleted() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCompleted
}
