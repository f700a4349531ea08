// Package scheduler runs the periodic reservation-expiry sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/snackmasta/sakan-munazam/internal/logger"
)

// Sweeper is the policy surface the scheduler drives once per tick.
type Sweeper interface {
	SweepExpiry(ctx context.Context)
}

// Scheduler ticks the expiry sweep.  It runs as a background goroutine and
// is safe to stop via its context or the Stop method.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	log      *logger.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(sweeper Sweeper, interval time.Duration, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start begins the tick loop.  The loop exits when ctx is cancelled or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
	s.log.Infow("expiry scheduler started", "tick", s.interval)
}

// Stop signals the scheduler to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one sweep with panic containment so a bad iteration cannot halt
// future ticks.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("expiry sweep panicked", "panic", r)
		}
	}()
	s.sweeper.SweepExpiry(ctx)
}
