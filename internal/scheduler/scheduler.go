// Package scheduler runs the in-process delivery ticker. Deployments that
// prefer an external cron hitting POST /internal/sweep leave it disabled;
// single-binary deployments enable it with ENABLE_TICKER and get the same
// sweep behavior without external infrastructure. Sweeps are idempotent, so
// running both the ticker and a cron is wasteful but harmless.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler invokes a tick function on a fixed interval until stopped.
type Scheduler struct {
	interval time.Duration
	tickFn   func(context.Context)

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Scheduler. The interval must be positive and tickFn
// non-nil; the five-minute delivery cadence is the expected configuration.
func New(interval time.Duration, tickFn func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tick function must not be nil")
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		done:     make(chan struct{}),
	}, nil
}

// Start launches the ticker goroutine. The first tick fires immediately so a
// restart does not silently skip a delivery window. Returns false when
// already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Info().Dur("interval", s.interval).Msg("delivery ticker started")

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("delivery ticker stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the ticker and waits for the goroutine to exit. Returns false
// when not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	log.Info().Msg("delivery ticker stopped")
	return true
}

// IsRunning reports whether the ticker goroutine is active.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// safeTick shields the ticker loop from panics in the tick function.
func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("delivery tick panic recovered")
		}
	}()

	start := time.Now()
	s.tickFn(ctx)
	log.Debug().Dur("took", time.Since(start)).Msg("delivery tick completed")
}
