// Package scheduler provides background scheduling for the sync core:
// a periodic drain loop gated on connectivity and a periodic health
// probe keeping the connectivity flag fresh.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/swanhtet/medbridge/internal/logging"
)

// Default intervals for the background loops.
const (
	DefaultDrainInterval = 30 * time.Second
	DefaultProbeInterval = 60 * time.Second
)

// Drainer runs one delivery pass over the pending queue.
type Drainer interface {
	Drain(ctx context.Context) bool
}

// Prober refreshes the connectivity flag.
type Prober interface {
	Probe(ctx context.Context) bool
	Online() bool
}

// Config holds scheduler configuration.
type Config struct {
	DrainInterval time.Duration // default 30s
	ProbeInterval time.Duration // default 60s
}

// Scheduler owns the background goroutines. Drain passes only run while
// the connectivity flag reports online; probes run regardless so the
// flag recovers on its own.
type Scheduler struct {
	drainer       Drainer
	prober        Prober
	drainInterval time.Duration
	probeInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler.
func New(drainer Drainer, prober Prober, cfg Config) *Scheduler {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	return &Scheduler{
		drainer:       drainer,
		prober:        prober,
		drainInterval: cfg.DrainInterval,
		probeInterval: cfg.ProbeInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the probe and drain loops. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.probeLoop(ctx)
	go s.drainLoop(ctx)

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"drain_interval": s.drainInterval.String(),
		"probe_interval": s.probeInterval.String(),
	})
}

// Stop signals both loops and waits for them to exit. Calling Stop on a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

// Running reports whether the loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// probeLoop refreshes the connectivity flag on a fixed cadence. It
// probes immediately on start so the flag is not stale for a full
// interval after boot.
func (s *Scheduler) probeLoop(ctx context.Context) {
	defer s.wg.Done()

	s.prober.Probe(ctx)

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.prober.Probe(ctx)
		}
	}
}

// drainLoop triggers periodic drain passes while online. An offline tick
// is skipped; the probe loop restores the flag when the remote comes
// back, and the monitor's transition callback covers the immediate pass.
func (s *Scheduler) drainLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.prober.Online() {
				continue
			}
			if !s.drainer.Drain(ctx) {
				logging.Debug("Drain pass already in progress, skipping tick", nil)
			}
		}
	}
}
