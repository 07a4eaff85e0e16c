package sync

import (
	"context"
	"sync"

	"github.com/swanhtet/medbridge/internal/logging"
)

// Monitor tracks a best-effort online/offline flag gating the drain
// loop. The flag is advisory: callers that must know re-probe.
type Monitor struct {
	remote RemoteClient

	mu       sync.RWMutex
	online   bool
	onOnline func()
}

// NewMonitor creates a Monitor. The flag starts offline until the first
// probe or passive signal reports otherwise.
func NewMonitor(remote RemoteClient) *Monitor {
	return &Monitor{remote: remote}
}

// OnOnline registers the callback fired on an offline-to-online
// transition. Used to trigger an immediate drain pass.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = fn
}

// Online returns the current flag.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Probe issues a health probe and updates the flag: online only on a
// successful response, offline on any error. It never panics and never
// returns an error; the probe outcome is the returned flag.
func (m *Monitor) Probe(ctx context.Context) bool {
	err := m.remote.Ping(ctx)
	m.SetOnline(err == nil)
	if err != nil {
		logging.Debug("Health probe failed",
			map[string]interface{}{"error": err.Error()})
	}
	return err == nil
}

// SetOnline updates the flag from a passive signal (runtime
// connectivity events, operator toggle). An offline-to-online
// transition fires the registered callback.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	callback := m.onOnline
	m.mu.Unlock()

	if wasOnline != online {
		logging.Info("Connectivity changed", map[string]interface{}{
			"was_online": wasOnline,
			"is_online":  online,
		})
	}

	if !wasOnline && online && callback != nil {
		callback()
	}
}
