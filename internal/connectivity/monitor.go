// Package connectivity tracks online/offline state and exposes a
// short-lived "just reconnected" pulse after each recovery.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/mbrandao/syncbox/internal/platform/observability"
)

// DefaultReconnectPulse is how long JustReconnected stays true after an
// offline to online transition.
const DefaultReconnectPulse = 5 * time.Second

// Snapshot is a point-in-time view of connectivity state.
type Snapshot struct {
	IsOnline        bool
	JustReconnected bool
	ReconnectedAt   *time.Time
}

// MonitorConfig holds monitor configuration.
type MonitorConfig struct {
	ReconnectPulse time.Duration
	InitialOnline  bool
	Logger         *observability.Logger
	Metrics        *observability.Metrics
}

// Monitor is a two-state machine (Online/Offline) fed by platform events —
// an HTTP probe, a transport error hook, or tests calling SetOnline
// directly. Subscribers are notified synchronously on every transition so
// queue draining starts immediately rather than waiting for a poll.
type Monitor struct {
	mu              sync.Mutex
	online          bool
	justReconnected bool
	reconnectedAt   time.Time
	pulse           time.Duration
	pulseGen        uint64
	subs            []func(online bool)

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewMonitor creates a connectivity monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.ReconnectPulse <= 0 {
		cfg.ReconnectPulse = DefaultReconnectPulse
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &observability.Metrics{}
	}
	return &Monitor{
		online:  cfg.InitialOnline,
		pulse:   cfg.ReconnectPulse,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Subscribe registers a callback invoked synchronously on each transition.
// Subscriptions cannot be removed; the monitor lives for the process.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// SetOnline feeds a connectivity observation into the state machine.
// Repeated observations of the current state are ignored.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	if online {
		m.justReconnected = true
		m.reconnectedAt = time.Now()
		m.pulseGen++

		// Clear the pulse after the window. The generation check keeps a
		// timer from an older pulse from clearing a newer one after a
		// rapid offline/online flutter.
		gen := m.pulseGen
		time.AfterFunc(m.pulse, func() {
			m.mu.Lock()
			if m.pulseGen == gen {
				m.justReconnected = false
			}
			m.mu.Unlock()
		})
	} else {
		m.justReconnected = false
	}

	subs := make([]func(online bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	ctx := context.Background()
	m.metrics.SetOnline(ctx, online)
	if online {
		m.metrics.RecordReconnect(ctx)
		m.logger.LogInfo(ctx, "connectivity restored")
	} else {
		m.logger.LogWarn(ctx, "connectivity lost")
	}

	for _, fn := range subs {
		fn(online)
	}
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// JustReconnected reports whether the reconnect pulse is active.
func (m *Monitor) JustReconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.justReconnected
}

// Snapshot returns the full connectivity state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		IsOnline:        m.online,
		JustReconnected: m.justReconnected,
	}
	if !m.reconnectedAt.IsZero() {
		t := m.reconnectedAt
		s.ReconnectedAt = &t
	}
	return s
}
