// Package loading time-boxes a "loading" indicator. Callers notify the monitor
// whenever the observed state changes; once an episode has lasted longer than
// HideAfter the monitor runs its hide action.
package loading

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// Options configures a Monitor
type Options struct {
	HideAfter     time.Duration
	CheckInterval time.Duration
	Hide          func()
	Clock         clock.WithTicker
	Logger        zerolog.Logger
}

// Monitor tracks one loading episode at a time
type Monitor struct {
	hideAfter     time.Duration
	checkInterval time.Duration
	hide          func()
	clock         clock.WithTicker
	logger        zerolog.Logger

	mu        sync.Mutex
	startedAt time.Time // zero when not loading
	hidden    bool
	ticker    clock.Ticker
	stopCh    chan struct{}
	closed    bool
}

// NewMonitor creates a new loading monitor
func NewMonitor(opts Options) *Monitor {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Hide == nil {
		opts.Hide = func() {}
	}
	return &Monitor{
		hideAfter:     opts.HideAfter,
		checkInterval: opts.CheckInterval,
		hide:          opts.Hide,
		clock:         opts.Clock,
		logger:        opts.Logger.With().Str("component", "loading-monitor").Logger(),
	}
}

// Notify re-evaluates the indicator after a state change
func (m *Monitor) Notify(loading bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	if !loading {
		if !m.startedAt.IsZero() {
			m.logger.Debug().
				Dur("elapsed", m.clock.Since(m.startedAt)).
				Msg("Loading finished")
		}
		m.startedAt = time.Time{}
		m.hidden = false
		m.stopLocked()
		return
	}

	if !m.startedAt.IsZero() {
		return
	}

	m.startedAt = m.clock.Now()
	m.ticker = m.clock.NewTicker(m.checkInterval)
	m.stopCh = make(chan struct{})
	go m.watch(m.ticker.C(), m.stopCh)
}

// Loading reports whether a loading episode is in progress
func (m *Monitor) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.startedAt.IsZero()
}

// Close stops the follow-up ticker. Later notifications are ignored.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopLocked()
}

func (m *Monitor) watch(ticks <-chan time.Time, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticks:
			m.check(stop)
		}
	}
}

func (m *Monitor) check(stop <-chan struct{}) {
	m.mu.Lock()
	select {
	case <-stop:
		// episode ended while the tick was pending
		m.mu.Unlock()
		return
	default:
	}

	elapsed := m.clock.Since(m.startedAt)
	if m.hidden || elapsed <= m.hideAfter {
		m.mu.Unlock()
		return
	}
	m.hidden = true
	m.mu.Unlock()

	m.logger.Info().Dur("elapsed", elapsed).Msg("Hiding loading indicator")
	m.hide()
}

func (m *Monitor) stopLocked() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
}
