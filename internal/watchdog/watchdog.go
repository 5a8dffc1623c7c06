// Package watchdog implements a fixed-interval poller that waits for a
// readiness predicate to hold, then runs a single follow-up action.
//
// A Watchdog moves from StateWaiting to StateConfirmed exactly once. Failed or
// panicking checks count as "not ready" and are retried on the next tick at
// the same interval.
package watchdog

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yourusername/webui-watchdog/internal/metrics"
	"k8s.io/utils/clock"
)

// State is the lifecycle state of a Watchdog
type State int

const (
	StateWaiting State = iota
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Predicate reports whether the watched condition holds. An error is treated
// as "not ready".
type Predicate func(ctx context.Context) (bool, error)

// Action runs once, on the tick that confirms the predicate.
type Action func(ctx context.Context) error

// Options configures a Watchdog
type Options struct {
	Name         string
	Interval     time.Duration
	Ready        Predicate
	OnConfirm    Action
	CheckTimeout time.Duration // zero means the tick context is used as is
	Clock        clock.WithTicker
	Logger       zerolog.Logger
}

// Watchdog polls a Predicate until it holds
type Watchdog struct {
	name         string
	interval     time.Duration
	ready        Predicate
	onConfirm    Action
	checkTimeout time.Duration
	clock        clock.WithTicker
	logger       zerolog.Logger

	// tickMu serializes ticks so two checks never overlap
	tickMu sync.Mutex

	mu      sync.Mutex
	state   State
	stopped bool
	running bool
	ticker  clock.Ticker
	stopCh  chan struct{}
	ticks   int

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a watchdog in StateWaiting. Nothing runs until Start or Tick.
func New(opts Options) *Watchdog {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Name == "" {
		opts.Name = "watchdog"
	}
	if opts.OnConfirm == nil {
		opts.OnConfirm = func(context.Context) error { return nil }
	}

	metrics.WatchdogState.WithLabelValues(opts.Name).Set(0)

	return &Watchdog{
		name:         opts.Name,
		interval:     opts.Interval,
		ready:        opts.Ready,
		onConfirm:    opts.OnConfirm,
		checkTimeout: opts.CheckTimeout,
		clock:        opts.Clock,
		logger: opts.Logger.With().
			Str("component", "watchdog").
			Str("watchdog", opts.Name).
			Str("instance", uuid.NewString()).
			Logger(),
		done: make(chan struct{}),
	}
}

// Handle controls a started watchdog
type Handle struct {
	w *Watchdog
}

// Stop cancels polling. See Watchdog.Stop.
func (h *Handle) Stop() {
	h.w.Stop()
}

// Done is closed once the watchdog has confirmed or been stopped and its
// polling loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.w.done
}

// Start begins polling every interval. Calling Start again returns a handle
// to the same loop; a stopped or confirmed watchdog is never restarted.
func (w *Watchdog) Start(ctx context.Context) *Handle {
	w.mu.Lock()
	defer w.mu.Unlock()

	h := &Handle{w: w}
	if w.ticker != nil || w.stopped || w.state == StateConfirmed {
		return h
	}

	w.ticker = w.clock.NewTicker(w.interval)
	w.stopCh = make(chan struct{})
	w.running = true

	w.logger.Debug().
		Dur("interval", w.interval).
		Msg("Starting watchdog")

	go w.loop(ctx, w.ticker.C(), w.stopCh)

	return h
}

func (w *Watchdog) loop(ctx context.Context, ticks <-chan time.Time, stop <-chan struct{}) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.finish()
	}()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-stop:
			return
		case <-ticks:
			if w.Tick(ctx) == StateConfirmed {
				return
			}
		}
	}
}

// Tick runs one readiness check. It returns the state after the check. A
// stopped or confirmed watchdog returns immediately without checking.
func (w *Watchdog) Tick(ctx context.Context) State {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	w.mu.Lock()
	if w.stopped || w.state == StateConfirmed {
		state := w.state
		w.mu.Unlock()
		return state
	}
	w.ticks++
	tick := w.ticks
	w.mu.Unlock()

	start := w.clock.Now()
	ready, err := w.check(ctx)
	metrics.CheckDuration.WithLabelValues(w.name).Observe(w.clock.Since(start).Seconds())

	if err != nil {
		metrics.WatchdogTicksTotal.WithLabelValues(w.name, "error").Inc()
		w.logger.Debug().Err(err).Int("tick", tick).Msg("Readiness check failed, retrying")
		return StateWaiting
	}
	if !ready {
		metrics.WatchdogTicksTotal.WithLabelValues(w.name, "not_ready").Inc()
		return StateWaiting
	}
	metrics.WatchdogTicksTotal.WithLabelValues(w.name, "ready").Inc()

	w.mu.Lock()
	if w.stopped {
		// Stopped while the check was in flight
		w.mu.Unlock()
		return StateWaiting
	}
	w.state = StateConfirmed
	w.cancelLocked()
	w.mu.Unlock()

	metrics.WatchdogConfirmationsTotal.WithLabelValues(w.name).Inc()
	metrics.WatchdogState.WithLabelValues(w.name).Set(1)
	w.logger.Info().Int("tick", tick).Msg("Watchdog confirmed")

	if err := w.runAction(ctx); err != nil {
		metrics.ActionErrorsTotal.WithLabelValues(w.name).Inc()
		w.logger.Error().Err(err).Msg("Post-confirmation action failed")
	}

	return StateConfirmed
}

// Stop cancels the ticker. It is safe to call before Start, after
// confirmation, and more than once.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || w.state == StateConfirmed {
		return
	}
	w.stopped = true
	w.cancelLocked()

	w.logger.Debug().Int("ticks", w.ticks).Msg("Watchdog stopped")
}

// State returns the current state
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Ticks returns the number of readiness checks run so far
func (w *Watchdog) Ticks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ticks
}

// Name returns the watchdog name used in logs and metrics
func (w *Watchdog) Name() string {
	return w.name
}

// cancelLocked releases the ticker exactly once. w.mu must be held.
func (w *Watchdog) cancelLocked() {
	if w.ticker != nil {
		w.ticker.Stop()
		w.ticker = nil
	}
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
	if !w.running {
		w.finish()
	}
}

func (w *Watchdog) finish() {
	w.doneOnce.Do(func() { close(w.done) })
}

func (w *Watchdog) check(ctx context.Context) (ready bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn().
				Str("stack", string(debug.Stack())).
				Msgf("Readiness check panicked: %v", r)
			ready, err = false, fmt.Errorf("readiness check panicked: %v", r)
		}
	}()

	if w.ready == nil {
		return false, fmt.Errorf("no readiness predicate configured")
	}

	if w.checkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.checkTimeout)
		defer cancel()
	}

	return w.ready(ctx)
}

func (w *Watchdog) runAction(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return w.onConfirm(ctx)
}
