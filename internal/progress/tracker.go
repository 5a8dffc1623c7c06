package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/yourusername/webui-watchdog/internal/metrics"
	"github.com/yourusername/webui-watchdog/internal/webui"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

// Update is a single progress observation for the tracked task
type Update struct {
	TaskID    string    `json:"task_id"`
	Resumed   bool      `json:"resumed"`
	Active    bool      `json:"active"`
	Queued    bool      `json:"queued"`
	Completed bool      `json:"completed"`
	Progress  float64   `json:"progress"`
	ETA       float64   `json:"eta"`
	TextInfo  string    `json:"textinfo,omitempty"`
	Done      bool      `json:"done"` // tracking ended, either completed or timed out
	Time      time.Time `json:"time"`
}

// Source returns the progress of a task
type Source interface {
	Progress(ctx context.Context, taskID string) (*webui.ProgressResponse, error)
}

// Publisher receives every update
type Publisher interface {
	Publish(Update)
}

// PublisherFunc adapts a function to a Publisher
type PublisherFunc func(Update)

// Publish calls f(u)
func (f PublisherFunc) Publish(u Update) { f(u) }

// Options configures a Tracker
type Options struct {
	Interval          time.Duration
	InactivityTimeout time.Duration // zero disables the timeout
	Clock             clock.Clock   // drives both the poll interval and the timeout
	Logger            zerolog.Logger
}

// Tracker follows the progress of at most one task at a time
type Tracker struct {
	source            Source
	interval          time.Duration
	inactivityTimeout time.Duration
	clock             clock.Clock
	publishers        []Publisher
	logger            zerolog.Logger

	mu      sync.Mutex
	current string
	cancel  context.CancelFunc
	gen     uint64
	wg      sync.WaitGroup
}

// NewTracker creates a new progress tracker
func NewTracker(source Source, opts Options, publishers ...Publisher) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Tracker{
		source:            source,
		interval:          opts.Interval,
		inactivityTimeout: opts.InactivityTimeout,
		clock:             opts.Clock,
		publishers:        publishers,
		logger:            opts.Logger.With().Str("component", "progress-tracker").Logger(),
	}
}

// Resume re-attaches progress tracking to a task that was in flight before a
// reload.
func (t *Tracker) Resume(ctx context.Context, taskID string) error {
	return t.Track(ctx, taskID, true)
}

// Track starts following taskID in the background, replacing any task that
// is currently tracked.
func (t *Tracker) Track(ctx context.Context, taskID string, resumed bool) error {
	if taskID == "" {
		return fmt.Errorf("task id is empty")
	}

	t.mu.Lock()
	if t.cancel != nil {
		t.logger.Info().
			Str("task_id", t.current).
			Str("replaced_by", taskID).
			Msg("Replacing tracked task")
		t.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	t.gen++
	gen := t.gen
	t.current = taskID
	t.cancel = cancel
	t.wg.Add(1)
	t.mu.Unlock()

	metrics.TasksTracked.Set(1)
	t.logger.Info().
		Str("task_id", taskID).
		Bool("resumed", resumed).
		Msg("Tracking task progress")

	go t.poll(ctx, cancel, gen, taskID, resumed)
	return nil
}

func (t *Tracker) poll(ctx context.Context, cancel context.CancelFunc, gen uint64, taskID string, resumed bool) {
	defer t.wg.Done()
	defer cancel()
	defer func() {
		t.mu.Lock()
		if t.gen == gen {
			t.current = ""
			t.cancel = nil
			metrics.TasksTracked.Set(0)
		}
		t.mu.Unlock()
	}()

	lastActive := t.clock.Now()
	finished := false

	// Sliding interval on the tracker's clock: the next request is scheduled
	// once the previous one has returned.
	backoff := wait.NewJitteredBackoffManager(t.interval, 0, t.clock)
	wait.BackoffUntil(func() {
		resp, err := t.source.Progress(ctx, taskID)
		if err != nil {
			t.logger.Debug().Err(err).Str("task_id", taskID).Msg("Progress request failed, retrying")
			return
		}

		now := t.clock.Now()
		if resp.Active || resp.Queued {
			lastActive = now
		}
		timedOut := t.inactivityTimeout > 0 && !resp.Completed &&
			!resp.Active && !resp.Queued && now.Sub(lastActive) > t.inactivityTimeout
		done := resp.Completed || timedOut

		t.publish(Update{
			TaskID:    taskID,
			Resumed:   resumed,
			Active:    resp.Active,
			Queued:    resp.Queued,
			Completed: resp.Completed,
			Progress:  resp.Progress,
			ETA:       resp.ETA,
			TextInfo:  resp.TextInfo,
			Done:      done,
			Time:      now,
		})

		if timedOut {
			t.logger.Warn().
				Str("task_id", taskID).
				Dur("inactive", now.Sub(lastActive)).
				Msg("Task inactive, giving up")
		}
		if done {
			finished = true
			cancel()
		}
	}, backoff, true, ctx.Done())

	if finished {
		t.logger.Info().Str("task_id", taskID).Msg("Task tracking finished")
		return
	}
	t.logger.Debug().Err(ctx.Err()).Str("task_id", taskID).Msg("Progress tracking ended")
}

func (t *Tracker) publish(u Update) {
	metrics.ProgressUpdatesTotal.Inc()
	for _, p := range t.publishers {
		p.Publish(u)
	}
}

// Current returns the tracked task id, or "" when idle
func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Wait blocks until no task is being tracked
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Stop cancels tracking and waits for the poller to exit
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}
