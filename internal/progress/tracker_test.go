package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/yourusername/webui-watchdog/internal/webui"
	testingclock "k8s.io/utils/clock/testing"
)

// scriptedSource replays responses in order and repeats the last one
type scriptedSource struct {
	mu        sync.Mutex
	responses []*webui.ProgressResponse
	errs      []error
	calls     int
	ids       []string
}

func (s *scriptedSource) Progress(ctx context.Context, taskID string) (*webui.ProgressResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.ids = append(s.ids, taskID)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) Publish(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) snapshot() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func testOptions() Options {
	return Options{
		Interval:          time.Millisecond,
		InactivityTimeout: time.Minute,
		Logger:            zerolog.Nop(),
	}
}

func TestTracker_ResumeUntilCompleted(t *testing.T) {
	src := &scriptedSource{
		errs: []error{nil, errors.New("connection reset")},
		responses: []*webui.ProgressResponse{
			{Active: true, Progress: 0.25},
			nil,
			{Active: true, Progress: 0.75},
			{Completed: true, Progress: 1},
		},
	}
	rec := &recorder{}
	tr := NewTracker(src, testOptions(), rec)

	if err := tr.Resume(context.Background(), "abc123"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	tr.Wait()

	updates := rec.snapshot()
	if len(updates) != 3 {
		t.Fatalf("got %d updates, want 3: %+v", len(updates), updates)
	}
	for _, u := range updates {
		if u.TaskID != "abc123" || !u.Resumed {
			t.Errorf("update = %+v, want resumed abc123", u)
		}
	}
	last := updates[len(updates)-1]
	if !last.Completed || !last.Done {
		t.Errorf("last update = %+v, want completed and done", last)
	}
	if tr.Current() != "" {
		t.Errorf("Current() = %q after completion, want empty", tr.Current())
	}
}

// stepWhileTracking advances clk by step whenever the tracker waits on it,
// until tracking ends
func stepWhileTracking(t *testing.T, tr *Tracker, clk *testingclock.FakeClock, step time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		tr.Wait()
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			tr.Stop()
			t.Fatal("tracking did not finish")
		default:
		}
		if clk.HasWaiters() {
			clk.Step(step)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTracker_InactivityTimeout(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	src := &scriptedSource{responses: []*webui.ProgressResponse{{}}}
	rec := &recorder{}

	opts := testOptions()
	opts.Interval = 30 * time.Second
	opts.Clock = clk
	tr := NewTracker(src, opts, rec)

	if err := tr.Track(context.Background(), "stale", false); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	stepWhileTracking(t, tr, clk, opts.Interval)

	// polled at 0s, 30s, 60s and 90s; only 90s exceeds the minute
	updates := rec.snapshot()
	if len(updates) != 4 {
		t.Fatalf("got %d updates, want 4: %+v", len(updates), updates)
	}
	for _, u := range updates[:3] {
		if u.Done {
			t.Errorf("update at %v is done before the timeout", u.Time)
		}
	}
	if !updates[3].Done || updates[3].Completed {
		t.Errorf("last update = %+v, want done without completion", updates[3])
	}
}

func TestTracker_IntervalFollowsClock(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	src := &scriptedSource{responses: []*webui.ProgressResponse{{Active: true}}}

	opts := testOptions()
	opts.Interval = time.Second
	opts.Clock = clk
	tr := NewTracker(src, opts)
	defer tr.Stop()

	calls := func() int {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls
	}
	waitCalls := func(want int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for calls() < want {
			if time.Now().After(deadline) {
				t.Fatalf("progress requests = %d, want %d", calls(), want)
			}
			time.Sleep(time.Millisecond)
		}
	}

	if err := tr.Track(context.Background(), "abc123", false); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	waitCalls(1)

	// wall-clock time alone does not trigger the next request
	time.Sleep(20 * time.Millisecond)
	if got := calls(); got != 1 {
		t.Fatalf("progress requests = %d before the clock moved, want 1", got)
	}

	for i := 2; i <= 3; i++ {
		deadline := time.Now().Add(2 * time.Second)
		for !clk.HasWaiters() {
			if time.Now().After(deadline) {
				t.Fatal("tracker never scheduled the next request")
			}
			time.Sleep(time.Millisecond)
		}
		clk.Step(time.Second)
		waitCalls(i)
	}
}

func TestTracker_OneTaskAtATime(t *testing.T) {
	src := &scriptedSource{responses: []*webui.ProgressResponse{{Active: true}}}
	tr := NewTracker(src, testOptions())

	ctx := context.Background()
	if err := tr.Track(ctx, "first", false); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if err := tr.Track(ctx, "second", false); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	if got := tr.Current(); got != "second" {
		t.Errorf("Current() = %q, want second", got)
	}

	time.Sleep(10 * time.Millisecond)
	tr.Stop()

	if got := tr.Current(); got != "" {
		t.Errorf("Current() after Stop = %q, want empty", got)
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	last := src.ids[len(src.ids)-1]
	if last != "second" {
		t.Errorf("last polled task = %q, want second", last)
	}
}

func TestTracker_EmptyTaskID(t *testing.T) {
	tr := NewTracker(&scriptedSource{}, testOptions())
	if err := tr.Resume(context.Background(), ""); err == nil {
		t.Error("Resume(\"\") error = nil")
	}
}

func TestPublisherFunc(t *testing.T) {
	var got Update
	PublisherFunc(func(u Update) { got = u }).Publish(Update{TaskID: "x"})
	if got.TaskID != "x" {
		t.Errorf("PublisherFunc did not forward update, got %+v", got)
	}
}
