package session

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SetGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, TaskKey); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
	}

	if err := s.Set(ctx, TaskKey, "task(one)"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, TaskKey, "task(two)"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := s.Get(ctx, TaskKey)
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if got != "task(two)" {
		t.Errorf("Get() = %q, want task(two)", got)
	}
}

func TestStore_TakeConsumesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, TaskKey, "abc123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := s.Take(ctx, TaskKey)
	if err != nil || !ok || got != "abc123" {
		t.Fatalf("Take() = %q, %v, %v; want abc123, true, nil", got, ok, err)
	}

	if _, ok, err := s.Take(ctx, TaskKey); err != nil || ok {
		t.Errorf("second Take() = ok %v, err %v; want nothing", ok, err)
	}
	if _, ok, _ := s.Get(ctx, TaskKey); ok {
		t.Error("task key still present after Take")
	}
}

func TestStore_TakeConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, TaskKey, "abc123"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := s.Take(ctx, TaskKey); err == nil && ok {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if taken != 1 {
		t.Errorf("task taken %d times, want 1", taken)
	}
}

func TestStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Set(ctx, TaskKey, "task(reload)"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, ok, err := s.Get(ctx, TaskKey)
	if err != nil || !ok || got != "task(reload)" {
		t.Errorf("Get() after reopen = %q, %v, %v", got, ok, err)
	}

	if err := s.Delete(ctx, TaskKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, TaskKey); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
}

func TestNewTaskID(t *testing.T) {
	a, b := NewTaskID(), NewTaskID()
	if a == b {
		t.Errorf("NewTaskID() returned %q twice", a)
	}
	if !strings.HasPrefix(a, "task(") || !strings.HasSuffix(a, ")") {
		t.Errorf("NewTaskID() = %q, want task(...)", a)
	}
}
