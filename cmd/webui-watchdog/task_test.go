package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func runTask(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newTaskCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("task %v error = %v", args, err)
	}
	return strings.TrimSpace(out.String())
}

func TestTaskCommands(t *testing.T) {
	t.Setenv("STATE_PATH", filepath.Join(t.TempDir(), "state.db"))

	if got := runTask(t, "show"); got != "no task" {
		t.Errorf("show on empty store = %q, want no task", got)
	}

	runTask(t, "set", "abc123")
	if got := runTask(t, "show"); got != "abc123" {
		t.Errorf("show = %q, want abc123", got)
	}

	id := runTask(t, "new")
	if !strings.HasPrefix(id, "task(") {
		t.Errorf("new = %q, want task(...)", id)
	}
	if got := runTask(t, "show"); got != id {
		t.Errorf("show = %q, want %q", got, id)
	}

	runTask(t, "clear")
	if got := runTask(t, "show"); got != "no task" {
		t.Errorf("show after clear = %q, want no task", got)
	}
}
