package flow

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeAssigner struct {
	mu    sync.Mutex
	calls []string // each entry is the body passed to Assign
}

func (f *fakeAssigner) Assign(ctx context.Context, fromID, agentProfile, providerKey, body, cwd, callbackID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, body)
	return "t-" + providerKey, nil
}

func (f *fakeAssigner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAssigner) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func writeFlowFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write flow file: %v", err)
	}
	return path
}

func TestScheduler_ReloadLoadsFlows(t *testing.T) {
	dir := t.TempDir()
	writeFlowFile(t, dir, "f1.md", "---\nname: f1\nschedule: \"* * * * *\"\nagent_profile: reporter\n---\nbody\n")

	s := New(dir, &fakeAssigner{}, nil)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	flows := s.List()
	if len(flows) != 1 || flows[0].Name != "f1" {
		t.Fatalf("expected 1 flow named f1, got %+v", flows)
	}
}

func TestScheduler_ReloadSkipsUnparseableFlows(t *testing.T) {
	dir := t.TempDir()
	writeFlowFile(t, dir, "good.md", "---\nname: good\nschedule: \"* * * * *\"\nagent_profile: reporter\n---\nbody\n")
	writeFlowFile(t, dir, "bad.md", "not a flow file at all")

	s := New(dir, &fakeAssigner{}, nil)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("expected the unparseable file to be skipped, got %d flows", got)
	}
}

func TestScheduler_Tick_FiresDueFlowOnce(t *testing.T) {
	dir := t.TempDir()
	writeFlowFile(t, dir, "f1.md", "---\nname: f1\nschedule: \"* * * * *\"\nagent_profile: reporter\n---\nreport on [[thing]]\n")

	fa := &fakeAssigner{}
	s := New(dir, fa, nil)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	s.mu.Lock()
	s.entries["f1"].flow.NextFireAt = time.Now().Add(-time.Minute)
	oldNext := s.entries["f1"].flow.NextFireAt
	s.mu.Unlock()

	s.tick(context.Background())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && fa.callCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if fa.callCount() != 1 {
		t.Fatalf("expected exactly 1 firing, got %d", fa.callCount())
	}
	if fa.lastBody() != "report on \n" {
		t.Errorf("expected interpolated body with empty [[thing]], got %q", fa.lastBody())
	}

	s.mu.Lock()
	newNext := s.entries["f1"].flow.NextFireAt
	s.mu.Unlock()
	if !newNext.After(oldNext) {
		t.Error("expected next_fire_at to advance past the old due time")
	}
}

func TestScheduler_Tick_SkipsDisabledFlow(t *testing.T) {
	dir := t.TempDir()
	writeFlowFile(t, dir, "f1.md", "---\nname: f1\nschedule: \"* * * * *\"\nagent_profile: reporter\nenabled: false\n---\nbody\n")

	fa := &fakeAssigner{}
	s := New(dir, fa, nil)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	s.mu.Lock()
	s.entries["f1"].flow.NextFireAt = time.Now().Add(-time.Minute)
	s.mu.Unlock()

	s.tick(context.Background())
	time.Sleep(50 * time.Millisecond)
	if fa.callCount() != 0 {
		t.Errorf("expected a disabled flow not to fire, got %d calls", fa.callCount())
	}
}

func TestScheduler_RunNow_UnknownFlow(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, &fakeAssigner{}, nil)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if _, err := s.RunNow(context.Background(), "nope"); err == nil {
		t.Error("expected an error for an unknown flow name")
	}
}

func TestScheduler_RunNow_ReturnsTerminalID(t *testing.T) {
	dir := t.TempDir()
	writeFlowFile(t, dir, "f1.md", "---\nname: f1\nschedule: \"* * * * *\"\nagent_profile: reporter\n---\nbody\n")

	fa := &fakeAssigner{}
	s := New(dir, fa, nil)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	id, err := s.RunNow(context.Background(), "f1")
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if id == "" {
		t.Error("expected a non-empty terminal id")
	}
}

func TestScheduler_SetEnabled(t *testing.T) {
	dir := t.TempDir()
	writeFlowFile(t, dir, "f1.md", "---\nname: f1\nschedule: \"* * * * *\"\nagent_profile: reporter\n---\nbody\n")
	s := New(dir, &fakeAssigner{}, nil)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if err := s.SetEnabled("f1", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	flows := s.List()
	if flows[0].IsEnabled() {
		t.Error("expected flow to be disabled after SetEnabled(false)")
	}
}
