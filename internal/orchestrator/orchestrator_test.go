package orchestrator

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/FC4b/cli-agent-orchestrator/internal/bus"
	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"github.com/FC4b/cli-agent-orchestrator/internal/mux/muxtest"
	"github.com/FC4b/cli-agent-orchestrator/internal/provider"
	"github.com/FC4b/cli-agent-orchestrator/internal/reader"
	"github.com/FC4b/cli-agent-orchestrator/internal/registry"
)

// fakeProviderKey's agent "runs" entirely inside the fake mux: each test
// plays its part with fm.Append, printing the ready prompt at launch and,
// for a handoff, the completion marker once the task is injected.
const fakeProviderKey = "fake"

func testOrchestrator(t *testing.T) (*Orchestrator, *muxtest.Fake) {
	t.Helper()
	reg := registry.New()
	fm := muxtest.New()
	providers := provider.NewRegistry()
	providers.Register(provider.Config{
		Key:           fakeProviderKey,
		LaunchCommand: func(profile, cwd string) string { return "fake-agent" },
		ReadyRegexp:   regexp.MustCompile(`(?m)^READY$`),
		ExitCommand:   "/exit",
		EnvVar:        "CAO_TERMINAL_ID",
	})

	rd := reader.New(fm, reg, providers, nil)
	rd.SetPollInterval(5 * time.Millisecond)
	b := bus.New(reg, rd, nil)

	o := New(reg, fm, rd, b, providers, nil)
	o.startupTimeout = time.Second
	return o, fm
}

func TestHandoff_Success(t *testing.T) {
	o, fm := testOrchestrator(t)

	done := make(chan HandoffResult, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := o.Handoff(context.Background(), "supervisor", "reviewer", fakeProviderKey, "review this", "")
		done <- res
		errCh <- err
	}()

	// Give the orchestrator a moment to create the session, then play the
	// agent's ready prompt and, after the task is injected, its completion.
	sessionName := waitForSession(t, fm)
	fm.Append(sessionName, "READY\n")

	injected := waitForInjection(t, fm, sessionName)
	if !strings.Contains(injected, "review this") {
		t.Fatalf("expected injected text to contain task body, got %q", injected)
	}
	terminalID := terminalIDFromSession(sessionName)
	fm.Append(sessionName, "review looks good\n"+reader.CompletionMarker(terminalID)+"\n")

	select {
	case res := <-done:
		if res.Failed {
			t.Errorf("expected success, got failed result: %+v", res)
		}
		if !strings.Contains(res.Output, "review looks good") {
			t.Errorf("expected output to contain agent's text, got %q", res.Output)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handoff did not complete in time")
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Handoff returned error: %v", err)
	}
}

func TestAssign_ReturnsImmediately(t *testing.T) {
	o, fm := testOrchestrator(t)

	resultCh := make(chan string, 1)
	go func() {
		id, err := o.Assign(context.Background(), "supervisor", "developer", fakeProviderKey, "build the feature", "", "")
		if err != nil {
			t.Errorf("Assign failed: %v", err)
		}
		resultCh <- id
	}()

	sessionName := waitForSession(t, fm)
	fm.Append(sessionName, "READY\n")

	select {
	case id := <-resultCh:
		if id == "" {
			t.Error("expected a non-empty terminal id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("assign did not return in time")
	}
}

func TestSendMessage_UnknownRecipientRejected(t *testing.T) {
	o, _ := testOrchestrator(t)
	_, err := o.SendMessage("a", "nonexistent", "hi")
	if err == nil {
		t.Error("expected an error for an unknown recipient")
	}
}

func TestShutdown_IsIdempotent(t *testing.T) {
	o, fm := testOrchestrator(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := o.Assign(context.Background(), "supervisor", "developer", fakeProviderKey, "task", "", "")
		errCh <- err
	}()

	sessionName := waitForSession(t, fm)
	fm.Append(sessionName, "READY\n")
	if err := <-errCh; err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	id := terminalIDFromSession(sessionName)
	if err := o.Shutdown(id); err != nil {
		t.Fatalf("first Shutdown failed: %v", err)
	}
	if err := o.Shutdown(id); err != nil {
		t.Errorf("second Shutdown should be a no-op, got %v", err)
	}
}

// --- test helpers -----------------------------------------------------

func waitForSession(t *testing.T, fm *muxtest.Fake) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sessions, _ := fm.List()
		for _, s := range sessions {
			if strings.HasPrefix(s, "cao-") {
				return s
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a session to be created")
	return ""
}

func waitForInjection(t *testing.T, fm *muxtest.Fake, sessionName string) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		out, err := fm.Capture(sessionName, 0)
		if err == nil && strings.Contains(out, "READY\n") && len(out) > len("READY\n") {
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for task injection")
	return ""
}

func terminalIDFromSession(sessionName string) string {
	return strings.TrimPrefix(sessionName, "cao-")
}

var _ = domain.StatusIdle // keep domain import even if unused by a given test subset
