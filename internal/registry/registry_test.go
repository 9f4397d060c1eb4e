package registry

import (
	"testing"

	"github.com/FC4b/cli-agent-orchestrator/internal/apperr"
	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
)

func TestNewTerminalAndGet(t *testing.T) {
	r := New()
	tm := r.NewTerminal("reviewer", "claude_code", "/tmp", "")

	got, err := r.Get(tm.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != tm {
		t.Error("expected Get to return the same terminal instance")
	}
}

func TestGet_UnknownID(t *testing.T) {
	r := New()
	_, err := r.Get("nope")
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindNotFound {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestUpdateStatus_RejectsIllegalTransition(t *testing.T) {
	r := New()
	tm := r.NewTerminal("reviewer", "claude_code", "", "")

	err := r.UpdateStatus(tm.ID, domain.StatusCompleted, "skip ahead")
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindInvalidTransition {
		t.Errorf("expected invalid-transition error, got %v", err)
	}
}

func TestSubscribe_ReceivesSubsequentEdge(t *testing.T) {
	r := New()
	tm := r.NewTerminal("reviewer", "claude_code", "", "")

	edges, cancel, err := r.Subscribe(tm.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if err := r.UpdateStatus(tm.ID, domain.StatusIdle, "ready"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	select {
	case s := <-edges:
		if s != domain.StatusIdle {
			t.Errorf("expected IDLE, got %s", s)
		}
	default:
		t.Error("expected an edge notification to be waiting")
	}
}

func TestSubscribeCancel_ClosesChannel(t *testing.T) {
	r := New()
	tm := r.NewTerminal("reviewer", "claude_code", "", "")

	edges, cancel, err := r.Subscribe(tm.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	if _, ok := <-edges; ok {
		t.Error("expected channel to be closed after cancel")
	}

	// A status update after cancellation must not panic despite the
	// closed channel.
	if err := r.UpdateStatus(tm.ID, domain.StatusIdle, "ready"); err != nil {
		t.Fatalf("UpdateStatus after cancel failed: %v", err)
	}
}

func TestEnqueue_RejectsDeadRecipient(t *testing.T) {
	r := New()
	tm := r.NewTerminal("reviewer", "claude_code", "", "")
	_ = r.UpdateStatus(tm.ID, domain.StatusIdle, "ready")
	_ = r.UpdateStatus(tm.ID, domain.StatusBusy, "working")
	_ = r.UpdateStatus(tm.ID, domain.StatusCompleted, "done")
	_ = r.UpdateStatus(tm.ID, domain.StatusDead, "killed")

	err := r.Enqueue(tm.ID, domain.Message{ToID: tm.ID, Body: "hi"})
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindDeadRecipient {
		t.Errorf("expected dead-recipient error, got %v", err)
	}
}

func TestPopReady_OnlyWhenIdle(t *testing.T) {
	r := New()
	tm := r.NewTerminal("reviewer", "claude_code", "", "")
	if err := r.Enqueue(tm.ID, domain.Message{ToID: tm.ID, Body: "hi"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if _, ok, _ := r.PopReady(tm.ID); ok {
		t.Error("expected no ready message before IDLE")
	}

	_ = r.UpdateStatus(tm.ID, domain.StatusIdle, "ready")
	msg, ok, err := r.PopReady(tm.ID)
	if err != nil || !ok {
		t.Fatalf("expected a ready message, got ok=%v err=%v", ok, err)
	}
	if msg.Body != "hi" {
		t.Errorf("expected body %q, got %q", "hi", msg.Body)
	}
}

func TestRemove_IsIdempotent(t *testing.T) {
	r := New()
	tm := r.NewTerminal("reviewer", "claude_code", "", "")
	if err := r.Remove(tm.ID); err != nil {
		t.Fatalf("first Remove failed: %v", err)
	}
	if err := r.Remove(tm.ID); err != nil {
		t.Errorf("second Remove should be a no-op, got %v", err)
	}
}

func TestList(t *testing.T) {
	r := New()
	r.NewTerminal("a", "claude_code", "", "")
	r.NewTerminal("b", "claude_code", "", "")
	if got := len(r.List()); got != 2 {
		t.Errorf("expected 2 terminals, got %d", got)
	}
}
