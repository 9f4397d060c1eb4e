package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"github.com/FC4b/cli-agent-orchestrator/internal/registry"
)

type recordingInjector struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingInjector) Inject(t *domain.Terminal, body string, withMarkers bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, body)
	return nil
}

func (r *recordingInjector) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestBus_DeliversOnIdleEdge(t *testing.T) {
	reg := registry.New()
	inj := &recordingInjector{}
	b := New(reg, inj, nil)

	tm := reg.NewTerminal("agent", "fake", "", "")
	b.Watch(tm)
	defer b.Unwatch(tm.ID)

	if err := reg.Enqueue(tm.ID, domain.Message{ToID: tm.ID, Body: "hello"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := reg.UpdateStatus(tm.ID, domain.StatusIdle, "ready"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && inj.callCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if inj.callCount() != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", inj.callCount())
	}
}

func TestBus_TryDeliver_WhenAlreadyIdle(t *testing.T) {
	reg := registry.New()
	inj := &recordingInjector{}
	b := New(reg, inj, nil)

	tm := reg.NewTerminal("agent", "fake", "", "")
	_ = reg.UpdateStatus(tm.ID, domain.StatusIdle, "ready")
	b.Watch(tm)
	defer b.Unwatch(tm.ID)

	if err := reg.Enqueue(tm.ID, domain.Message{ToID: tm.ID, Body: "hello"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	b.TryDeliver(tm)

	if inj.callCount() != 1 {
		t.Fatalf("expected TryDeliver to deliver the already-IDLE recipient's message, got %d calls", inj.callCount())
	}
}

func TestBus_OneMessagePerEdge(t *testing.T) {
	reg := registry.New()
	inj := &recordingInjector{}
	b := New(reg, inj, nil)

	tm := reg.NewTerminal("agent", "fake", "", "")
	b.Watch(tm)
	defer b.Unwatch(tm.ID)

	_ = reg.Enqueue(tm.ID, domain.Message{ToID: tm.ID, Body: "first"})
	_ = reg.Enqueue(tm.ID, domain.Message{ToID: tm.ID, Body: "second"})
	_ = reg.UpdateStatus(tm.ID, domain.StatusIdle, "ready")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && inj.callCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if inj.callCount() != 1 {
		t.Fatalf("expected exactly 1 delivery per idle edge, got %d", inj.callCount())
	}
	if tm.InboxLen() != 1 {
		t.Errorf("expected 1 message left queued, got %d", tm.InboxLen())
	}
}

// TestBus_ConcurrentTryDeliver_PopsAtMostOne exercises the race two
// concurrent POST /terminals/{id}/messages calls can trigger: both see the
// recipient IDLE and call TryDeliver before either injection lands. Only
// one may pop, because PopReady flips IDLE->BUSY under the terminal's own
// lock atomically with the pop.
func TestBus_ConcurrentTryDeliver_PopsAtMostOne(t *testing.T) {
	reg := registry.New()
	inj := &recordingInjector{}
	b := New(reg, inj, nil)

	tm := reg.NewTerminal("agent", "fake", "", "")
	_ = reg.UpdateStatus(tm.ID, domain.StatusIdle, "ready")
	b.Watch(tm)
	defer b.Unwatch(tm.ID)

	_ = reg.Enqueue(tm.ID, domain.Message{ToID: tm.ID, Body: "first"})
	_ = reg.Enqueue(tm.ID, domain.Message{ToID: tm.ID, Body: "second"})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.TryDeliver(tm)
		}()
	}
	wg.Wait()

	if inj.callCount() != 1 {
		t.Fatalf("expected exactly 1 delivery across concurrent TryDeliver calls, got %d", inj.callCount())
	}
	if tm.InboxLen() != 1 {
		t.Errorf("expected 1 message left queued, got %d", tm.InboxLen())
	}
}
