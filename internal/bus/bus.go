// Package bus is the Message Bus (C4): the sole delivery mechanism for
// send_message and for queued continuation messages in assign. Delivery is
// triggered by Registry status edges "* -> IDLE"; exactly one message is
// delivered per idle edge (spec section 4.4).
package bus

import (
	"log/slog"
	"sync"

	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"github.com/FC4b/cli-agent-orchestrator/internal/reader"
	"github.com/FC4b/cli-agent-orchestrator/internal/registry"
)

// Injector is the subset of *reader.Reader the Bus needs, so tests can
// substitute a fake without spinning up a real multiplexer.
type Injector interface {
	Inject(t *domain.Terminal, body string, withMarkers bool) error
}

type Bus struct {
	reg *registry.Registry
	inj Injector
	log *slog.Logger

	mu      sync.Mutex
	cancels map[string]func()
}

func New(reg *registry.Registry, inj Injector, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{reg: reg, inj: inj, log: log, cancels: make(map[string]func())}
}

// Watch starts observing t's status edges and attempts delivery on every
// transition to IDLE. Call once per terminal, typically right after the
// Reader starts polling it.
func (b *Bus) Watch(t *domain.Terminal) {
	edges, cancel, err := b.reg.Subscribe(t.ID)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.cancels[t.ID] = cancel
	b.mu.Unlock()

	go func() {
		for status := range edges {
			if status == domain.StatusIdle {
				b.deliverIfReady(t)
			}
			if status == domain.StatusDead {
				return
			}
		}
	}()
}

// Unwatch stops observing a terminal, releasing its subscription.
func (b *Bus) Unwatch(id string) {
	b.mu.Lock()
	cancel, ok := b.cancels[id]
	delete(b.cancels, id)
	b.mu.Unlock()
	if ok {
		cancel()
	}
}

// deliverIfReady pops and injects at most one message. PopReady pops and
// flips IDLE->BUSY under the terminal's own lock, so two concurrent calls
// racing the same idle edge can't both pop: the loser simply observes BUSY
// and returns ok=false.
func (b *Bus) deliverIfReady(t *domain.Terminal) {
	msg, ok, err := b.reg.PopReady(t.ID)
	if err != nil || !ok {
		return
	}
	// Bus-delivered turns settle back at IDLE via the provider's own
	// ready-prompt regexp (spec section 4.3 priority 3), not via the
	// completion marker: a follow-up message is not the terminal's initial
	// task, so it must not drive it to COMPLETED and freeze its inbox.
	if err := b.inj.Inject(t, msg.Body, false); err != nil {
		b.log.Warn("bus: delivery failed", "terminal", t.ID, "error", err)
	}
}

// TryDeliver attempts an immediate delivery without waiting for a fresh
// edge notification — used right after Enqueue, in case the terminal was
// already IDLE at enqueue time (the notification fires on *future* edges
// only, so the currently-IDLE case needs an explicit nudge).
func (b *Bus) TryDeliver(t *domain.Terminal) {
	if t.GetStatus() == domain.StatusIdle {
		b.deliverIfReady(t)
	}
}

var _ Injector = (*reader.Reader)(nil)
