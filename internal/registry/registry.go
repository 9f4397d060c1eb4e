// Package registry is the Terminal Registry (C2): the authoritative
// id -> Terminal mapping and the sole mutator of terminal status. The
// terminal map and the edge subscriptions are guarded by one mutex, held
// only for O(1) work — never across multiplexer I/O or blocking waits.
// Each terminal's status and inbox are guarded by that terminal's own lock
// (domain.Terminal), not by the Registry mutex.
package registry

import (
	"fmt"
	"sync"

	"github.com/FC4b/cli-agent-orchestrator/internal/apperr"
	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"github.com/google/uuid"
)

// Registry holds every terminal known to this server instance.
type Registry struct {
	mu        sync.Mutex
	terminals map[string]*domain.Terminal

	// edgeSubs notifies waiters of status edges for a given terminal id.
	// Each subscriber gets its own buffered channel of size 1 (coalescing:
	// callers only care "a transition happened since I last checked", not
	// every individual edge) so a slow consumer can't block the registry.
	edgeSubs map[string][]chan domain.Status
}

func New() *Registry {
	return &Registry{
		terminals: make(map[string]*domain.Terminal),
		edgeSubs:  make(map[string][]chan domain.Status),
	}
}

// NewTerminal allocates a fresh terminal id and state in STARTING, per
// spec section 4.2. It does not talk to the multiplexer.
func (r *Registry) NewTerminal(agentProfile, provider, cwd, parentID string) *domain.Terminal {
	id := uuid.NewString()
	t := domain.NewTerminal(id, agentProfile, provider, cwd, parentID)

	r.mu.Lock()
	r.terminals[id] = t
	r.mu.Unlock()

	return t
}

func (r *Registry) Get(id string) (*domain.Terminal, error) {
	r.mu.Lock()
	t, ok := r.terminals[id]
	r.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("unknown terminal %s", id)).WithTerminal(id)
	}
	return t, nil
}

// UpdateStatus enforces the FSM via domain.Terminal.TransitionTo and fans
// the edge out to any waiters registered via Subscribe.
func (r *Registry) UpdateStatus(id string, newStatus domain.Status, reason string) error {
	t, err := r.Get(id)
	if err != nil {
		return err
	}

	if err := t.TransitionTo(newStatus, reason); err != nil {
		return apperr.Wrap(apperr.KindInvalidTransition, err.Error(), err).WithTerminal(id)
	}

	// Hold the lock across the send so a concurrent Subscribe-cancel can't
	// close a channel out from under us between reading edgeSubs and
	// sending on it (sends are non-blocking via select/default, so this
	// keeps hold time effectively O(1)).
	r.mu.Lock()
	for _, ch := range r.edgeSubs[id] {
		select {
		case ch <- newStatus:
		default:
			// Coalesce: a pending value is already waiting to be read.
			select {
			case <-ch:
				ch <- newStatus
			default:
			}
		}
	}
	r.mu.Unlock()

	return nil
}

// Subscribe returns a channel that receives the statuses this terminal
// transitions to from the moment of subscription, plus an unsubscribe
// func. A status not yet read is replaced by the next one, so a slow
// reader sees the latest status rather than every edge. Grounded on the teacher's TerminalHub.Subscribe fan-out, trimmed
// to single-value coalescing since callers only need to observe the next
// edge, not a full event log.
func (r *Registry) Subscribe(id string) (<-chan domain.Status, func(), error) {
	if _, err := r.Get(id); err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.Status, 1)
	r.mu.Lock()
	r.edgeSubs[id] = append(r.edgeSubs[id], ch)
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		subs := r.edgeSubs[id]
		for i, c := range subs {
			if c == ch {
				r.edgeSubs[id] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		close(ch)
	}
	return ch, cancel, nil
}

// Enqueue appends a message to the recipient's inbox, rejecting DEAD and
// COMPLETED recipients with dead-recipient (spec section 4.4, and Open
// Question #3 in DESIGN.md for the COMPLETED case).
func (r *Registry) Enqueue(id string, msg domain.Message) error {
	t, err := r.Get(id)
	if err != nil {
		return err
	}
	switch t.GetStatus() {
	case domain.StatusDead, domain.StatusCompleted:
		return apperr.New(apperr.KindDeadRecipient, "recipient terminal is dead or completed").WithTerminal(id)
	}
	t.Enqueue(msg)
	return nil
}

// PopReady pops the head of id's inbox iff it is currently IDLE.
func (r *Registry) PopReady(id string) (domain.Message, bool, error) {
	t, err := r.Get(id)
	if err != nil {
		return domain.Message{}, false, err
	}
	msg, ok := t.PopReady()
	return msg, ok, nil
}

// Remove marks a terminal DEAD. Calling Remove on an already-DEAD terminal
// is a no-op success (spec section 8's idempotence property).
func (r *Registry) Remove(id string) error {
	t, err := r.Get(id)
	if err != nil {
		return err
	}
	if t.GetStatus() == domain.StatusDead {
		return nil
	}
	return r.UpdateStatus(id, domain.StatusDead, "removed")
}

func (r *Registry) List() []*domain.Terminal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Terminal, 0, len(r.terminals))
	for _, t := range r.terminals {
		out = append(out, t)
	}
	return out
}
