// Package reader is the Injector/Reader (C3): it submits keystrokes to a
// terminal and polls its pane to detect idle/completion/error via
// output-signature heuristics. The Reader is the only source of status
// transitions out of BUSY (spec section 4.3).
package reader

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"github.com/FC4b/cli-agent-orchestrator/internal/mux"
	"github.com/FC4b/cli-agent-orchestrator/internal/provider"
	"github.com/FC4b/cli-agent-orchestrator/internal/registry"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultIdleTimeout  = 24 * time.Hour
	captureTailLines    = 4000
)

// OutputMode selects which slice of a terminal's output GET
// /terminals/{id}/output returns, per the original system's FULL/LAST
// distinction (supplemented into spec section 4.3).
type OutputMode string

const (
	OutputModeFull OutputMode = "full"
	OutputModeLast OutputMode = "last"
)

// CompletionMarker and ErrorMarker return the fixed, per-terminal marker
// strings an injected task asks the agent to print. Collision-resistance
// comes from the terminal id (a UUID) being embedded (DESIGN.md Open
// Question #1).
func CompletionMarker(terminalID string) string {
	return fmt.Sprintf("<<<CAO:%s:DONE>>>", terminalID)
}

func ErrorMarker(terminalID string) string {
	return fmt.Sprintf("<<<CAO:%s:ERR>>>", terminalID)
}

// MarkerSuffix builds the sentinel instruction appended to a task body
// injected with markers, telling the agent what to print on completion or
// failure.
func MarkerSuffix(terminalID string) string {
	return fmt.Sprintf(
		"\n\nWhen you have fully completed the above task, print exactly this line and nothing else after it:\n%s\nIf you are unable to complete the task, instead print exactly this line:\n%s",
		CompletionMarker(terminalID), ErrorMarker(terminalID),
	)
}

var ansiEscapeRe = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07|\x1b[=>]`)

// StripANSI removes CSI/OSC escape sequences from captured pane text.
func StripANSI(s string) string {
	return ansiEscapeRe.ReplaceAllString(s, "")
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// terminalPollState is the Reader's private bookkeeping for one polled
// terminal, separate from domain.Terminal (which only holds
// Registry-owned FSM state).
type terminalPollState struct {
	stop            chan struct{}
	lastInjectedAt  time.Time
	lastInjectedRaw string // the verbatim text most recently sent, used for the echo tie-break
	lastResult      string // extracted output of the most recent completed/errored task
	lastFull        string // most recent full capture
}

// Reader owns one poll goroutine per live terminal.
type Reader struct {
	mux       mux.Mux
	reg       *registry.Registry
	providers *provider.Registry
	log       *slog.Logger

	pollInterval time.Duration
	idleTimeout  time.Duration

	mu     sync.Mutex
	states map[string]*terminalPollState
}

func New(m mux.Mux, reg *registry.Registry, providers *provider.Registry, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{
		mux:          m,
		reg:          reg,
		providers:    providers,
		log:          log,
		pollInterval: DefaultPollInterval,
		idleTimeout:  DefaultIdleTimeout,
		states:       make(map[string]*terminalPollState),
	}
}

// target returns the mux address for t: its pane id when it is a
// spawn_pane terminal sharing a session with others, otherwise its own
// session name.
func target(t *domain.Terminal) string {
	if t.PaneID != "" {
		return t.PaneID
	}
	return t.SessionName
}

// SetPollInterval overrides the poll cadence; tests use this to avoid
// waiting out the real 500ms default.
func (r *Reader) SetPollInterval(d time.Duration) {
	r.pollInterval = d
}

func (r *Reader) stateFor(id string) *terminalPollState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		st = &terminalPollState{stop: make(chan struct{})}
		r.states[id] = st
	}
	return st
}

// StartPolling launches the background poller for a terminal. Safe to call
// once per terminal; the caller (Orchestrator, right after Mux.Create)
// owns that discipline.
func (r *Reader) StartPolling(t *domain.Terminal) {
	st := r.stateFor(t.ID)
	go r.pollLoop(t, st)
}

// StopPolling terminates the poll goroutine for a terminal (called once it
// reaches DEAD).
func (r *Reader) StopPolling(id string) {
	r.mu.Lock()
	st, ok := r.states[id]
	if ok {
		delete(r.states, id)
	}
	r.mu.Unlock()
	if ok {
		close(st.stop)
	}
}

// Inject submits text to the terminal's session, transitions it to BUSY,
// and records the verbatim text for the echo tie-break. The BUSY
// transition is idempotent: a Bus delivery already flipped the terminal to
// BUSY inside PopReady, so this is a no-op in that path and the real edge
// for the direct-injection callers (Handoff/Assign/SpawnPane's first
// body). withMarkers appends the completion/error marker suffix; only a
// terminal's initial task body uses it — Bus-delivered follow-up turns are
// injected with withMarkers=false so they settle back at IDLE via the
// provider's ready-prompt regexp instead of completing the terminal.
func (r *Reader) Inject(t *domain.Terminal, body string, withMarkers bool) error {
	text := body
	if withMarkers {
		text += MarkerSuffix(t.ID)
	}

	st := r.stateFor(t.ID)
	r.mu.Lock()
	st.lastInjectedAt = time.Now()
	st.lastInjectedRaw = text
	r.mu.Unlock()

	if err := r.mux.SendKeys(target(t), text, true); err != nil {
		return err
	}

	return r.reg.UpdateStatus(t.ID, domain.StatusBusy, "task injected")
}

// Output returns the requested slice of a terminal's captured output.
func (r *Reader) Output(id string, mode OutputMode) (string, error) {
	st := r.stateFor(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if mode == OutputModeLast {
		return st.lastResult, nil
	}
	return st.lastFull, nil
}

func (r *Reader) pollLoop(t *domain.Terminal, st *terminalPollState) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			if t.GetStatus() == domain.StatusDead {
				return
			}
			r.pollOnce(t, st)
		}
	}
}

func (r *Reader) pollOnce(t *domain.Terminal, st *terminalPollState) {
	raw, err := r.mux.Capture(target(t), captureTailLines)
	if err != nil {
		// A capture failure affects this terminal only (spec section 7's
		// policy: Reader errors never propagate to the Registry lock, and
		// never take down unrelated terminals).
		r.log.Warn("reader: capture failed", "terminal", t.ID, "error", err)
		return
	}
	text := StripANSI(normalizeLineEndings(raw))

	r.mu.Lock()
	st.lastFull = text
	injectedRaw := st.lastInjectedRaw
	injectedAt := st.lastInjectedAt
	r.mu.Unlock()

	status := t.GetStatus()

	completionPos, completionFound := lastMatchAfterEcho(text, CompletionMarker(t.ID), injectedRaw)
	errorPos, errorFound := lastMatchAfterEcho(text, ErrorMarker(t.ID), injectedRaw)

	switch {
	case completionFound && errorFound:
		if errorPos > completionPos {
			r.markError(t, st, text, "agent reported error")
		} else {
			r.markCompleted(t, st, text, injectedRaw)
		}
		return
	case errorFound:
		r.markError(t, st, text, "agent reported error")
		return
	case completionFound:
		r.markCompleted(t, st, text, injectedRaw)
		return
	}

	// Once a body has been injected, only output after its echo can show
	// the ready prompt again; a prompt line above the echo is stale.
	readyText := text
	if injectedRaw != "" {
		if echoIdx := strings.LastIndex(text, injectedRaw); echoIdx >= 0 {
			readyText = text[echoIdx+len(injectedRaw):]
		}
	}

	cfg, cfgErr := r.providers.Get(t.Provider)
	if cfgErr == nil && cfg.ReadyRegexp != nil && cfg.ReadyRegexp.MatchString(readyText) {
		if status == domain.StatusStarting || status == domain.StatusBusy {
			if err := r.reg.UpdateStatus(t.ID, domain.StatusIdle, "ready prompt observed"); err != nil {
				r.log.Warn("reader: idle transition rejected", "terminal", t.ID, "error", err)
			}
		}
		return
	}

	if (status == domain.StatusStarting || status == domain.StatusBusy) && !injectedAt.IsZero() {
		deadline := t.LastStatusAt.Add(r.idleTimeout)
		if time.Now().After(deadline) {
			t.SetErrorMessage("no ready/completion signal within idle timeout")
			_ = r.reg.UpdateStatus(t.ID, domain.StatusError, "timeout")
		}
	}
}

func (r *Reader) markCompleted(t *domain.Terminal, st *terminalPollState, text, injectedRaw string) {
	result := extractResult(text, injectedRaw, CompletionMarker(t.ID))
	r.mu.Lock()
	st.lastResult = result
	r.mu.Unlock()
	if err := r.reg.UpdateStatus(t.ID, domain.StatusCompleted, "completion marker observed"); err != nil {
		r.log.Warn("reader: completed transition rejected", "terminal", t.ID, "error", err)
	}
}

func (r *Reader) markError(t *domain.Terminal, st *terminalPollState, text, reason string) {
	r.mu.Lock()
	injectedRaw := st.lastInjectedRaw
	r.mu.Unlock()
	result := extractResult(text, injectedRaw, ErrorMarker(t.ID))
	r.mu.Lock()
	st.lastResult = result
	r.mu.Unlock()
	t.SetErrorMessage(result)
	if err := r.reg.UpdateStatus(t.ID, domain.StatusError, reason); err != nil {
		r.log.Warn("reader: error transition rejected", "terminal", t.ID, "error", err)
	}
}

// lastMatchAfterEcho returns the byte offset of the last occurrence of
// marker in text, ignoring an occurrence that is exactly the echoed
// injection line (the tie-break in spec section 4.3: a marker inside the
// user-visible echo of the injected input must not be mistaken for the
// agent's own completion signal).
func lastMatchAfterEcho(text, marker, injectedRaw string) (int, bool) {
	idx := strings.LastIndex(text, marker)
	if idx < 0 {
		return 0, false
	}
	if injectedRaw != "" && strings.Contains(injectedRaw, marker) {
		// The marker is part of the instruction text we ourselves typed;
		// if the only hit is inside (or identical to) the echoed
		// injection block, it is not a real signal. Search again,
		// restricted to occurrences strictly after the echoed block.
		echoIdx := strings.Index(text, injectedRaw)
		if echoIdx >= 0 {
			echoEnd := echoIdx + len(injectedRaw)
			if idx < echoEnd {
				rest := text[echoEnd:]
				restIdx := strings.LastIndex(rest, marker)
				if restIdx < 0 {
					return 0, false
				}
				return echoEnd + restIdx, true
			}
		}
	}
	return idx, true
}

// extractResult returns the text between the end of the echoed injection
// and the given marker, which spec section 4.3 defines as the task result.
func extractResult(text, injectedRaw, marker string) string {
	start := 0
	if injectedRaw != "" {
		if echoIdx := strings.Index(text, injectedRaw); echoIdx >= 0 {
			start = echoIdx + len(injectedRaw)
		}
	}
	end := strings.LastIndex(text, marker)
	if end < start {
		end = len(text)
	}
	if start > len(text) {
		start = 0
	}
	return strings.TrimSpace(text[start:end])
}
