// Package orchestrator implements handoff, assign, send_message, shutdown
// and spawn_pane (C5) on top of the Registry, Reader, Bus and Mux adapter.
// It enforces the concurrency contract: a handoff blocks only its caller's
// request; unrelated terminals keep running underneath.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/FC4b/cli-agent-orchestrator/internal/apperr"
	"github.com/FC4b/cli-agent-orchestrator/internal/bus"
	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"github.com/FC4b/cli-agent-orchestrator/internal/mux"
	"github.com/FC4b/cli-agent-orchestrator/internal/provider"
	"github.com/FC4b/cli-agent-orchestrator/internal/provider/circuit"
	"github.com/FC4b/cli-agent-orchestrator/internal/reader"
	"github.com/FC4b/cli-agent-orchestrator/internal/registry"
)

// DefaultStartupTimeout bounds how long a freshly launched terminal has to
// reach IDLE before handoff/assign/spawn_pane give up with launch-failure.
const DefaultStartupTimeout = 60 * time.Second

// breakerThreshold/breakerCooldown bound how many consecutive launch
// failures a single provider tolerates before launch requests for it are
// failed fast, and how long that cooldown lasts.
const (
	breakerThreshold = 3
	breakerCooldown  = 30 * time.Second
)

// HandoffResult is what a handoff call returns to its caller.
type HandoffResult struct {
	TerminalID string
	Output     string
	Failed     bool
}

type Orchestrator struct {
	reg       *registry.Registry
	mux       mux.Mux
	reader    *reader.Reader
	bus       *bus.Bus
	providers *provider.Registry
	log       *slog.Logger

	startupTimeout time.Duration

	breakersMu sync.Mutex
	breakers   map[string]*circuit.Breaker
}

func New(reg *registry.Registry, m mux.Mux, rd *reader.Reader, b *bus.Bus, providers *provider.Registry, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		reg:            reg,
		mux:            m,
		reader:         rd,
		bus:            b,
		providers:      providers,
		log:            log,
		startupTimeout: DefaultStartupTimeout,
		breakers:       make(map[string]*circuit.Breaker),
	}
}

// breakerFor returns the per-provider circuit breaker, creating one on
// first use. A broken provider (repeated launch failures) fails new launch
// attempts fast instead of retrying a command that is known to not work.
func (o *Orchestrator) breakerFor(providerKey string) *circuit.Breaker {
	o.breakersMu.Lock()
	defer o.breakersMu.Unlock()
	cb, ok := o.breakers[providerKey]
	if !ok {
		cb = circuit.NewBreaker(breakerThreshold, breakerCooldown)
		o.breakers[providerKey] = cb
	}
	return cb
}

func sessionNameFor(terminalID string) string {
	return "cao-" + terminalID
}

// launch allocates a terminal, starts its provider under the mux, and wires
// it into the Reader/Bus. It does not wait for IDLE; callers do that with
// waitForStatus so the caller controls the timeout context.
func (o *Orchestrator) launch(agentProfile, providerKey, cwd, parentID string) (*domain.Terminal, error) {
	cfg, err := o.providers.Get(providerKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "unknown provider", err)
	}

	cb := o.breakerFor(providerKey)
	if cb.IsInCooldown() {
		return nil, apperr.New(apperr.KindLaunchFailure, fmt.Sprintf(
			"provider %q is in cooldown after repeated launch failures, retry in %s",
			providerKey, cb.CooldownRemaining().Round(time.Second)))
	}

	t := o.reg.NewTerminal(agentProfile, providerKey, cwd, parentID)
	sessionName := sessionNameFor(t.ID)
	t.SetSessionName(sessionName)

	launchCmd := cfg.LaunchCommand(agentProfile, cwd)
	if cfg.EnvVar != "" {
		launchCmd = fmt.Sprintf("%s=%s %s", cfg.EnvVar, t.ID, launchCmd)
	}

	if err := o.mux.Create(sessionName, cwd, launchCmd); err != nil {
		cb.RecordFailure()
		t.SetErrorMessage(err.Error())
		_ = o.reg.UpdateStatus(t.ID, domain.StatusError, "launch failed")
		return t, apperr.Wrap(apperr.KindLaunchFailure, "failed to create session", err).WithTerminal(t.ID)
	}
	cb.Reset()

	o.reader.StartPolling(t)
	o.bus.Watch(t)
	return t, nil
}

// waitForStatus blocks until t reaches one of target, the terminal dies, or
// ctx is done. It subscribes before re-checking current status to close the
// race where the edge fires between the initial check and subscription.
func (o *Orchestrator) waitForStatus(ctx context.Context, id string, targets ...domain.Status) (domain.Status, error) {
	isTarget := func(s domain.Status) bool {
		for _, want := range targets {
			if s == want {
				return true
			}
		}
		return false
	}

	t, err := o.reg.Get(id)
	if err != nil {
		return 0, err
	}
	if s := t.GetStatus(); isTarget(s) {
		return s, nil
	}

	edges, cancel, err := o.reg.Subscribe(id)
	if err != nil {
		return 0, err
	}
	defer cancel()

	if s := t.GetStatus(); isTarget(s) {
		return s, nil
	}

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case s, ok := <-edges:
			if !ok {
				return 0, fmt.Errorf("terminal %s: subscription closed before reaching a target status", id)
			}
			if isTarget(s) || s == domain.StatusDead {
				return s, nil
			}
		}
	}
}

// Launch allocates a terminal and starts it under the mux without
// injecting any task, for POST /terminals (bare session creation; the
// caller is expected to poll GET /terminals/{id} or use wait for IDLE).
func (o *Orchestrator) Launch(agentProfile, providerKey, cwd, parentID string) (*domain.Terminal, error) {
	return o.launch(agentProfile, providerKey, cwd, parentID)
}

// Handoff allocates a terminal, waits for it to come up, injects body, and
// blocks until the terminal completes or errors. On success it runs the
// provider's exit command and kills the session; on failure it leaves the
// terminal alive for inspection.
func (o *Orchestrator) Handoff(ctx context.Context, fromID, agentProfile, providerKey, body, cwd string) (HandoffResult, error) {
	t, err := o.launch(agentProfile, providerKey, cwd, fromID)
	if err != nil {
		res := HandoffResult{Failed: true}
		if t != nil {
			res.TerminalID = t.ID
		}
		return res, err
	}

	startCtx, cancel := context.WithTimeout(ctx, o.startupTimeout)
	defer cancel()
	if _, err := o.waitForStatus(startCtx, t.ID, domain.StatusIdle); err != nil {
		t.SetErrorMessage("ready prompt not observed within startup timeout")
		_ = o.reg.UpdateStatus(t.ID, domain.StatusError, "startup timeout")
		return HandoffResult{TerminalID: t.ID, Failed: true},
			apperr.Wrap(apperr.KindLaunchFailure, "terminal did not become ready in time", err).WithTerminal(t.ID)
	}

	t.SetCurrentTask(body)
	if err := o.reader.Inject(t, body, true); err != nil {
		return HandoffResult{TerminalID: t.ID, Failed: true},
			apperr.Wrap(apperr.KindInternal, "failed to inject task", err).WithTerminal(t.ID)
	}

	final, err := o.waitForStatus(ctx, t.ID, domain.StatusCompleted, domain.StatusError)
	if err != nil {
		return HandoffResult{TerminalID: t.ID, Failed: true},
			apperr.Wrap(apperr.KindInternal, "interrupted waiting for completion", err).WithTerminal(t.ID)
	}

	output, _ := o.reader.Output(t.ID, reader.OutputModeLast)

	if final == domain.StatusError || final == domain.StatusDead {
		o.log.Warn("orchestrator: handoff terminal did not complete cleanly", "terminal", t.ID, "status", final)
		return HandoffResult{TerminalID: t.ID, Output: output, Failed: true}, nil
	}

	o.teardown(t, providerKey)
	return HandoffResult{TerminalID: t.ID, Output: output}, nil
}

// teardown runs the provider's exit command (best-effort) and kills a
// terminal that finished successfully.
func (o *Orchestrator) teardown(t *domain.Terminal, providerKey string) {
	if cfg, err := o.providers.Get(providerKey); err == nil && cfg.ExitCommand != "" {
		if err := o.mux.SendKeys(t.SessionName, cfg.ExitCommand, true); err != nil {
			o.log.Warn("orchestrator: exit command failed", "terminal", t.ID, "error", err)
		}
	}
	o.bus.Unwatch(t.ID)
	o.reader.StopPolling(t.ID)
	if err := o.mux.Kill(t.SessionName); err != nil {
		o.log.Warn("orchestrator: kill failed after handoff", "terminal", t.ID, "error", err)
	}
	if err := o.reg.UpdateStatus(t.ID, domain.StatusDead, "handoff complete"); err != nil {
		o.log.Warn("orchestrator: dead transition rejected", "terminal", t.ID, "error", err)
	}
}

// assignCallbackSuffix instructs the new terminal to report its own result
// back through send_message rather than through the completion marker the
// Reader watches for (assign does not block, so nothing is waiting on it).
func assignCallbackSuffix(callbackID string) string {
	return fmt.Sprintf(
		"\n\nWhen you have completed the above task, call the send_message tool with receiver_id=%q containing your result. If you cannot complete it, call send_message to the same recipient describing the failure instead.",
		callbackID,
	)
}

// Assign allocates a terminal, waits for it to come up, injects body plus a
// callback instruction, and returns immediately; the terminal keeps running.
func (o *Orchestrator) Assign(ctx context.Context, fromID, agentProfile, providerKey, body, cwd, callbackID string) (string, error) {
	if callbackID == "" {
		callbackID = fromID
	}

	t, err := o.launch(agentProfile, providerKey, cwd, fromID)
	if err != nil {
		id := ""
		if t != nil {
			id = t.ID
		}
		return id, err
	}

	startCtx, cancel := context.WithTimeout(ctx, o.startupTimeout)
	defer cancel()
	if _, err := o.waitForStatus(startCtx, t.ID, domain.StatusIdle); err != nil {
		t.SetErrorMessage("ready prompt not observed within startup timeout")
		_ = o.reg.UpdateStatus(t.ID, domain.StatusError, "startup timeout")
		return t.ID, apperr.Wrap(apperr.KindLaunchFailure, "terminal did not become ready in time", err).WithTerminal(t.ID)
	}

	t.SetCurrentTask(body)
	full := body + assignCallbackSuffix(callbackID)
	if err := o.reader.Inject(t, full, false); err != nil {
		return t.ID, apperr.Wrap(apperr.KindInternal, "failed to inject task", err).WithTerminal(t.ID)
	}
	return t.ID, nil
}

// SendMessage enqueues body for to_id via the Bus, nudging an immediate
// delivery attempt when the recipient is already IDLE. delivered reports
// whether that immediate attempt actually emptied the slot, not merely
// whether one was attempted.
func (o *Orchestrator) SendMessage(fromID, toID, body string) (delivered bool, err error) {
	to, err := o.reg.Get(toID)
	if err != nil {
		return false, err
	}

	msg := domain.Message{
		FromID:     fromID,
		ToID:       toID,
		Body:       body,
		Kind:       domain.MessageKindUser,
		EnqueuedAt: time.Now(),
	}
	if err := o.reg.Enqueue(toID, msg); err != nil {
		return false, err
	}

	before := to.InboxLen()
	o.bus.TryDeliver(to)
	after := to.InboxLen()
	return after < before, nil
}

// Shutdown kills id's mux target (session or pane) and marks it DEAD.
// Idempotent: shutting down an already-DEAD terminal succeeds silently.
func (o *Orchestrator) Shutdown(id string) error {
	t, err := o.reg.Get(id)
	if err != nil {
		return err
	}
	if t.GetStatus() == domain.StatusDead {
		return nil
	}

	o.bus.Unwatch(id)
	o.reader.StopPolling(id)

	if t.PaneID != "" {
		if err := o.mux.KillPane(t.PaneID); err != nil {
			o.log.Warn("orchestrator: kill-pane failed", "terminal", id, "error", err)
		}
	} else if t.SessionName != "" {
		if err := o.mux.Kill(t.SessionName); err != nil {
			o.log.Warn("orchestrator: kill failed", "terminal", id, "error", err)
		}
	}

	return o.reg.Remove(id)
}

// ShutdownAll tears down every terminal not already DEAD, collecting
// per-terminal errors rather than stopping at the first failure.
func (o *Orchestrator) ShutdownAll() []error {
	var errs []error
	for _, t := range o.reg.List() {
		if t.GetStatus() == domain.StatusDead {
			continue
		}
		if err := o.Shutdown(t.ID); err != nil {
			errs = append(errs, fmt.Errorf("terminal %s: %w", t.ID, err))
		}
	}
	return errs
}

// SpawnPane splits a new pane inside from_id's own session (60/40
// main-horizontal) instead of creating a fresh session, then, if body is
// non-empty, assigns it the task the same way Assign does.
func (o *Orchestrator) SpawnPane(ctx context.Context, fromID, agentProfile, providerKey, body string) (string, error) {
	parent, err := o.reg.Get(fromID)
	if err != nil {
		return "", err
	}
	if parent.SessionName == "" {
		return "", apperr.New(apperr.KindInvalidRequest, "caller has no session to split a pane from").WithTerminal(fromID)
	}

	cfg, err := o.providers.Get(providerKey)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidRequest, "unknown provider", err)
	}

	cb := o.breakerFor(providerKey)
	if cb.IsInCooldown() {
		return "", apperr.New(apperr.KindLaunchFailure, fmt.Sprintf(
			"provider %q is in cooldown after repeated launch failures, retry in %s",
			providerKey, cb.CooldownRemaining().Round(time.Second)))
	}

	t := o.reg.NewTerminal(agentProfile, providerKey, parent.CWD, fromID)
	launchCmd := cfg.LaunchCommand(agentProfile, parent.CWD)
	if cfg.EnvVar != "" {
		launchCmd = fmt.Sprintf("%s=%s %s", cfg.EnvVar, t.ID, launchCmd)
	}

	paneID, err := o.mux.SplitPane(parent.SessionName, parent.CWD, launchCmd)
	if err != nil {
		cb.RecordFailure()
		_ = o.reg.UpdateStatus(t.ID, domain.StatusError, "split-pane failed")
		return t.ID, apperr.Wrap(apperr.KindLaunchFailure, "failed to split pane", err).WithTerminal(t.ID)
	}
	cb.Reset()
	t.SetPaneID(paneID)
	t.SetSessionName(parent.SessionName)

	o.reader.StartPolling(t)
	o.bus.Watch(t)

	if body == "" {
		return t.ID, nil
	}

	startCtx, cancel := context.WithTimeout(ctx, o.startupTimeout)
	defer cancel()
	if _, err := o.waitForStatus(startCtx, t.ID, domain.StatusIdle); err != nil {
		t.SetErrorMessage("ready prompt not observed within startup timeout")
		_ = o.reg.UpdateStatus(t.ID, domain.StatusError, "startup timeout")
		return t.ID, apperr.Wrap(apperr.KindLaunchFailure, "pane did not become ready in time", err).WithTerminal(t.ID)
	}

	t.SetCurrentTask(body)
	full := body + assignCallbackSuffix(fromID)
	if err := o.reader.Inject(t, full, false); err != nil {
		return t.ID, apperr.Wrap(apperr.KindInternal, "failed to inject task", err).WithTerminal(t.ID)
	}
	return t.ID, nil
}
