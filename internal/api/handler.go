// Package api is the HTTP control plane (C7): a thin chi-routed validation
// layer in front of the Orchestrator, Registry, Reader and Flow Scheduler.
// Grounded on the teacher's internal/api/handler.go: a Handler struct
// holding service references, Mount(r chi.Router) registering routes, and
// a centralized apperr-to-status error translator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FC4b/cli-agent-orchestrator/internal/apperr"
	"github.com/FC4b/cli-agent-orchestrator/internal/config"
	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"github.com/FC4b/cli-agent-orchestrator/internal/flow"
	"github.com/FC4b/cli-agent-orchestrator/internal/orchestrator"
	"github.com/FC4b/cli-agent-orchestrator/internal/profile"
	"github.com/FC4b/cli-agent-orchestrator/internal/reader"
	"github.com/FC4b/cli-agent-orchestrator/internal/registry"

	"log/slog"
)

const defaultWaitTimeout = 60 * time.Second

// Handler routes control-plane requests to the Registry/Orchestrator/
// Reader/Scheduler/Profile Store.
type Handler struct {
	reg      *registry.Registry
	orch     *orchestrator.Orchestrator
	rd       *reader.Reader
	sched    *flow.Scheduler
	profiles *profile.Store
	cfg      *config.Config
	flowDir  string
	log      *slog.Logger
}

func NewHandler(reg *registry.Registry, orch *orchestrator.Orchestrator, rd *reader.Reader, sched *flow.Scheduler, profiles *profile.Store, cfg *config.Config, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		reg:      reg,
		orch:     orch,
		rd:       rd,
		sched:    sched,
		profiles: profiles,
		cfg:      cfg,
		flowDir:  cfg.FlowDir,
		log:      log,
	}
}

// Mount registers every route named in spec section 6.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/terminals", h.createTerminal)
	r.Get("/terminals", h.listTerminals)
	r.Get("/terminals/{id}", h.getTerminal)
	r.Delete("/terminals/{id}", h.deleteTerminal)
	r.Post("/terminals/{id}/input", h.inputTerminal)
	r.Get("/terminals/{id}/output", h.outputTerminal)
	r.Post("/terminals/{id}/messages", h.messageTerminal)
	r.Post("/terminals/{id}/wait", h.waitTerminal)

	r.Post("/orchestrate/handoff", h.handoff)
	r.Post("/orchestrate/assign", h.assign)
	r.Post("/orchestrate/spawn_pane", h.spawnPane)

	r.Get("/sessions", h.listSessions)
	r.Get("/sessions/{name}/terminals", h.sessionTerminals)

	r.Post("/flows", h.createFlow)
	r.Get("/flows", h.listFlows)
	r.Get("/flows/{name}", h.getFlow)
	r.Post("/flows/{name}/run", h.runFlow)
	r.Patch("/flows/{name}", h.patchFlow)
	r.Delete("/flows/{name}", h.deleteFlow)

	r.Get("/health", h.health)
}

// resolveProvider applies the precedence order: explicit request value,
// then the agent profile's declared provider, then the config's
// per-agent/default provider.
func (h *Handler) resolveProvider(agentProfile, requested string) string {
	if requested != "" {
		return requested
	}
	if p, ok := h.profiles.Get(agentProfile); ok && p.Provider != "" {
		return p.Provider
	}
	return h.cfg.ProviderFor(agentProfile)
}

// withProfilePreamble prepends the agent profile's markdown body (its
// system-prompt / first injected context, spec section 4.10) to body when
// a profile by that name is loaded.
func (h *Handler) withProfilePreamble(agentProfile, body string) string {
	p, ok := h.profiles.Get(agentProfile)
	if !ok || strings.TrimSpace(p.Body) == "" {
		return body
	}
	return p.Body + "\n\n" + body
}

func (h *Handler) createTerminal(w http.ResponseWriter, r *http.Request) {
	var req CreateTerminalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
		return
	}
	if req.Agent == "" {
		writeAppError(w, apperr.New(apperr.KindInvalidRequest, "agent is required"))
		return
	}

	providerKey := h.resolveProvider(req.Agent, req.Provider)
	t, err := h.orch.Launch(req.Agent, providerKey, req.CWD, req.ParentID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateTerminalResponse{
		ID:          t.ID,
		SessionName: t.SessionName,
		Status:      t.GetStatus().String(),
	})
}

func (h *Handler) listTerminals(w http.ResponseWriter, r *http.Request) {
	terms := h.reg.List()
	out := make([]TerminalResponse, len(terms))
	for i, t := range terms {
		out[i] = terminalToResponse(t.Snapshot())
	}
	writeJSON(w, http.StatusOK, TerminalListResponse{Terminals: out})
}

func (h *Handler) getTerminal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.reg.Get(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, terminalToResponse(t.Snapshot()))
}

func (h *Handler) deleteTerminal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.orch.Shutdown(id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OkResponse{Ok: true})
}

func (h *Handler) inputTerminal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
		return
	}

	t, err := h.reg.Get(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.rd.Inject(t, req.Body, false); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to inject input", err).WithTerminal(id))
		return
	}
	writeJSON(w, http.StatusOK, OkResponse{Ok: true})
}

func (h *Handler) outputTerminal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mode := reader.OutputMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = reader.OutputModeLast
	}
	if mode != reader.OutputModeLast && mode != reader.OutputModeFull {
		writeAppError(w, apperr.New(apperr.KindInvalidRequest, "mode must be \"full\" or \"last\""))
		return
	}
	if _, err := h.reg.Get(id); err != nil {
		writeAppError(w, err)
		return
	}
	out, _ := h.rd.Output(id, mode)
	writeJSON(w, http.StatusOK, OutputResponse{Output: out})
}

func (h *Handler) messageTerminal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
		return
	}
	if req.Body == "" {
		writeAppError(w, apperr.New(apperr.KindInvalidRequest, "body is required"))
		return
	}

	delivered, err := h.orch.SendMessage(req.FromID, id, req.Body)
	if err != nil {
		writeAppError(w, err)
		return
	}
	status := "queued"
	if delivered {
		status = "delivered"
	}
	writeJSON(w, http.StatusOK, MessageResponse{Status: status})
}

func (h *Handler) waitTerminal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	timeout := defaultWaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 {
			writeAppError(w, apperr.New(apperr.KindInvalidRequest, "timeout must be a non-negative integer number of seconds"))
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	t, err := h.reg.Get(id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	if s := t.GetStatus(); s != domain.StatusBusy && s != domain.StatusStarting {
		writeJSON(w, http.StatusOK, WaitResponse{Status: s.String()})
		return
	}

	edges, unsub, err := h.reg.Subscribe(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer unsub()

	if s := t.GetStatus(); s != domain.StatusBusy && s != domain.StatusStarting {
		writeJSON(w, http.StatusOK, WaitResponse{Status: s.String()})
		return
	}

	for {
		select {
		case <-ctx.Done():
			writeAppError(w, apperr.New(apperr.KindTimeout, "timed out waiting for terminal to settle").WithTerminal(id))
			return
		case s, ok := <-edges:
			if !ok || s != domain.StatusBusy && s != domain.StatusStarting {
				final := t.GetStatus()
				writeJSON(w, http.StatusOK, WaitResponse{Status: final.String()})
				return
			}
		}
	}
}

func (h *Handler) handoff(w http.ResponseWriter, r *http.Request) {
	var req HandoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
		return
	}
	if req.Agent == "" || req.Body == "" {
		writeAppError(w, apperr.New(apperr.KindInvalidRequest, "agent and body are required"))
		return
	}

	providerKey := h.resolveProvider(req.Agent, req.Provider)
	body := h.withProfilePreamble(req.Agent, req.Body)

	res, err := h.orch.Handoff(r.Context(), req.FromID, req.Agent, providerKey, body, req.CWD)
	if err != nil {
		writeAppError(w, err)
		return
	}
	status := "COMPLETED"
	if res.Failed {
		status = "ERROR"
	}
	writeJSON(w, http.StatusOK, HandoffResponse{TerminalID: res.TerminalID, Output: res.Output, Status: status})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
		return
	}
	if req.Agent == "" || req.Body == "" {
		writeAppError(w, apperr.New(apperr.KindInvalidRequest, "agent and body are required"))
		return
	}

	providerKey := h.resolveProvider(req.Agent, req.Provider)
	body := h.withProfilePreamble(req.Agent, req.Body)

	id, err := h.orch.Assign(r.Context(), req.FromID, req.Agent, providerKey, body, req.CWD, req.Callback)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignResponse{TerminalID: id})
}

func (h *Handler) spawnPane(w http.ResponseWriter, r *http.Request) {
	var req SpawnPaneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
		return
	}
	if req.FromID == "" || req.Agent == "" {
		writeAppError(w, apperr.New(apperr.KindInvalidRequest, "from_id and agent are required"))
		return
	}

	providerKey := h.resolveProvider(req.Agent, req.Provider)
	body := req.Body
	if body != "" {
		body = h.withProfilePreamble(req.Agent, body)
	}

	id, err := h.orch.SpawnPane(r.Context(), req.FromID, req.Agent, providerKey, body)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SpawnPaneResponse{TerminalID: id})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.groupBySession(h.reg.List()))
}

func (h *Handler) sessionTerminals(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var out []TerminalResponse
	for _, t := range h.reg.List() {
		if t.SessionName == name {
			out = append(out, terminalToResponse(t.Snapshot()))
		}
	}
	writeJSON(w, http.StatusOK, TerminalListResponse{Terminals: out})
}

func (h *Handler) groupBySession(terms []*domain.Terminal) []SessionSummary {
	bySession := map[string][]TerminalResponse{}
	var order []string
	for _, t := range terms {
		if _, seen := bySession[t.SessionName]; !seen {
			order = append(order, t.SessionName)
		}
		bySession[t.SessionName] = append(bySession[t.SessionName], terminalToResponse(t.Snapshot()))
	}
	out := make([]SessionSummary, 0, len(order))
	for _, name := range order {
		out = append(out, SessionSummary{SessionName: name, Terminals: bySession[name]})
	}
	return out
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OkResponse{Ok: true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeAppError translates an apperr.Error (or any error, defaulting to
// internal) into the {kind, message, terminal_id?} body from spec
// section 7.
func writeAppError(w http.ResponseWriter, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			ae = apperr.New(apperr.KindTimeout, err.Error())
		} else {
			ae = apperr.New(apperr.KindInternal, err.Error())
		}
	}
	writeJSON(w, apperr.HTTPStatus(ae.Kind), ErrorResponse{
		Kind:       string(ae.Kind),
		Message:    ae.Message,
		TerminalID: ae.TerminalID,
	})
}
