package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/FC4b/cli-agent-orchestrator/internal/apperr"
	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"github.com/FC4b/cli-agent-orchestrator/internal/flow"
)

func (h *Handler) flowPath(name string) string {
	return filepath.Join(h.flowDir, name+".md")
}

// createFlow accepts a raw flow file (front-matter + prompt template) as
// the request body, validates it parses, and writes it under the flow
// directory (spec section 6: "POST /flows | flow file body | {name}").
func (h *Handler) createFlow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInvalidRequest, "failed to read request body", err))
		return
	}

	f, err := flow.Parse("request body", string(data))
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid flow definition", err))
		return
	}

	if err := os.MkdirAll(h.flowDir, 0o700); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to create flow directory", err))
		return
	}
	if err := os.WriteFile(h.flowPath(f.Name), data, 0o600); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to write flow file", err))
		return
	}
	if err := h.sched.Reload(); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to reload flows", err))
		return
	}

	writeJSON(w, http.StatusCreated, CreateFlowResponse{Name: f.Name})
}

func (h *Handler) listFlows(w http.ResponseWriter, r *http.Request) {
	flows := h.sched.List()
	out := make([]FlowSummary, len(flows))
	for i, f := range flows {
		out[i] = flowToSummary(f)
	}
	writeJSON(w, http.StatusOK, out)
}

// getFlow returns the raw file content so POST /flows followed by
// GET /flows/{name} round-trips bit-identically (spec section 8).
func (h *Handler) getFlow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := os.ReadFile(h.flowPath(name))
	if os.IsNotExist(err) {
		writeAppError(w, apperr.New(apperr.KindNotFound, "unknown flow "+name))
		return
	}
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to read flow file", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) runFlow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, err := h.sched.RunNow(r.Context(), name)
	if err != nil {
		if os.IsNotExist(err) {
			writeAppError(w, apperr.New(apperr.KindNotFound, "unknown flow "+name))
			return
		}
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to run flow", err))
		return
	}
	writeJSON(w, http.StatusOK, RunFlowResponse{TerminalID: id})
}

// patchFlow toggles a flow's enabled state, both in the running scheduler
// and in its on-disk front matter.
func (h *Handler) patchFlow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req PatchFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInvalidRequest, "invalid request body", err))
		return
	}
	if req.Enabled == nil {
		writeJSON(w, http.StatusOK, OkResponse{Ok: true})
		return
	}

	path := h.flowPath(name)
	f, err := flow.ParseFile(path)
	if os.IsNotExist(err) {
		writeAppError(w, apperr.New(apperr.KindNotFound, "unknown flow "+name))
		return
	}
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to read flow file", err))
		return
	}
	f.Enabled = req.Enabled

	if err := writeFlowFile(path, f); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to persist flow file", err))
		return
	}
	if err := h.sched.SetEnabled(name, *req.Enabled); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to update scheduler", err))
		return
	}
	writeJSON(w, http.StatusOK, OkResponse{Ok: true})
}

func (h *Handler) deleteFlow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := os.Remove(h.flowPath(name)); err != nil && !os.IsNotExist(err) {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to delete flow file", err))
		return
	}
	if err := h.sched.Reload(); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindInternal, "failed to reload flows", err))
		return
	}
	writeJSON(w, http.StatusOK, OkResponse{Ok: true})
}

// writeFlowFile re-marshals a flow's front matter (preserving its prompt
// template body verbatim) and writes it back, grounded on config.Save's
// atomic temp-file-then-rename pattern.
func writeFlowFile(path string, f *domain.Flow) error {
	header, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	content := "---\n" + string(header) + "---\n" + f.PromptTemplate

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "flow.*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
