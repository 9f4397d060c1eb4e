package api

import (
	"time"

	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
)

// TerminalResponse is the wire shape of a TerminalState (spec section 3).
type TerminalResponse struct {
	ID           string    `json:"id"`
	SessionName  string    `json:"session_name,omitempty"`
	PaneID       string    `json:"pane_id,omitempty"`
	AgentProfile string    `json:"agent_profile"`
	Provider     string    `json:"provider"`
	CWD          string    `json:"cwd"`
	ParentID     string    `json:"parent_id,omitempty"`
	Status       string    `json:"status"`
	CurrentTask  string    `json:"current_task,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	InboxLen     int       `json:"inbox_len"`
	CreatedAt    time.Time `json:"created_at"`
	LastStatusAt time.Time `json:"last_status_at"`
}

func terminalToResponse(s domain.Snapshot) TerminalResponse {
	return TerminalResponse{
		ID:           s.ID,
		SessionName:  s.SessionName,
		PaneID:       s.PaneID,
		AgentProfile: s.AgentProfile,
		Provider:     s.Provider,
		CWD:          s.CWD,
		ParentID:     s.ParentID,
		Status:       s.Status.String(),
		CurrentTask:  s.CurrentTask,
		ErrorMessage: s.ErrorMessage,
		InboxLen:     s.InboxLen,
		CreatedAt:    s.CreatedAt,
		LastStatusAt: s.LastStatusAt,
	}
}

type CreateTerminalRequest struct {
	Agent    string `json:"agent"`
	Provider string `json:"provider,omitempty"`
	CWD      string `json:"cwd,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

type CreateTerminalResponse struct {
	ID          string `json:"id"`
	SessionName string `json:"session_name"`
	Status      string `json:"status"`
}

type TerminalListResponse struct {
	Terminals []TerminalResponse `json:"terminals"`
}

type OkResponse struct {
	Ok bool `json:"ok"`
}

type InputRequest struct {
	Body string `json:"body"`
}

type OutputResponse struct {
	Output string `json:"output"`
}

type MessageRequest struct {
	FromID string             `json:"from_id"`
	Body   string             `json:"body"`
	Kind   domain.MessageKind `json:"kind,omitempty"`
}

type MessageResponse struct {
	Status string `json:"status"` // "queued" | "delivered"
}

type WaitResponse struct {
	Status string `json:"status"`
}

type HandoffRequest struct {
	FromID   string `json:"from_id"`
	Agent    string `json:"agent"`
	Provider string `json:"provider,omitempty"`
	Body     string `json:"body"`
	CWD      string `json:"cwd,omitempty"`
}

type HandoffResponse struct {
	TerminalID string `json:"terminal_id"`
	Output     string `json:"output"`
	Status     string `json:"status"`
}

type AssignRequest struct {
	FromID   string `json:"from_id"`
	Agent    string `json:"agent"`
	Provider string `json:"provider,omitempty"`
	Body     string `json:"body"`
	CWD      string `json:"cwd,omitempty"`
	Callback string `json:"callback,omitempty"`
}

type AssignResponse struct {
	TerminalID string `json:"terminal_id"`
}

type SpawnPaneRequest struct {
	FromID   string `json:"from_id"`
	Agent    string `json:"agent"`
	Provider string `json:"provider,omitempty"`
	Body     string `json:"body,omitempty"`
}

type SpawnPaneResponse struct {
	TerminalID string `json:"terminal_id"`
}

type SessionSummary struct {
	SessionName string             `json:"session_name"`
	Terminals   []TerminalResponse `json:"terminals"`
}

type FlowSummary struct {
	Name         string    `json:"name"`
	Schedule     string    `json:"schedule"`
	AgentProfile string    `json:"agent_profile"`
	Provider     string    `json:"provider,omitempty"`
	Script       string    `json:"script,omitempty"`
	Enabled      bool      `json:"enabled"`
	NextFireAt   time.Time `json:"next_fire_at"`
}

func flowToSummary(f domain.Flow) FlowSummary {
	return FlowSummary{
		Name:         f.Name,
		Schedule:     f.Schedule,
		AgentProfile: f.AgentProfile,
		Provider:     f.Provider,
		Script:       f.Script,
		Enabled:      f.IsEnabled(),
		NextFireAt:   f.NextFireAt,
	}
}

type CreateFlowResponse struct {
	Name string `json:"name"`
}

type PatchFlowRequest struct {
	Enabled *bool `json:"enabled,omitempty"`
}

type RunFlowResponse struct {
	TerminalID string `json:"terminal_id"`
}

// ErrorResponse is the body of every non-2xx response, per spec section 7.
type ErrorResponse struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	TerminalID string `json:"terminal_id,omitempty"`
}
