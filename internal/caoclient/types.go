package caoclient

import "time"

// Terminal mirrors api.TerminalResponse — the CLI only needs to read
// fields, never produce this shape, so it keeps its own minimal copy
// rather than importing the server's internal/api package.
type Terminal struct {
	ID           string    `json:"id"`
	SessionName  string    `json:"session_name,omitempty"`
	AgentProfile string    `json:"agent_profile"`
	Provider     string    `json:"provider"`
	CWD          string    `json:"cwd"`
	Status       string    `json:"status"`
	CurrentTask  string    `json:"current_task,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
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

type OkResponse struct {
	Ok bool `json:"ok"`
}

// TerminalListResponse wraps both GET /terminals and
// GET /sessions/{name}/terminals (spec section 6).
type TerminalListResponse struct {
	Terminals []Terminal `json:"terminals"`
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

type MessageRequest struct {
	FromID string `json:"from_id"`
	Body   string `json:"body"`
}

type MessageResponse struct {
	Status string `json:"status"`
}

type SessionSummary struct {
	SessionName string     `json:"session_name"`
	Terminals   []Terminal `json:"terminals"`
}

type FlowSummary struct {
	Name         string    `json:"name"`
	Schedule     string    `json:"schedule"`
	AgentProfile string    `json:"agent_profile"`
	Provider     string    `json:"provider,omitempty"`
	Enabled      bool      `json:"enabled"`
	NextFireAt   time.Time `json:"next_fire_at"`
}

type RunFlowResponse struct {
	TerminalID string `json:"terminal_id"`
}

type PatchFlowRequest struct {
	Enabled *bool `json:"enabled,omitempty"`
}
