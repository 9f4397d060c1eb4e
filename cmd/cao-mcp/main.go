// Command cao-mcp is the MCP adapter (C12): it exposes handoff/assign/
// send_message/list_team as MCP tools, each a thin HTTP call against a
// running cao-server. No orchestration logic lives here, grounded on
// original_source/mcp_server/server.py's tool surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/FC4b/cli-agent-orchestrator/internal/caoclient"
	"github.com/FC4b/cli-agent-orchestrator/internal/config"
)

const callerEnvVar = "CAO_TERMINAL_ID"

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}

	a := &adapter{client: caoclient.New("http://" + addr), log: log}

	server := mcp.NewServer(&mcp.Implementation{Name: "cao-mcp-server", Version: "0.1.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "handoff",
		Description: "Hand off a task to another agent and block until it completes, returning its output.",
	}, a.handoff)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "assign",
		Description: "Assign a task to a new worker agent without blocking; include callback instructions in the message.",
	}, a.assign)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "send_message",
		Description: "Send a message to another terminal's inbox, delivered once that terminal goes idle.",
	}, a.sendMessage)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_team",
		Description: "List every terminal in the caller's tmux session.",
	}, a.listTeam)

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Error("mcp server exited with error", "error", err)
		os.Exit(1)
	}
}

type adapter struct {
	client *caoclient.Client
	log    *slog.Logger
}

// callerID returns the current terminal's id from CAO_TERMINAL_ID, the
// only way an MCP tool call identifies its caller (spec section 6's
// "Terminal identification for in-agent tool calls").
func callerID() (string, error) {
	id := os.Getenv(callerEnvVar)
	if id == "" {
		return "", fmt.Errorf("%s not set; this tool must run inside a cao terminal", callerEnvVar)
	}
	return id, nil
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

type HandoffArgs struct {
	AgentProfile string `json:"agent_profile" jsonschema:"the agent profile to hand off to (e.g. developer, analyst)"`
	Message      string `json:"message" jsonschema:"the task to send to the target agent"`
}

func (a *adapter) handoff(ctx context.Context, req *mcp.CallToolRequest, args HandoffArgs) (*mcp.CallToolResult, any, error) {
	from, err := callerID()
	if err != nil {
		return errorResult(err), nil, nil
	}

	var resp caoclient.HandoffResponse
	hreq := caoclient.HandoffRequest{FromID: from, Agent: args.AgentProfile, Body: args.Message}
	if err := a.client.Do(ctx, "POST", "/orchestrate/handoff", hreq, &resp); err != nil {
		return errorResult(err), nil, nil
	}
	return textResult("status=%s terminal=%s\n\n%s", resp.Status, resp.TerminalID, resp.Output), nil, nil
}

type AssignArgs struct {
	AgentProfile string `json:"agent_profile" jsonschema:"the agent profile for the worker terminal"`
	Message      string `json:"message" jsonschema:"the task message; include callback instructions for send_message"`
}

func (a *adapter) assign(ctx context.Context, req *mcp.CallToolRequest, args AssignArgs) (*mcp.CallToolResult, any, error) {
	from, err := callerID()
	if err != nil {
		return errorResult(err), nil, nil
	}

	var resp caoclient.AssignResponse
	areq := caoclient.AssignRequest{FromID: from, Agent: args.AgentProfile, Body: args.Message}
	if err := a.client.Do(ctx, "POST", "/orchestrate/assign", areq, &resp); err != nil {
		return errorResult(err), nil, nil
	}
	return textResult("assigned to %s, terminal %s", args.AgentProfile, resp.TerminalID), nil, nil
}

type SendMessageArgs struct {
	Message      string `json:"message" jsonschema:"message content to send"`
	ReceiverID   string `json:"receiver_id,omitempty" jsonschema:"target terminal id"`
	AgentProfile string `json:"agent_profile,omitempty" jsonschema:"target agent profile, alternative to receiver_id"`
}

func (a *adapter) sendMessage(ctx context.Context, req *mcp.CallToolRequest, args SendMessageArgs) (*mcp.CallToolResult, any, error) {
	from, err := callerID()
	if err != nil {
		return errorResult(err), nil, nil
	}

	target := args.ReceiverID
	if target == "" && args.AgentProfile != "" {
		target, err = a.resolveByProfile(ctx, from, args.AgentProfile)
		if err != nil {
			return errorResult(err), nil, nil
		}
	}
	if target == "" {
		return errorResult(fmt.Errorf("must provide either receiver_id or agent_profile")), nil, nil
	}

	var resp caoclient.MessageResponse
	mreq := caoclient.MessageRequest{FromID: from, Body: args.Message}
	if err := a.client.Do(ctx, "POST", "/terminals/"+target+"/messages", mreq, &resp); err != nil {
		return errorResult(err), nil, nil
	}
	return textResult("%s", resp.Status), nil, nil
}

type ListTeamArgs struct{}

func (a *adapter) listTeam(ctx context.Context, req *mcp.CallToolRequest, args ListTeamArgs) (*mcp.CallToolResult, any, error) {
	me, err := callerID()
	if err != nil {
		return errorResult(err), nil, nil
	}

	var current caoclient.Terminal
	if err := a.client.Do(ctx, "GET", "/terminals/"+me, nil, &current); err != nil {
		return errorResult(err), nil, nil
	}

	var list caoclient.TerminalListResponse
	if err := a.client.Do(ctx, "GET", "/sessions/"+current.SessionName+"/terminals", nil, &list); err != nil {
		return errorResult(err), nil, nil
	}

	out := fmt.Sprintf("session=%s\n", current.SessionName)
	for _, t := range list.Terminals {
		marker := ""
		if t.ID == me {
			marker = " (me)"
		}
		out += fmt.Sprintf("  %s  %s%s\n", t.ID, t.AgentProfile, marker)
	}
	return textResult("%s", out), nil, nil
}

// resolveByProfile finds a terminal in the caller's own session by agent
// profile, mirroring original_source's _find_terminal_by_agent_profile.
func (a *adapter) resolveByProfile(ctx context.Context, from, agentProfile string) (string, error) {
	var current caoclient.Terminal
	if err := a.client.Do(ctx, "GET", "/terminals/"+from, nil, &current); err != nil {
		return "", err
	}
	var list caoclient.TerminalListResponse
	if err := a.client.Do(ctx, "GET", "/sessions/"+current.SessionName+"/terminals", nil, &list); err != nil {
		return "", err
	}
	for _, t := range list.Terminals {
		if t.AgentProfile == agentProfile && t.ID != from {
			return t.ID, nil
		}
	}
	return "", fmt.Errorf("agent %q not found in session %s", agentProfile, current.SessionName)
}
