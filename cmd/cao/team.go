package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/FC4b/cli-agent-orchestrator/internal/caoclient"
)

// teamAgent is one line of a --agent flag, "<profile>[:<provider>]".
type teamAgent struct {
	Profile  string
	Provider string
}

var (
	teamAgentsFlag []string
	teamCWD        string
	teamHeadless   bool
)

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Launch a supervisor + worker-pane team in one session",
	Long: `Creates one terminal per --agent, the first as the session's
initial terminal and the rest as split panes inside that same session
(spec's spawn_pane primitive), then attaches unless --headless is given.

Examples:

  cao team --agent supervisor --agent developer --agent reviewer
  cao team --agent supervisor:claude_code --agent developer:codex_cli --cwd ./my-project`,
	RunE: runTeam,
}

func init() {
	teamCmd.Flags().StringArrayVar(&teamAgentsFlag, "agent", nil, "agent profile to include, optionally profile:provider (repeatable, first is the supervisor)")
	teamCmd.Flags().StringVarP(&teamCWD, "cwd", "C", "", "working directory for the team (default: current directory)")
	teamCmd.Flags().BoolVar(&teamHeadless, "headless", false, "launch in detached mode, don't attach")
	rootCmd.AddCommand(teamCmd)
}

func parseTeamAgents(raw []string) []teamAgent {
	agents := make([]teamAgent, 0, len(raw))
	for _, a := range raw {
		profile, provider, _ := splitOnce(a, ':')
		agents = append(agents, teamAgent{Profile: profile, Provider: provider})
	}
	return agents
}

func splitOnce(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func runTeam(cmd *cobra.Command, args []string) error {
	agents := parseTeamAgents(teamAgentsFlag)
	if len(agents) == 0 {
		return usageErr("at least one --agent is required")
	}

	cwd := teamCWD
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cwd = wd
	}

	ctx := cmd.Context()
	c := client()

	var supervisor caoclient.CreateTerminalResponse
	req := caoclient.CreateTerminalRequest{Agent: agents[0].Profile, Provider: agents[0].Provider, CWD: cwd}
	if err := c.Do(ctx, "POST", "/terminals", req, &supervisor); err != nil {
		return err
	}
	fmt.Printf("  supervisor: %s (%s)\n", agents[0].Profile, supervisor.ID)

	for _, a := range agents[1:] {
		var spawned caoclient.SpawnPaneResponse
		paneReq := caoclient.SpawnPaneRequest{FromID: supervisor.ID, Agent: a.Profile, Provider: a.Provider}
		if err := c.Do(ctx, "POST", "/orchestrate/spawn_pane", paneReq, &spawned); err != nil {
			return fmt.Errorf("spawning pane for %s: %w", a.Profile, err)
		}
		fmt.Printf("  worker: %s (%s)\n", a.Profile, spawned.TerminalID)
	}

	fmt.Printf("\nSession: %s\n", supervisor.SessionName)
	if !teamHeadless {
		attach(supervisor.SessionName)
	}
	return nil
}
