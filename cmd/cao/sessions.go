package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FC4b/cli-agent-orchestrator/internal/caoclient"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live tmux sessions and their terminals",
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	var sessions []caoclient.SessionSummary
	if err := client().Do(cmd.Context(), "GET", "/sessions", nil, &sessions); err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No active sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s\n", s.SessionName)
		for _, t := range s.Terminals {
			fmt.Printf("  %s  %-20s %s\n", t.ID, t.AgentProfile, t.Status)
		}
	}
	return nil
}
