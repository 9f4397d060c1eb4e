package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/FC4b/cli-agent-orchestrator/internal/caoclient"
)

var (
	launchAgent    string
	launchProvider string
	launchCWD      string
	launchHeadless bool
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch a new agent terminal",
	Long: `Launch a bare agent terminal via cao-server and attach to its tmux
session unless --headless is given.

Examples:

  cao launch --agent developer
  cao launch --agent developer --cwd /path/to/my-project --headless`,
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().StringVar(&launchAgent, "agent", "", "agent profile to launch (required)")
	launchCmd.Flags().StringVar(&launchProvider, "provider", "", "provider to use (default: from config)")
	launchCmd.Flags().StringVarP(&launchCWD, "cwd", "C", "", "working directory for the agent (default: current directory)")
	launchCmd.Flags().BoolVar(&launchHeadless, "headless", false, "launch in detached mode, don't attach")
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	if launchAgent == "" {
		return usageErr("--agent is required")
	}
	cwd := launchCWD
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cwd = wd
	}

	var created caoclient.CreateTerminalResponse
	req := caoclient.CreateTerminalRequest{Agent: launchAgent, Provider: launchProvider, CWD: cwd}
	if err := client().Do(cmd.Context(), "POST", "/terminals", req, &created); err != nil {
		return err
	}

	fmt.Printf("Terminal created: %s\n", created.ID)
	fmt.Printf("Session: %s\n", created.SessionName)
	fmt.Printf("Working directory: %s\n", cwd)

	if !launchHeadless {
		attach(created.SessionName)
	}
	return nil
}

// attach shells out to tmux directly (not via cao-server) since attaching
// a local terminal to a session is the operator's own process, not an
// orchestration action.
func attach(sessionName string) {
	c := exec.CommandContext(context.Background(), "tmux", "attach-session", "-t", sessionName)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	_ = c.Run()
}
