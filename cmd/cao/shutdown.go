package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FC4b/cli-agent-orchestrator/internal/caoclient"
)

var (
	shutdownAll     bool
	shutdownSession string
	shutdownServer  bool
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Shut down terminals and/or the cao-server",
	Long: `Shuts down tmux-backed terminals and optionally stops cao-server itself.

Examples:

  cao shutdown --all
  cao shutdown --session <terminal-id>
  cao shutdown --server`,
	RunE: runShutdown,
}

func init() {
	shutdownCmd.Flags().BoolVar(&shutdownAll, "all", false, "shutdown every known terminal and stop the server")
	shutdownCmd.Flags().StringVar(&shutdownSession, "session", "", "shutdown a specific terminal by id")
	shutdownCmd.Flags().BoolVar(&shutdownServer, "server", false, "also stop the cao-server process")
	rootCmd.AddCommand(shutdownCmd)
}

func runShutdown(cmd *cobra.Command, args []string) error {
	if !shutdownAll && shutdownSession == "" && !shutdownServer {
		return usageErr("must specify --all, --session, or --server")
	}
	if shutdownAll && shutdownSession != "" {
		return usageErr("cannot use --all and --session together")
	}

	ctx := cmd.Context()
	c := client()

	if shutdownAll {
		var list caoclient.TerminalListResponse
		if err := c.Do(ctx, "GET", "/terminals", nil, &list); err != nil {
			return err
		}
		for _, t := range list.Terminals {
			if err := shutdownOne(ctx, c, t.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error shutting down %s: %v\n", t.ID, err)
			}
		}
	} else if shutdownSession != "" {
		if err := shutdownOne(ctx, c, shutdownSession); err != nil {
			return err
		}
	}

	if shutdownAll || shutdownServer {
		if err := stopServerProcess(); err != nil {
			fmt.Println("cao-server not running or already stopped")
		} else {
			fmt.Println("Stopped cao-server")
		}
	}
	return nil
}

func shutdownOne(ctx context.Context, c *caoclient.Client, id string) error {
	var ok caoclient.OkResponse
	if err := c.Do(ctx, "DELETE", "/terminals/"+id, nil, &ok); err != nil {
		return err
	}
	fmt.Printf("Shutdown terminal %s\n", id)
	return nil
}

// stopServerProcess sends SIGTERM to the process whose id is in the
// CAO_SERVER_PID environment variable. It does not look the server up by
// its port: with CAO_SERVER_PID unset it returns an error and the server
// keeps running.
func stopServerProcess() error {
	pid := os.Getenv("CAO_SERVER_PID")
	if pid == "" {
		return fmt.Errorf("CAO_SERVER_PID not set; stop cao-server manually")
	}
	var p int
	if _, err := fmt.Sscanf(pid, "%d", &p); err != nil {
		return err
	}
	proc, err := os.FindProcess(p)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}
