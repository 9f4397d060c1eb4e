package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FC4b/cli-agent-orchestrator/internal/caoclient"
	"github.com/FC4b/cli-agent-orchestrator/internal/config"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:           "cao",
	Short:         "CLI Agent Orchestrator",
	Long:          "cao manages interactive AI developer agents running in tmux sessions, via a cao-server control plane.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "cao-server address (default: from config, or 127.0.0.1:9889)")
}

// client builds a caoclient.Client pointed at --server, falling back to
// the configured HTTP address.
func client() *caoclient.Client {
	addr := serverAddr
	if addr == "" {
		cfg, err := config.Load(config.DefaultPath())
		if err == nil && cfg.HTTPAddr != "" {
			addr = cfg.HTTPAddr
		} else {
			addr = config.DefaultHTTPAddr
		}
	}
	return caoclient.New("http://" + addr)
}

func usageErr(format string, args ...any) error {
	return &caoclient.Error{Code: caoclient.ExitInvalidUsage, Msg: fmt.Sprintf(format, args...)}
}
