package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/FC4b/cli-agent-orchestrator/internal/config"
	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
)

var (
	installProvider    string
	installDescription string
	installBodyFile    string
	installForce       bool
)

var installCmd = &cobra.Command{
	Use:   "install <name>",
	Short: "Write a new agent profile",
	Long: `Writes a new agent profile markdown file under the profile directory.
The profile's body (from --body-file, or stdin if omitted) becomes the
launched agent's system prompt.

Examples:

  cao install reviewer --description "Reviews pull requests" --body-file reviewer.md
  cat developer.md | cao install developer --provider codex_cli`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installProvider, "provider", "", "provider this profile should launch with")
	installCmd.Flags().StringVar(&installDescription, "description", "", "short description of this profile")
	installCmd.Flags().StringVar(&installBodyFile, "body-file", "", "file containing the profile body (default: read from stdin)")
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "overwrite an existing profile")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	name := args[0]

	var body []byte
	var err error
	if installBodyFile != "" {
		body, err = os.ReadFile(installBodyFile)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading profile body: %w", err)
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ProfileDir, 0o700); err != nil {
		return err
	}
	path := filepath.Join(cfg.ProfileDir, name+".md")
	if !installForce {
		if _, err := os.Stat(path); err == nil {
			return usageErr("profile %s already exists at %s (use --force to overwrite)", name, path)
		}
	}

	p := domain.Profile{Provider: installProvider, Description: installDescription}
	header, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	content := "---\n" + string(header) + "---\n" + string(body)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return err
	}

	fmt.Printf("Installed profile %s at %s\n", name, path)
	return nil
}
