// Package provider is the Provider Registry (C8): per-provider launch
// command, ready-prompt regex, exit command and env var, kept as data
// rather than hard-coded. The completion and error marker strings are not
// part of this data: package reader builds them the same way for every
// provider.
package provider

import (
	"fmt"
	"regexp"
)

// Config describes one provider backend: the CLI program launched inside
// a terminal's multiplexer session.
type Config struct {
	// Key is the enumerated provider name used on the wire (q_cli,
	// kiro_cli, claude_code, codex_cli, gemini_cli, ...).
	Key string
	// LaunchCommand renders the shell command line used to start the
	// provider's CLI inside the new session, given the agent profile name
	// and working directory.
	LaunchCommand func(agentProfile, cwd string) string
	// ReadyRegexp matches the provider's ready-prompt signature in a
	// captured pane tail, signaling a transition to IDLE.
	ReadyRegexp *regexp.Regexp
	// ExitCommand, if non-empty, is injected (as a plain send-keys, no
	// markers) before a successful handoff kills the session, giving the
	// provider a chance to flush/save state.
	ExitCommand string
	// EnvVar is the name of the environment variable holding the
	// terminal id inside the launched session (CAO_TERMINAL_ID by
	// convention, see spec section 6).
	EnvVar string
}

// Registry maps provider keys to their Config. The zero value is usable;
// call Register to add entries (or use NewDefaultRegistry for the
// built-ins).
type Registry struct {
	configs map[string]Config
}

func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]Config)}
}

func (r *Registry) Register(cfg Config) {
	if r.configs == nil {
		r.configs = make(map[string]Config)
	}
	r.configs[cfg.Key] = cfg
}

func (r *Registry) Get(key string) (Config, error) {
	cfg, ok := r.configs[key]
	if !ok {
		return Config{}, fmt.Errorf("unknown provider: %s", key)
	}
	return cfg, nil
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.configs))
	for k := range r.configs {
		keys = append(keys, k)
	}
	return keys
}

const defaultEnvVar = "CAO_TERMINAL_ID"

// NewDefaultRegistry returns a Registry pre-populated with the providers
// named in spec section 3's TerminalState.provider enumeration. The launch
// commands and ready-prompt regexes below are conservative defaults;
// Register replaces or adds an entry. internal/config only selects which
// provider key an agent uses; it carries no provider definitions.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(Config{
		Key:           "claude_code",
		LaunchCommand: func(profile, cwd string) string { return "claude" },
		ReadyRegexp:   regexp.MustCompile(`(?m)^\s*>\s*$`),
		ExitCommand:   "/exit",
		EnvVar:        defaultEnvVar,
	})
	r.Register(Config{
		Key:           "codex_cli",
		LaunchCommand: func(profile, cwd string) string { return "codex" },
		ReadyRegexp:   regexp.MustCompile(`(?m)^\s*▌\s*$`),
		ExitCommand:   "/quit",
		EnvVar:        defaultEnvVar,
	})
	r.Register(Config{
		Key:           "gemini_cli",
		LaunchCommand: func(profile, cwd string) string { return "gemini" },
		ReadyRegexp:   regexp.MustCompile(`(?m)^\s*>\s*$`),
		ExitCommand:   "/quit",
		EnvVar:        defaultEnvVar,
	})
	r.Register(Config{
		Key:           "q_cli",
		LaunchCommand: func(profile, cwd string) string { return "q chat" },
		ReadyRegexp:   regexp.MustCompile(`(?m)^\s*>\s*$`),
		ExitCommand:   "/quit",
		EnvVar:        defaultEnvVar,
	})
	r.Register(Config{
		Key:           "kiro_cli",
		LaunchCommand: func(profile, cwd string) string { return "kiro" },
		ReadyRegexp:   regexp.MustCompile(`(?m)^\s*>\s*$`),
		ExitCommand:   "/quit",
		EnvVar:        defaultEnvVar,
	})

	return r
}
