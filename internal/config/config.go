// Package config is the Config store (C9): server + CLI configuration
// loaded from a JSON file, with flags overriding file values and file
// values overriding built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the on-disk shape at $XDG_CONFIG_HOME/cao/config.json (falling
// back to ~/.cao/config.json), per spec section 4.9.
type Config struct {
	DefaultProvider string            `json:"default_provider"`
	AgentProviders  map[string]string `json:"agent_providers,omitempty"`
	HTTPAddr        string            `json:"http_addr"`
	FlowDir         string            `json:"flow_dir"`
	ProfileDir      string            `json:"profile_dir"`
}

const (
	DefaultHTTPAddr        = "127.0.0.1:9889"
	DefaultProviderFallback = "claude_code"
)

// ProviderFor returns the provider configured for agentProfile, falling
// back to DefaultProvider when no per-agent override exists.
func (c *Config) ProviderFor(agentProfile string) string {
	if p, ok := c.AgentProviders[agentProfile]; ok && p != "" {
		return p
	}
	if c.DefaultProvider != "" {
		return c.DefaultProvider
	}
	return DefaultProviderFallback
}

// DefaultDir resolves the config directory: $XDG_CONFIG_HOME/cao if set,
// otherwise ~/.cao.
func DefaultDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cao")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cao"
	}
	return filepath.Join(home, ".cao")
}

func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.json")
}

// Defaults returns a Config with every field set to its built-in default,
// rooted under dir (DefaultDir() when dir is empty).
func Defaults(dir string) *Config {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Config{
		DefaultProvider: DefaultProviderFallback,
		AgentProviders:  map[string]string{},
		HTTPAddr:        DefaultHTTPAddr,
		FlowDir:         filepath.Join(dir, "flows"),
		ProfileDir:      filepath.Join(dir, "profiles"),
	}
}

// Load reads path, returning Defaults(dir of path) if the file does not
// exist (a fresh install has no config file yet).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Defaults(filepath.Dir(path)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := Defaults(filepath.Dir(path))
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if cfg.AgentProviders == nil {
		cfg.AgentProviders = map[string]string{}
	}
	return cfg, nil
}

// Save writes cfg to path atomically: write to a temp file in the same
// directory, fsync, then rename over the target (grounded on the teacher's
// JSONFileStorage.Save).
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: failed to create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: failed to marshal: %w", err)
	}

	f, err := os.CreateTemp(dir, "config.*.tmp")
	if err != nil {
		return fmt.Errorf("config: failed to create temp file: %w", err)
	}
	tmpName := f.Name()
	_ = os.Chmod(tmpName, 0o600)

	defer func() {
		if f != nil {
			f.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("config: failed to write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("config: failed to sync: %w", err)
	}
	if err := f.Close(); err != nil {
		f = nil
		return fmt.Errorf("config: failed to close: %w", err)
	}
	f = nil

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("config: failed to rename into place: %w", err)
	}
	return nil
}
