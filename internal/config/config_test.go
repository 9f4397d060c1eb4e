package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDir_XDGOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	if got := DefaultDir(); got != filepath.Join(tmp, "cao") {
		t.Errorf("expected %q, got %q", filepath.Join(tmp, "cao"), got)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultProvider != DefaultProviderFallback {
		t.Errorf("expected default provider %q, got %q", DefaultProviderFallback, cfg.DefaultProvider)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("expected http addr %q, got %q", DefaultHTTPAddr, cfg.HTTPAddr)
	}
	if cfg.FlowDir == "" || cfg.ProfileDir == "" {
		t.Error("expected flow_dir and profile_dir to be populated by defaults")
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults(dir)
	cfg.DefaultProvider = "codex"
	cfg.AgentProviders = map[string]string{"reviewer": "claude_code"}
	cfg.HTTPAddr = "127.0.0.1:9999"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DefaultProvider != "codex" {
		t.Errorf("expected default_provider codex, got %q", loaded.DefaultProvider)
	}
	if loaded.AgentProviders["reviewer"] != "claude_code" {
		t.Errorf("expected agent_providers[reviewer]=claude_code, got %q", loaded.AgentProviders["reviewer"])
	}
	if loaded.HTTPAddr != "127.0.0.1:9999" {
		t.Errorf("expected http_addr override to persist, got %q", loaded.HTTPAddr)
	}
}

func TestSave_NoLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := Save(path, Defaults(dir)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "config.json" {
			t.Errorf("unexpected leftover file %q in config dir", e.Name())
		}
	}
}

func TestProviderFor_FallsBackToDefault(t *testing.T) {
	cfg := &Config{DefaultProvider: "codex", AgentProviders: map[string]string{"reviewer": "claude_code"}}
	if got := cfg.ProviderFor("reviewer"); got != "claude_code" {
		t.Errorf("expected per-agent override, got %q", got)
	}
	if got := cfg.ProviderFor("unknown-agent"); got != "codex" {
		t.Errorf("expected default provider fallback, got %q", got)
	}
}
