package provider

import "testing"

func TestNewDefaultRegistry_HasExpectedProviders(t *testing.T) {
	r := NewDefaultRegistry()
	for _, key := range []string{"claude_code", "codex_cli", "gemini_cli", "q_cli", "kiro_cli"} {
		cfg, err := r.Get(key)
		if err != nil {
			t.Errorf("expected provider %q to be registered: %v", key, err)
			continue
		}
		if cfg.LaunchCommand == nil {
			t.Errorf("provider %q has no launch command", key)
		}
		if cfg.ReadyRegexp == nil {
			t.Errorf("provider %q has no ready regexp", key)
		}
		if cfg.EnvVar != defaultEnvVar {
			t.Errorf("provider %q: expected env var %q, got %q", key, defaultEnvVar, cfg.EnvVar)
		}
	}
}

func TestGet_UnknownProvider(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); err == nil {
		t.Error("expected an error for an unregistered provider")
	}
}

func TestRegister_Overrides(t *testing.T) {
	r := NewRegistry()
	r.Register(Config{Key: "custom", LaunchCommand: func(p, cwd string) string { return "echo hi" }})
	cfg, err := r.Get("custom")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := cfg.LaunchCommand("p", "/tmp"); got != "echo hi" {
		t.Errorf("expected %q, got %q", "echo hi", got)
	}
}
