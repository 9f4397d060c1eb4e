package flow

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("gating scripts are shell scripts; skipping on windows")
	}
	path := filepath.Join(t.TempDir(), "gate.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestRunScript_ExecuteTrue(t *testing.T) {
	path := writeScript(t, `echo '{"execute": true, "output": {"metric": "42"}}'`)
	result, err := RunScript(context.Background(), path, 5*time.Second)
	if err != nil {
		t.Fatalf("RunScript failed: %v", err)
	}
	if !result.Execute {
		t.Error("expected execute=true")
	}
	if result.Output["metric"] != "42" {
		t.Errorf("expected output[metric]=42, got %q", result.Output["metric"])
	}
}

func TestRunScript_ExecuteFalse(t *testing.T) {
	path := writeScript(t, `echo '{"execute": false, "output": {}}'`)
	result, err := RunScript(context.Background(), path, 5*time.Second)
	if err != nil {
		t.Fatalf("RunScript failed: %v", err)
	}
	if result.Execute {
		t.Error("expected execute=false")
	}
}

func TestRunScript_NonZeroExit(t *testing.T) {
	path := writeScript(t, `exit 1`)
	if _, err := RunScript(context.Background(), path, 5*time.Second); err == nil {
		t.Error("expected an error for a non-zero exit")
	}
}

func TestRunScript_InvalidJSON(t *testing.T) {
	path := writeScript(t, `echo 'not json'`)
	if _, err := RunScript(context.Background(), path, 5*time.Second); err == nil {
		t.Error("expected an error for unparseable output")
	}
}
