package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}
}

func TestReload_LoadsFrontMatterAndBody(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "reviewer.md", "---\nprovider: claude_code\ndescription: reviews PRs\n---\nYou are a careful reviewer.\n")

	s := NewStore(dir)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	p, ok := s.Get("reviewer")
	if !ok {
		t.Fatal("expected reviewer profile to load")
	}
	if p.Provider != "claude_code" {
		t.Errorf("expected provider claude_code, got %q", p.Provider)
	}
	if p.Description != "reviews PRs" {
		t.Errorf("expected description, got %q", p.Description)
	}
	if p.Body != "You are a careful reviewer.\n" {
		t.Errorf("unexpected body: %q", p.Body)
	}
}

func TestReload_BodyOnlyProfileWithoutFrontMatter(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "plain.md", "Just be helpful.\n")

	s := NewStore(dir)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	p, ok := s.Get("plain")
	if !ok {
		t.Fatal("expected plain profile to load")
	}
	if p.Body != "Just be helpful.\n" {
		t.Errorf("unexpected body: %q", p.Body)
	}
}

func TestReload_MissingDirectoryIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload should not error on a missing directory: %v", err)
	}
	if len(s.List()) != 0 {
		t.Error("expected an empty profile list")
	}
}

func TestReload_IgnoresNonMarkdownFiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "reviewer.md", "---\nprovider: claude_code\n---\nBody\n")
	writeProfile(t, dir, "README.txt", "not a profile")

	s := NewStore(dir)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if len(s.List()) != 1 {
		t.Errorf("expected 1 profile, got %d", len(s.List()))
	}
}

func TestReload_UnterminatedFrontMatterErrors(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "broken.md", "---\nprovider: claude_code\nno closing delimiter\n")

	s := NewStore(dir)
	if err := s.Reload(); err == nil {
		t.Error("expected an error for unterminated front matter")
	}
}

func TestList_SortedByName(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "zeta.md", "Z\n")
	writeProfile(t, dir, "alpha.md", "A\n")

	s := NewStore(dir)
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	list := s.List()
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Errorf("expected [alpha, zeta], got %+v", list)
	}
}
