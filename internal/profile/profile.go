// Package profile is the Agent Profile Store (C10): read-only loading of
// agent profiles from <profile_dir>/<name>.md files, each a YAML
// front-matter header plus a markdown body.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"gopkg.in/yaml.v3"
)

const frontMatterDelim = "---"

// Store holds the profiles loaded from a directory, refreshed on demand
// via Reload. Safe for concurrent use.
type Store struct {
	dir string

	mu       sync.RWMutex
	profiles map[string]*domain.Profile
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, profiles: map[string]*domain.Profile{}}
}

// Reload re-reads every *.md file in the store's directory. A directory
// that does not yet exist loads as empty rather than erroring, since
// profiles are optional (spec section 4.10: "cao install (CLI) writes new
// profile files").
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.profiles = map[string]*domain.Profile{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("profile: failed to read %s: %w", s.dir, err)
	}

	loaded := map[string]*domain.Profile{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		p, err := parseFile(filepath.Join(s.dir, e.Name()), name)
		if err != nil {
			return err
		}
		loaded[name] = p
	}

	s.mu.Lock()
	s.profiles = loaded
	s.mu.Unlock()
	return nil
}

// Get returns the named profile, or ok=false if no such profile was
// loaded.
func (s *Store) Get(name string) (*domain.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	return p, ok
}

// List returns all loaded profiles sorted by name.
func (s *Store) List() []*domain.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func parseFile(path, name string) (*domain.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}

	text := strings.TrimPrefix(string(data), "\xef\xbb\xbf")
	trimmed := strings.TrimLeft(text, "\n")

	p := &domain.Profile{Name: name}
	if !strings.HasPrefix(trimmed, frontMatterDelim) {
		p.Body = text
		return p, nil
	}

	rest := trimmed[len(frontMatterDelim):]
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return nil, fmt.Errorf("profile %s: unterminated front matter", name)
	}
	header := rest[:end]
	body := rest[end+len("\n"+frontMatterDelim):]

	if err := yaml.Unmarshal([]byte(header), p); err != nil {
		return nil, fmt.Errorf("profile %s: invalid front matter: %w", name, err)
	}
	p.Name = name
	p.Body = strings.TrimLeft(body, "\n")
	return p, nil
}
