// Package muxtest provides an in-memory mux.Mux double for tests in
// internal/reader, internal/orchestrator and internal/api that must not
// depend on a real tmux binary.
package muxtest

import (
	"fmt"
	"sync"

	"github.com/FC4b/cli-agent-orchestrator/internal/mux"
)

type Fake struct {
	mu       sync.Mutex
	sessions map[string]string // session/pane name -> captured pane text
	nextPane int

	// SendKeysHook, if set, runs synchronously on every SendKeys call
	// (under the lock) so tests can script an agent's response.
	SendKeysHook func(f *Fake, target, text string)
}

func New() *Fake {
	return &Fake{sessions: make(map[string]string)}
}

func (f *Fake) Create(sessionName, cwd, initialCommand string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionName]; ok {
		return fmt.Errorf("%w: %s", mux.ErrSessionExists, sessionName)
	}
	f.sessions[sessionName] = ""
	return nil
}

func (f *Fake) SendKeys(target, text string, appendEnter bool) error {
	f.mu.Lock()
	if _, ok := f.sessions[target]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", mux.ErrSessionMissing, target)
	}
	f.sessions[target] += text
	if appendEnter {
		f.sessions[target] += "\n"
	}
	hook := f.SendKeysHook
	f.mu.Unlock()

	if hook != nil {
		hook(f, target, text)
	}
	return nil
}

// Append lets a test simulate output an agent "typed" outside of SendKeys
// (e.g. its own printed completion marker).
func (f *Fake) Append(target, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[target] += text
}

func (f *Fake) Capture(target string, tailLines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.sessions[target]
	if !ok {
		return "", fmt.Errorf("%w: %s", mux.ErrSessionMissing, target)
	}
	return text, nil
}

func (f *Fake) Kill(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, target)
	return nil
}

func (f *Fake) Exists(target string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[target]
	return ok
}

func (f *Fake) List() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sessions))
	for name := range f.sessions {
		out = append(out, name)
	}
	return out, nil
}

func (f *Fake) SplitPane(sessionName, cwd, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionName]; !ok {
		return "", fmt.Errorf("%w: %s", mux.ErrSessionMissing, sessionName)
	}
	f.nextPane++
	paneID := fmt.Sprintf("%%%d", f.nextPane)
	f.sessions[paneID] = ""
	return paneID, nil
}

func (f *Fake) KillPane(paneID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, paneID)
	return nil
}

var _ mux.Mux = (*Fake)(nil)
