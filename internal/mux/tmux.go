package mux

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// validSessionNameRe guards against shell/argv injection through session
// names that ultimately become tmux(1) CLI arguments. Session names the
// Orchestrator allocates always match this (see orchestrator.sessionNameFor), but the
// adapter re-validates defensively since it is the last line of defense
// before exec.Command.
var validSessionNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validPaneTargetRe additionally accepts tmux's own pane identifiers
// (e.g. "%12"), which spawn_pane terminals use as their target in place
// of a session name.
var validPaneTargetRe = regexp.MustCompile(`^%?[a-zA-Z0-9_-]+$`)

func validateSessionName(name string) error {
	if name == "" || !validPaneTargetRe.MatchString(name) {
		return fmt.Errorf("%w %q: must match %s", ErrInvalidName, name, validSessionNameRe.String())
	}
	return nil
}

// Tmux is a Mux backed by the tmux(1) binary, invoked via os/exec. Every
// invocation passes -u (UTF-8 mode) and, if Socket is set, -L socket for
// isolation from the operator's personal tmux server.
type Tmux struct {
	// Socket, if non-empty, isolates this adapter's sessions on a named
	// tmux server distinct from the default one.
	Socket string

	mu sync.Mutex
}

// NewTmux returns a Tmux adapter using the default tmux server.
func NewTmux() *Tmux {
	return &Tmux{}
}

// NewTmuxWithSocket returns a Tmux adapter isolated on the given socket
// name, primarily for tests that must not collide with a developer's own
// tmux sessions.
func NewTmuxWithSocket(socket string) *Tmux {
	return &Tmux{Socket: socket}
}

func (t *Tmux) run(args ...string) (string, error) {
	allArgs := []string{"-u"}
	if t.Socket != "" {
		allArgs = append(allArgs, "-L", t.Socket)
	}
	allArgs = append(allArgs, args...)

	cmd := exec.Command("tmux", allArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", t.wrapError(err, stderr.String(), args)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (t *Tmux) wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)

	switch {
	case strings.Contains(stderr, "no server running"),
		strings.Contains(stderr, "error connecting to"),
		strings.Contains(stderr, "no current target"):
		return fmt.Errorf("%w: %s", ErrUnavailable, stderr)
	case strings.Contains(stderr, "duplicate session"):
		return fmt.Errorf("%w: %s", ErrSessionExists, stderr)
	case strings.Contains(stderr, "session not found"), strings.Contains(stderr, "can't find session"):
		return fmt.Errorf("%w: %s", ErrSessionMissing, stderr)
	}

	if stderr != "" {
		op := ""
		if len(args) > 0 {
			op = args[0]
		}
		return fmt.Errorf("%w: tmux %s: %s", ErrExecFailure, op, stderr)
	}
	return fmt.Errorf("%w: %v", ErrExecFailure, err)
}

// Create performs the two-step session creation used throughout the pack's
// tmux wrappers: start a session with a neutral shell, then respawn the
// pane with the real command. This avoids the race where the initial shell
// hasn't finished setting up its pty before a command is typed into it.
func (t *Tmux) Create(sessionName, cwd, initialCommand string) error {
	if err := validateSessionName(sessionName); err != nil {
		return err
	}
	if cwd != "" {
		info, err := os.Stat(cwd)
		if err != nil {
			return fmt.Errorf("%w: invalid cwd %q: %v", ErrExecFailure, cwd, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: cwd %q is not a directory", ErrExecFailure, cwd)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	args := []string{"new-session", "-d", "-s", sessionName}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	if _, err := t.run(args...); err != nil {
		return err
	}
	// Let the window auto-size to the attaching client rather than locking
	// to the default detached size.
	_, _ = t.run("set-option", "-wt", sessionName, "window-size", "latest")

	if initialCommand == "" {
		return nil
	}

	_, _ = t.run("set-option", "-t", sessionName, "remain-on-exit", "on")

	respawnArgs := []string{"respawn-pane", "-k", "-t", sessionName}
	if cwd != "" {
		respawnArgs = append(respawnArgs, "-c", cwd)
	}
	respawnArgs = append(respawnArgs, initialCommand)
	if _, err := t.run(respawnArgs...); err != nil {
		_, _ = t.run("kill-session", "-t", sessionName)
		return fmt.Errorf("%w: failed to start command in session %q: %v", ErrExecFailure, sessionName, err)
	}
	return nil
}

const sendKeysLiteralDelay = 50 // milliseconds between literal text and Enter

// SendKeys submits text in literal mode (-l) so tmux doesn't interpret it
// as key names, then — unless appendEnter is false — sends Enter as a
// wholly separate send-keys invocation. Concatenating the two into one
// call races against the target program's own read loop on some
// providers, occasionally dropping or garbling the Enter.
func (t *Tmux) SendKeys(sessionName, text string, appendEnter bool) error {
	if err := validateSessionName(sessionName); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.run("send-keys", "-t", sessionName, "-l", text); err != nil {
		return err
	}
	if !appendEnter {
		return nil
	}
	time.Sleep(sendKeysLiteralDelay * time.Millisecond)
	if _, err := t.run("send-keys", "-t", sessionName, "Enter"); err != nil {
		return err
	}
	return nil
}

// Capture returns the tail of the session's pane. tailLines <= 0 captures
// the entire scrollback via "-S -" (start of history).
func (t *Tmux) Capture(sessionName string, tailLines int) (string, error) {
	if err := validateSessionName(sessionName); err != nil {
		return "", err
	}

	args := []string{"capture-pane", "-p", "-t", sessionName}
	if tailLines > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", tailLines))
	} else {
		args = append(args, "-S", "-")
	}
	return t.run(args...)
}

// Kill destroys the session. A missing session is not an error: spec
// section 8 requires DELETE on an already-dead terminal to succeed.
func (t *Tmux) Kill(sessionName string) error {
	if err := validateSessionName(sessionName); err != nil {
		return err
	}
	_, err := t.run("kill-session", "-t", sessionName)
	if err != nil && (strings.Contains(err.Error(), "session missing") || strings.Contains(err.Error(), "can't find session")) {
		return nil
	}
	// tmux exits once its last session is gone, so a repeat kill of that
	// session finds no server at all; the session is still gone.
	if err != nil && strings.Contains(err.Error(), "no server running") {
		return nil
	}
	return err
}

func (t *Tmux) Exists(sessionName string) bool {
	if err := validateSessionName(sessionName); err != nil {
		return false
	}
	_, err := t.run("has-session", "-t", sessionName)
	return err == nil
}

// SplitPane splits sessionName's active window, lays it out 60/40
// main-horizontal, and optionally starts command in the new pane via the
// same respawn-pane two-step Create uses.
func (t *Tmux) SplitPane(sessionName, cwd, command string) (string, error) {
	if err := validateSessionName(sessionName); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	args := []string{"split-window", "-t", sessionName, "-P", "-F", "#{pane_id}"}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	paneID, err := t.run(args...)
	if err != nil {
		return "", err
	}
	paneID = strings.TrimSpace(paneID)

	_, _ = t.run("select-layout", "-t", sessionName, "main-horizontal")
	_, _ = t.run("set-option", "-t", paneID, "remain-on-exit", "on")

	if command == "" {
		return paneID, nil
	}

	respawnArgs := []string{"respawn-pane", "-k", "-t", paneID}
	if cwd != "" {
		respawnArgs = append(respawnArgs, "-c", cwd)
	}
	respawnArgs = append(respawnArgs, command)
	if _, err := t.run(respawnArgs...); err != nil {
		_, _ = t.run("kill-pane", "-t", paneID)
		return "", fmt.Errorf("%w: failed to start command in pane %q: %v", ErrExecFailure, paneID, err)
	}
	return paneID, nil
}

// KillPane destroys a single pane. A missing pane is not an error, mirroring
// Kill's idempotence.
func (t *Tmux) KillPane(paneID string) error {
	if err := validateSessionName(paneID); err != nil {
		return err
	}
	_, err := t.run("kill-pane", "-t", paneID)
	if err != nil && (strings.Contains(err.Error(), "session missing") || strings.Contains(err.Error(), "can't find pane")) {
		return nil
	}
	return err
}

func (t *Tmux) List() ([]string, error) {
	out, err := t.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return []string{}, nil
		}
		return nil, err
	}
	if out == "" {
		return []string{}, nil
	}
	return strings.Split(out, "\n"), nil
}

var _ Mux = (*Tmux)(nil)
