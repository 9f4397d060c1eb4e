package flow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// DefaultTickInterval is spec-authoritative (section 4.6, Open Question
// #4): 30s, not the 60s poll of the original implementation this was
// distilled from.
const DefaultTickInterval = 30 * time.Second

// schedulerCallerID is the synthetic from_id flows use when assigning a
// terminal — flows are not themselves terminals, so they need a stable
// identity distinct from any live agent's id.
const schedulerCallerID = "flow-scheduler"

// Assigner is the subset of *orchestrator.Orchestrator the Scheduler needs.
type Assigner interface {
	Assign(ctx context.Context, fromID, agentProfile, providerKey, body, cwd, callbackID string) (string, error)
}

type entry struct {
	flow     *domain.Flow
	schedule cron.Schedule
}

// Scheduler owns every flow definition under a directory, firing each one
// on its own cron schedule and re-reading the directory on change.
type Scheduler struct {
	dir          string
	assigner     Assigner
	log          *slog.Logger
	parser       cron.Parser
	tickInterval time.Duration
	scriptTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry // keyed by flow name

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(dir string, assigner Assigner, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		dir:           dir,
		assigner:      assigner,
		log:           log,
		parser:        cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		tickInterval:  DefaultTickInterval,
		scriptTimeout: DefaultScriptTimeout,
		entries:       make(map[string]*entry),
	}
}

// Start loads every flow file, begins watching the directory for external
// edits via fsnotify, and starts the tick goroutine. Call once.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.watchLoop()
	go s.tickLoop(runCtx)
	return nil
}

// Stop halts the tick and watch goroutines and releases the fsnotify
// watcher.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.done != nil {
		<-s.done
	}
}

// Reload re-reads every *.md flow file under dir, recomputing each flow's
// next fire time from the current moment (spec section 4.6's
// "next_fire_at is recomputed from the current time on reload").
func (s *Scheduler) Reload() error {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	now := time.Now()
	next := make(map[string]*entry, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		f, err := ParseFile(path)
		if err != nil {
			s.log.Warn("flow: failed to parse flow file, skipping", "path", path, "error", err)
			continue
		}
		sched, err := s.parser.Parse(f.Schedule)
		if err != nil {
			s.log.Warn("flow: invalid schedule, skipping", "flow", f.Name, "schedule", f.Schedule, "error", err)
			continue
		}
		f.NextFireAt = sched.Next(now)
		next[f.Name] = &entry{flow: f, schedule: sched}
	}

	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				s.log.Warn("flow: reload after fsnotify event failed", "error", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("flow: watcher error", "error", err)
		}
	}
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fires every enabled, due flow. Firing is asynchronous per flow so a
// slow gating script or a slow-starting agent never delays other flows'
// checks; next_fire_at is advanced before the async work starts so a
// firing flow is never double-fired by the next tick.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []*domain.Flow
	for _, e := range s.entries {
		if !e.flow.IsEnabled() || e.flow.NextFireAt.After(now) {
			continue
		}
		due = append(due, e.flow)
		e.flow.NextFireAt = e.schedule.Next(now)
	}
	s.mu.Unlock()

	for _, f := range due {
		go s.fire(ctx, f)
	}
}

func (s *Scheduler) fire(ctx context.Context, f *domain.Flow) (string, error) {
	vars := map[string]string{}
	if f.Script != "" {
		result, err := RunScript(ctx, f.Script, s.scriptTimeout)
		if err != nil {
			s.log.Error("flow: gating script failed, skipping firing", "flow", f.Name, "error", err)
			return "", err
		}
		if !result.Execute {
			s.log.Info("flow: gating script declined this firing", "flow", f.Name)
			return "", nil
		}
		vars = result.Output
	}

	prompt := Interpolate(f.PromptTemplate, vars)
	terminalID, err := s.assigner.Assign(ctx, schedulerCallerID, f.AgentProfile, f.Provider, prompt, "", "")
	if err != nil {
		s.log.Error("flow: assign failed", "flow", f.Name, "error", err)
		return "", err
	}
	s.log.Info("flow: fired", "flow", f.Name, "terminal", terminalID)
	return terminalID, nil
}

// List returns a snapshot of every currently loaded flow.
func (s *Scheduler) List() []domain.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Flow, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e.flow)
	}
	return out
}

// RunNow fires a flow immediately, bypassing its schedule but still
// honoring its gating script, for the "flow run <name>" CLI command and
// POST /flows/{name}/run. Returns the spawned terminal id, or "" if the
// gating script declined the firing.
func (s *Scheduler) RunNow(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return "", os.ErrNotExist
	}
	return s.fire(ctx, e.flow)
}

// SetEnabled toggles a flow's in-memory enabled state (the API layer is
// responsible for persisting the change back to the flow file).
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return os.ErrNotExist
	}
	e.flow.Enabled = &enabled
	return nil
}
