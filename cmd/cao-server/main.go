// Command cao-server is the composition root (C13): it wires the
// Registry, Mux, Reader, Bus, Orchestrator, Flow Scheduler, Provider
// Registry, Config and Profile Store together and serves the HTTP control
// plane (spec section 6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/FC4b/cli-agent-orchestrator/internal/api"
	"github.com/FC4b/cli-agent-orchestrator/internal/bus"
	"github.com/FC4b/cli-agent-orchestrator/internal/config"
	"github.com/FC4b/cli-agent-orchestrator/internal/flow"
	"github.com/FC4b/cli-agent-orchestrator/internal/mux"
	"github.com/FC4b/cli-agent-orchestrator/internal/orchestrator"
	"github.com/FC4b/cli-agent-orchestrator/internal/profile"
	"github.com/FC4b/cli-agent-orchestrator/internal/provider"
	"github.com/FC4b/cli-agent-orchestrator/internal/reader"
	"github.com/FC4b/cli-agent-orchestrator/internal/registry"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultPath(), "path to config.json")
		addrFlag   = flag.String("addr", "", "HTTP listen address (overrides config)")
		tmuxSocket = flag.String("tmux-socket", "", "isolate sessions on a named tmux server")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	log := newLogger(*logLevel)
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.HTTPAddr = *addrFlag
	}

	if err := run(cfg, *tmuxSocket, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg *config.Config, tmuxSocket string, log *slog.Logger) error {
	var m mux.Mux
	if tmuxSocket != "" {
		m = mux.NewTmuxWithSocket(tmuxSocket)
	} else {
		m = mux.NewTmux()
	}

	reg := registry.New()
	providers := provider.NewDefaultRegistry()
	rd := reader.New(m, reg, providers, log)
	b := bus.New(reg, rd, log)
	orch := orchestrator.New(reg, m, rd, b, providers, log)

	if err := os.MkdirAll(cfg.FlowDir, 0o700); err != nil {
		return fmt.Errorf("failed to create flow dir %s: %w", cfg.FlowDir, err)
	}
	sched := flow.New(cfg.FlowDir, orch, log)

	profiles := profile.NewStore(cfg.ProfileDir)
	if err := profiles.Reload(); err != nil {
		return fmt.Errorf("failed to load agent profiles: %w", err)
	}

	h := api.NewHandler(reg, orch, rd, sched, profiles, cfg, log)
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Mount(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start flow scheduler: %w", err)
	}
	defer sched.Stop()

	// WriteTimeout is 0: a synchronous handoff can legitimately hold the
	// connection open for as long as the agent takes to settle.
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("cao-server listening", "addr", cfg.HTTPAddr, "flow_dir", cfg.FlowDir, "profile_dir", cfg.ProfileDir)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}
	return nil
}
