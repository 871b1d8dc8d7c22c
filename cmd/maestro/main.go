// Maestro orchestrator server. Exposes the planning and workflow HTTP API,
// drains the execution queue, and streams events over WebSocket.
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

	"github.com/joho/godotenv"

	"github.com/maestro-ai/maestro/pkg/agent"
	"github.com/maestro-ai/maestro/pkg/api"
	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/memory"
	"github.com/maestro-ai/maestro/pkg/models"
	"github.com/maestro-ai/maestro/pkg/planner"
	"github.com/maestro-ai/maestro/pkg/workflow"
)

const (
	wsWriteTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("MAESTRO_CONFIG", "maestro.yaml"),
		"Path to the configuration file")
	envPath := flag.String("env", ".env", "Path to the .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	if err := run(*configPath); err != nil {
		slog.Error("Maestro failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(configPath)
	if err != nil {
		return err
	}

	// 2. Event bus and WebSocket fan-out
	bus := events.NewBus()
	connManager := events.NewConnectionManager(bus, wsWriteTimeout)
	defer connManager.Close()

	// 3. Memory repository
	store, err := memory.Open(ctx, cfg.Memory.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Error closing memory store", "error", err)
		}
	}()

	var cache *memory.Cache
	if cfg.Memory.Cache.Enabled {
		cache = memory.NewCache(cfg.Memory.Cache.Size, cfg.Memory.Cache.TTL())
	}
	repo := memory.NewRepository(store, bus, cache)

	if n, err := memory.LoadSeeds(ctx, repo, cfg.Memory.SeedDir); err != nil {
		slog.Warn("Memory seeding failed, continuing", "error", err)
	} else if n > 0 {
		slog.Info("Memory seeded", "records", n)
	}

	// 4. Provider registry
	registry, err := llm.NewRegistryFromConfig(cfg.Providers, bus)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}
	if err := registry.Initialize(ctx); err != nil {
		// Failed providers are skipped by failover; keep serving with the rest.
		slog.Warn("Some providers failed to initialize", "error", err)
	}

	// 5. Agent registry: built-in roles backed by the provider registry
	agents := agent.NewRegistry()
	for _, id := range []models.AgentID{
		models.AgentPlanner, models.AgentDeveloper, models.AgentQA,
		models.AgentDocs, models.AgentBrain,
	} {
		agents.Register(id, agent.NewLLMAgent(id, registry, repo, agentOptions(cfg, id)))
	}

	// 6. Planner and execution queue
	queue := planner.NewExecutionQueue(bus)
	output := planner.NewOutputWriter(cfg.Planner.OutputDir)
	plannerSvc := planner.NewPlanner(queue, bus, output)

	// 7. Workflow engine and dispatcher
	checkpoints := workflow.NewCheckpointManager(cfg.Workflow.ReportDir)
	engine := workflow.NewEngine(agents, checkpoints, bus, workflow.EngineOptions{
		TaskTimeout: time.Duration(cfg.Workflow.TaskTimeoutMs) * time.Millisecond,
	})
	dispatcher := workflow.NewDispatcher(engine, queue, workflow.DispatcherOptions{
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval(),
		RunnerConfig: models.RunnerConfig{
			Mode:                 models.ExecutionMode(cfg.Workflow.Mode),
			Parallelism:          cfg.Workflow.Parallelism,
			MaxRetries:           cfg.Workflow.MaxRetries,
			TimeoutMs:            cfg.Workflow.TimeoutMs,
			ContinueOnFailure:    cfg.Workflow.ContinueOnFailure,
			CheckpointIntervalMs: cfg.Workflow.CheckpointIntervalMs,
		},
	})

	dispatcherCtx, stopDispatcher := context.WithCancel(ctx)
	defer stopDispatcher()
	dispatcher.Start(dispatcherCtx)

	// 8. HTTP server
	server := api.NewServer(api.Deps{
		Planner:     plannerSvc,
		Queue:       queue,
		Plans:       output,
		Dispatcher:  dispatcher,
		Checkpoints: checkpoints,
		Memory:      repo,
		Providers:   registry,
		ConnManager: connManager,
	})
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("Maestro started",
		"workers", cfg.Queue.Workers,
		"workflow_mode", cfg.Workflow.Mode,
		"active_provider", registry.Active())

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: stop intake, drain workflows, close HTTP
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown did not complete cleanly", "error", err)
	}

	stopDispatcher()
	done := make(chan struct{})
	go func() {
		dispatcher.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Dispatcher stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Dispatcher shutdown timeout exceeded")
	}

	slog.Info("Maestro stopped")
	return nil
}

// agentOptions resolves per-agent overrides from configuration. The active
// provider's cheap model serves cost-sensitive plans unless overridden.
func agentOptions(cfg *config.Config, id models.AgentID) agent.LLMAgentOptions {
	opts := agent.LLMAgentOptions{}
	if pc, ok := cfg.Providers.Entries[cfg.Providers.Active]; ok {
		opts.CheapModel = pc.CheapModel
	}
	if override, ok := cfg.Agents[string(id)]; ok {
		opts.Provider = override.Provider
		opts.Model = override.Model
		if override.Provider != "" {
			if pc, ok := cfg.Providers.Entries[override.Provider]; ok {
				opts.CheapModel = pc.CheapModel
			}
		}
	}
	return opts
}
