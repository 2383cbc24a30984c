// Command researchd runs the company-research orchestration engine: the
// in-process acquire/extract worker pool, the Temporal run-state worker,
// and the HTTP control API, all sharing one corestore.Store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/antigravity-dev/prospector/internal/api"
	"github.com/antigravity-dev/prospector/internal/config"
	"github.com/antigravity-dev/prospector/internal/contentstore"
	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/antigravity-dev/prospector/internal/dedupe"
	"github.com/antigravity-dev/prospector/internal/discovery"
	"github.com/antigravity-dev/prospector/internal/enrichment"
	"github.com/antigravity-dev/prospector/internal/fetcher"
	"github.com/antigravity-dev/prospector/internal/health"
	"github.com/antigravity-dev/prospector/internal/jobqueue"
	"github.com/antigravity-dev/prospector/internal/orchestrator"
	"github.com/antigravity-dev/prospector/internal/runstate"
	"github.com/antigravity-dev/prospector/internal/worker"

	"go.temporal.io/sdk/client"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// buildDiscoveryRegistry always registers the seed-list provider and wires
// every other discovery.Provider whose config entry is enabled, gating real
// (non-mock) credentials through discovery.Gate.
func buildDiscoveryRegistry(cfg *config.Config) *discovery.Registry {
	creds := map[string]string{}
	for _, p := range cfg.Providers {
		for k, v := range p.Credentials {
			creds[k] = v
		}
	}
	gate := &discovery.Gate{
		MockExternal:    false,
		ExternalEnabled: true,
		Credentials:     creds,
	}
	registry := discovery.NewRegistry(gate)

	registry.Register(&discovery.SeedListProvider{})

	if p, ok := cfg.Providers["deterministic"]; ok && p.Enabled {
		registry.Register(&discovery.DeterministicProvider{})
	}
	if p, ok := cfg.Providers["search_api"]; ok && p.Enabled {
		registry.Register(&discovery.SearchAPIProvider{
			ClientID:     p.Credentials["SEARCH_API_CLIENT_ID"],
			ClientSecret: p.Credentials["SEARCH_API_CLIENT_SECRET"],
			TokenURL:     p.Credentials["SEARCH_API_TOKEN_URL"],
		})
	}
	if p, ok := cfg.Providers["llm"]; ok && p.Enabled {
		registry.Register(&discovery.LLMProvider{
			APIKey: p.Credentials["ANTHROPIC_API_KEY"],
		})
	}
	return registry
}

func main() {
	configPath := flag.String("config", "researchd.toml", "path to config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("researchd starting", "config", *configPath)

	cfgManager, err := config.LoadManager(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger = configureLogger(cfg.General.LogLevel, *dev)
	slog.SetDefault(logger)

	lockPath := config.ExpandHome(cfg.General.LockFile)
	lockFile, err := health.AcquireFlock(lockPath)
	if err != nil {
		logger.Error("failed to acquire lock", "error", err)
		os.Exit(1)
	}
	defer health.ReleaseFlock(lockFile)

	store, err := corestore.Open(config.ExpandHome(cfg.Store.Path))
	if err != nil {
		logger.Error("failed to open store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	content, err := contentstore.Open(store.DB())
	if err != nil {
		logger.Error("failed to open content store", "error", err)
		os.Exit(1)
	}
	queue, err := jobqueue.Open(store.DB())
	if err != nil {
		logger.Error("failed to open job queue", "error", err)
		os.Exit(1)
	}

	svc := &orchestrator.Service{
		Store:      store,
		Queue:      queue,
		Fetcher:    fetcher.New(logger.With("component", "fetcher")),
		Dedupe:     dedupe.New(store),
		Enrichment: enrichment.New(store, content, cfg.Enrichment.TTL.Duration),
		Discovery:  buildDiscoveryRegistry(cfg),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	temporalClient, err := client.Dial(client.Options{HostPort: cfg.Temporal.HostPort})
	if err != nil {
		logger.Error("failed to dial temporal", "host_port", cfg.Temporal.HostPort, "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()
	svc.Temporal = temporalClient

	go func() {
		logger.Info("starting run-state temporal worker")
		if err := runstate.StartWorker(cfg.Temporal.HostPort, store, queue, svc.Fetcher, svc.Dedupe, svc.Enrichment, svc.Discovery); err != nil {
			logger.Error("run-state worker error", "error", err)
		}
	}()

	extractWorkerID := worker.NewWorkerID("acquire-extract")
	extractRunner := worker.New(queue, "acquire_extract_async", func(ctx context.Context, job *jobqueue.Job) (any, error) {
		var params struct {
			SourceDocumentID string `json:"source_document_id"`
		}
		if err := json.Unmarshal([]byte(job.ParamsJSON), &params); err != nil {
			return nil, fmt.Errorf("decode job params: %w", err)
		}
		return nil, svc.ExecuteAcquireExtractJob(ctx, job.Tenant, params.SourceDocumentID, extractWorkerID)
	}, worker.WithPollInterval(cfg.General.PollInterval.Duration), worker.WithLogger(logger.With("component", "worker")))
	go extractRunner.RunForever(ctx)

	healthMonitor := health.NewMonitor(store, cfg.General.WorkerCount)

	apiSrv, err := api.NewServer(cfg, svc, healthMonitor, logger.With("component", "api"))
	if err != nil {
		logger.Error("failed to create api server", "error", err)
		os.Exit(1)
	}
	defer apiSrv.Close()

	go func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server error", "error", err)
		}
	}()

	logger.Info("researchd running", "bind", cfg.API.Bind)

	var cfgMu sync.Mutex
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			cfgMu.Lock()
			if err := cfgManager.Reload(*configPath); err != nil {
				logger.Error("config reload failed", "error", err)
			} else {
				logger.Info("config reloaded")
			}
			cfgMu.Unlock()
		default:
			shutdownStart := time.Now()
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			logger.Info("researchd stopped", "shutdown_duration", time.Since(shutdownStart).String())
			return
		}
	}
}
