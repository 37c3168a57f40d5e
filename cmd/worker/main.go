package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/draftpress/draftpress/internal/application/growth"
	"github.com/draftpress/draftpress/internal/application/maintenance"
	"github.com/draftpress/draftpress/internal/application/pipeline"
	"github.com/draftpress/draftpress/internal/application/research"
	"github.com/draftpress/draftpress/internal/application/scheduler"
	"github.com/draftpress/draftpress/internal/application/underwriting"
	"github.com/draftpress/draftpress/internal/application/worker"
	"github.com/draftpress/draftpress/internal/config"
	"github.com/draftpress/draftpress/internal/infrastructure/flags"
	"github.com/draftpress/draftpress/internal/infrastructure/observability"
	"github.com/draftpress/draftpress/internal/infrastructure/openrouter"
	"github.com/draftpress/draftpress/internal/infrastructure/persistence/postgres"
	"github.com/draftpress/draftpress/internal/infrastructure/remote"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	providers, err := observability.Init(ctx, observability.Config{Enabled: cfg.OTelEnabled})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	store, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	executor := worker.NewExecutor(store, store.Articles(), store, cfg.Worker.JobTimeout)

	// Content pipeline stages.
	pipeline.New(
		store,
		store.Articles(),
		store.Domains(),
		store.Keywords(),
		store.Revisions(),
		store.CallLogs(),
		openrouter.New(cfg.AI),
		research.New(0),
		cfg.Review,
	).Register(executor)

	// Growth publish stages. The adapter, policy engine, and notifier run as
	// sidecar services.
	httpClient := &http.Client{Timeout: cfg.Remote.Timeout}
	flagSource := flags.Env{}
	growth.NewEngine(growth.EngineDeps{
		Queue:     store,
		Campaigns: store.Campaigns(),
		Events:    store.PromotionEvents(),
		Profiles:  store.ChannelProfiles(),
		Media:     store.Media(),
		Creds:     store.Credentials(),
		Research:  store,
		Alerts:    store.Alerts(),
		Adapter:   remote.NewPublishAdapter(cfg.Remote.PublishAdapterURL, httpClient),
		Policy:    remote.NewPolicyEngine(cfg.Remote.PolicyEngineURL, httpClient),
		Notify:    remote.NewNotifier(cfg.Remote.NotifyWebhookURL, httpClient),
		Flags:     flagSource,
	}, cfg.Growth).Register(executor)

	// Acquisition underwriting stages.
	underwriting.NewFlow(
		store,
		store.Research(),
		store.ReviewTasks(),
		store.PreviewBuilds(),
		store.AcquisitionEvents(),
		remote.NewValuationClient(cfg.Remote.ValuationURL, httpClient),
		flagSource,
	).Register(executor)

	runner := worker.NewRunner(store, executor)
	supCfg := worker.DefaultSupervisorConfig()
	supCfg.Disabled = cfg.Worker.Disabled
	supCfg.TestMode = cfg.IsTest()
	supCfg.ShutdownDrain = cfg.Worker.DrainTimeout
	supCfg.Run = worker.RunOptions{
		BatchSize:       cfg.Worker.BatchSize,
		PollInterval:    cfg.Worker.PollInterval,
		LeaseDuration:   cfg.Worker.LeaseDuration,
		RecoverInterval: cfg.Worker.RecoverInterval,
		DrainTimeout:    cfg.Worker.DrainTimeout,
	}

	supervisor := worker.NewSupervisor(runner, executor, supCfg)
	if err := supervisor.Start(ctx); err != nil {
		if errors.Is(err, worker.ErrWorkerDisabled) {
			slog.InfoContext(ctx, "worker disabled, exiting")
			return nil
		}
		return err
	}

	go scheduler.New(store, store.Domains(), store, cfg.Scheduler).Run(ctx)

	go maintenance.New(
		worker.NewAdmin(store),
		store,
		store.PreviewBuilds(),
		store.Media(),
		store.Moderation(),
		cfg.Worker,
	).Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	slog.InfoContext(ctx, "shutdown signal received", "signal", s.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	supervisor.Shutdown(shutdownCtx)
	cancel()

	slog.InfoContext(shutdownCtx, "worker shut down")
	return nil
}
