package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"uniherald/internal/backup"
	"uniherald/internal/config"
	"uniherald/internal/feed"
	"uniherald/internal/notify"
	"uniherald/internal/reconcile"
	"uniherald/internal/scheduler"
	"uniherald/internal/status"
	"uniherald/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	once := flag.Bool("once", false, "run exactly one cycle and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)
		os.Exit(1)
	}

	targets, err := config.ParseTargets(cfg.WebhookTargets)
	if err != nil {
		log.ErrorContext(ctx, "Failed to parse delivery targets",
			"error", err)
		os.Exit(1)
	}
	log.InfoContext(ctx, "Delivery targets are configured",
		"targetCount", len(targets))

	reader := initReader(ctx, cfg, log)
	st := store.New(cfg.StorePath, log)
	dispatcher := notify.NewDispatcher(notify.DefaultPolicy(), log)
	syncer := initSyncer(ctx, cfg, log)
	tracker := status.NewTracker()

	loop := reconcile.New(
		reader,
		st,
		dispatcher,
		syncer,
		tracker,
		targets,
		cfg.BackupCooldown,
		log,
	)

	if *once {
		// One-shot mode runs a single cycle and exits 0 regardless of
		// delivery outcomes; failures are logged only.
		if err = loop.RunCycle(ctx); err != nil {
			log.ErrorContext(ctx, "One-shot cycle failed",
				"error", err)
		}

		return
	}

	if err = run(ctx, cfg, loop, tracker, log); err != nil {
		log.ErrorContext(ctx, "Process failed",
			"error", err)
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	cfg config.Config,
	loop *reconcile.Loop,
	tracker *status.Tracker,
	log *slog.Logger,
) error {
	server := status.NewServer(cfg.StatusAddr, tracker, log)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(downCtx); err != nil {
			log.ErrorContext(downCtx, "Failed to shut down status server",
				"error", err)
		}

		return nil
	})

	g.Go(func() error {
		// First cycle runs before the scheduler takes over so a fresh
		// deploy does not wait a full interval.
		if err := loop.RunCycle(gCtx); err != nil {
			log.ErrorContext(gCtx, "Initial cycle failed",
				"error", err)
		}

		sched := scheduler.New(gCtx, loop, cfg.CycleInterval, log)
		if err := sched.Start(); err != nil {
			return err
		}
		log.InfoContext(gCtx, "Scheduler is started",
			"interval", cfg.CycleInterval.String())

		<-gCtx.Done()
		sched.Stop()
		log.InfoContext(gCtx, "Scheduler is stopped",
			"error", gCtx.Err())

		return nil
	})

	return g.Wait()
}

func initReader(ctx context.Context, cfg config.Config, log *slog.Logger) feed.Reader {
	if cfg.FeedMode == config.FeedModeBridge {
		log.InfoContext(ctx, "Using RSS bridge feed reader",
			"feedURL", cfg.FeedURL)

		return feed.NewBridgeReader(cfg.FeedURL, log)
	}

	selectors := feed.DefaultSelectors()
	if cfg.FeedItemSelector != "" {
		selectors.Item = cfg.FeedItemSelector
	}
	if cfg.FeedTitleSelector != "" {
		selectors.Title = cfg.FeedTitleSelector
	}
	if cfg.FeedDateSelector != "" {
		selectors.Date = cfg.FeedDateSelector
	}

	log.InfoContext(ctx, "Using scrape feed reader",
		"feedURL", cfg.FeedURL,
		"itemSelector", selectors.Item)

	return feed.NewScrapeReader(cfg.FeedURL, selectors, log)
}

func initSyncer(ctx context.Context, cfg config.Config, log *slog.Logger) backup.Syncer {
	if cfg.GitHubToken == "" || cfg.BackupRepo == "" {
		log.WarnContext(ctx, "Backup repository is not configured so backups are disabled")

		return backup.NopSyncer{}
	}

	syncer, err := backup.NewGitHubSyncer(backup.GitHubConfig{
		Token:  cfg.GitHubToken,
		Repo:   cfg.BackupRepo,
		Path:   cfg.BackupPath,
		Branch: cfg.BackupBranch,
	}, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create backup syncer so backups are disabled",
			"error", err,
			"repo", cfg.BackupRepo)

		return backup.NopSyncer{}
	}

	log.InfoContext(ctx, "Backup syncer is initialized",
		"repo", cfg.BackupRepo,
		"path", cfg.BackupPath,
		"branch", cfg.BackupBranch)

	return syncer
}
