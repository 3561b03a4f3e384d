package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benchwire/hotlist/internal/analytics"
	"github.com/benchwire/hotlist/internal/api"
	"github.com/benchwire/hotlist/internal/campaign"
	"github.com/benchwire/hotlist/internal/config"
	"github.com/benchwire/hotlist/internal/content"
	"github.com/benchwire/hotlist/internal/db"
	"github.com/benchwire/hotlist/internal/dispatch"
	"github.com/benchwire/hotlist/internal/lock"
	"github.com/benchwire/hotlist/internal/mailer"
	"github.com/benchwire/hotlist/internal/metrics"
	"github.com/benchwire/hotlist/internal/outbox"
	"github.com/benchwire/hotlist/internal/repository"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign engine",
	Long:  `Start the HTTP API and the background dispatch worker.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(&cfg.Logging)
	slog.SetDefault(logger)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ledger, err := outbox.Open(cfg.Outbox.Path)
	if err != nil {
		return fmt.Errorf("failed to open outbox ledger: %w", err)
	}
	defer ledger.Close()

	campaigns := repository.NewCampaignRepository(database)
	candidates := repository.NewCandidateRepository(database)
	events := repository.NewAnalyticsRepository(database)
	directory := repository.NewDirectoryRepository(database)

	m := metrics.New()
	locks := lock.NewManager(logger)
	recorder := analytics.NewRecorder(events, candidates, m, logger)

	engine := dispatch.NewEngine(
		campaigns,
		candidates,
		ledger,
		directory,
		content.NewEngine(),
		recorder,
		mailer.NewClient(&cfg.Mailer),
		locks,
		m,
		dispatch.Config{
			SendTimeout:       cfg.Dispatch.SendTimeout,
			CompletionTimeout: cfg.Dispatch.CompletionTimeout,
		},
		logger,
	)

	worker := dispatch.NewWorker(engine, campaigns, m, cfg.Dispatch.PollInterval, logger)

	service := campaign.NewService(campaigns, candidates, directory, locks, m, logger)

	srv := api.New(cfg, api.Deps{
		Campaigns: service,
		Engine:    engine,
		Recorder:  recorder,
		Directory: directory,
		Metrics:   m,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()
	}()

	worker.Start()
	defer worker.Stop()

	return srv.Run(ctx)
}

func newLogger(cfg *config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
