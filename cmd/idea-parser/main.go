package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trade-idea-parser/internal/app"
	"github.com/lueurxax/trade-idea-parser/internal/platform/config"
	"github.com/lueurxax/trade-idea-parser/internal/platform/worker"
	db "github.com/lueurxax/trade-idea-parser/internal/storage"
)

const usage = "Usage: %s --mode=[live|batch|batch-resume|batch-cancel|reparse] [--batch-id=ID] [--ids=1,2] [--since=DATE]"

type options struct {
	mode    string
	batchID string
	ids     []string
	since   time.Time
}

func main() {
	mode := flag.String("mode", "", "Service mode (live, batch, batch-resume, batch-cancel, reparse)")
	batchID := flag.String("batch-id", "", "Batch job id for batch-resume and batch-cancel")
	ids := flag.String("ids", "", "Comma-separated message ids for reparse")
	since := flag.String("since", "", "Reparse messages sent at or after this date (any common format, UTC unless a zone is given)")

	flag.Parse()

	opts, err := parseOptions(*mode, *batchID, *ids, *since)
	if err != nil {
		log.Fatalf("%v\n"+usage, err, os.Args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:          cfg.DBMaxConnections,
		MinConns:          cfg.DBMinConnections,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	// Start health server in background
	go func() {
		defer worker.RecoverPanic(&logger, "health server")

		if err := application.StartHealthServer(ctx); err != nil {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	if err := runMode(ctx, application, opts); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func parseOptions(mode, batchID, ids, since string) (options, error) {
	opts := options{mode: mode, batchID: strings.TrimSpace(batchID)}

	for _, id := range strings.Split(ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.ids = append(opts.ids, id)
		}
	}

	if since = strings.TrimSpace(since); since != "" {
		t, err := dateparse.ParseIn(since, time.UTC)
		if err != nil {
			return opts, fmt.Errorf("invalid --since %q: %w", since, err)
		}

		opts.since = t
	}

	switch mode {
	case "live", "batch", "batch-resume":
	case "batch-cancel":
		if opts.batchID == "" {
			return opts, errors.New("--batch-id is required for batch-cancel")
		}
	case "reparse":
		if len(opts.ids) == 0 && opts.since.IsZero() {
			return opts, errors.New("reparse needs --ids or --since")
		}
	default:
		return opts, fmt.Errorf("unknown mode %q", mode)
	}

	return opts, nil
}

func runMode(ctx context.Context, application *app.App, opts options) error {
	switch opts.mode {
	case "live":
		return application.RunLive(ctx)
	case "batch":
		return application.RunBatch(ctx)
	case "batch-resume":
		return application.RunBatchResume(ctx, opts.batchID)
	case "batch-cancel":
		return application.RunBatchCancel(ctx, opts.batchID)
	case "reparse":
		return application.RunReparse(ctx, opts.ids, opts.since)
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}
}
