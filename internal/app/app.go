// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Live mode: worker loop that parses pending messages one by one
//   - Batch mode: submits the pending backlog as a provider batch job and ingests it
//   - Batch-resume mode: waits for and ingests a job submitted earlier
//   - Batch-cancel mode: cancels a submitted job
//   - Reparse mode: puts messages back to pending so either path picks them up again
//
// The health and metrics server runs alongside every mode.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
	"github.com/lueurxax/trade-idea-parser/internal/core/llm"
	"github.com/lueurxax/trade-idea-parser/internal/platform/config"
	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
	"github.com/lueurxax/trade-idea-parser/internal/platform/retry"
	"github.com/lueurxax/trade-idea-parser/internal/process/batch"
	"github.com/lueurxax/trade-idea-parser/internal/process/ingest"
	"github.com/lueurxax/trade-idea-parser/internal/process/parser"
	"github.com/lueurxax/trade-idea-parser/internal/process/preprocess"
	db "github.com/lueurxax/trade-idea-parser/internal/storage"
)

const (
	logFieldBaseURL  = "base_url"
	logFieldBatchID  = "batch_id"
	logFieldCount    = "count"
	logFieldSince    = "since"
	logFieldProvider = "provider"
	logFieldStatus   = "status"

	providerMock   = "mock"
	providerOpenAI = "openai"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger

	provider llm.Provider
	prep     *preprocess.Preprocessor
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
		provider: newProvider(cfg, logger),
		prep:     preprocess.FromConfig(cfg),
	}
}

func newProvider(cfg *config.Config, logger *zerolog.Logger) llm.Provider {
	if cfg.UseMockLLM() {
		logger.Warn().Str(logFieldProvider, providerMock).Msg("using deterministic mock LLM provider")
		return llm.NewMockProvider()
	}

	budget := llm.NewBudgetTracker(cfg.LLMDailyTokenBudget, nil, logger)
	budget.SetAlertCallback(func(alert llm.BudgetAlert) {
		logger.Error().
			Str(logFieldStatus, alert.Level).
			Int64("daily_tokens", alert.DailyTokens).
			Int64("budget_limit", alert.BudgetLimit).
			Msg("token budget alert")
	})

	logger.Info().Str(logFieldProvider, providerOpenAI).Str(logFieldBaseURL, cfg.LLMBaseURL).Msg("LLM provider configured")

	return llm.NewOpenAI(cfg, budget, logger)
}

// StartHealthServer starts the health check, metrics and idea read server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunLive parses pending messages until ctx is canceled.
func (a *App) RunLive(ctx context.Context) error {
	p := parser.New(a.provider, a.prep, parser.OptionsFromConfig(a.cfg), nil, a.logger).WithPolicy(a.callPolicy())
	committer := ingest.NewCommitter(a.database, ingest.PathLive, a.cfg.PromptVersion, a.logger)
	w := parser.NewWorker(a.database, p, committer, a.cfg.WorkerBatchSize, a.cfg.WorkerPollInterval, a.logger)

	return w.Run(ctx)
}

// RunBatch resumes unfinished jobs and submits the current backlog as a new job.
func (a *App) RunBatch(ctx context.Context) error {
	if _, err := a.newBatchPipeline().Run(ctx); err != nil {
		return fmt.Errorf("batch run: %w", err)
	}

	return nil
}

// RunBatchResume waits for the given job, or every unfinished job when batchID is
// empty, and ingests the output.
func (a *App) RunBatchResume(ctx context.Context, batchID string) error {
	pipeline := a.newBatchPipeline()

	if batchID == "" {
		return pipeline.ResumeUnfinished(ctx)
	}

	if _, err := pipeline.Resume(ctx, batchID); err != nil {
		return fmt.Errorf("resume batch %s: %w", batchID, err)
	}

	return nil
}

// RunBatchCancel cancels a submitted job. Its messages stay pending.
func (a *App) RunBatchCancel(ctx context.Context, batchID string) error {
	if batchID == "" {
		return fmt.Errorf("%w: batch id", errors.ErrMissingField)
	}

	job, err := a.newBatchPipeline().Cancel(ctx, batchID)
	if err != nil {
		return err
	}

	a.logger.Info().Str(logFieldBatchID, job.ID).Str(logFieldStatus, string(job.Status)).Msg("batch cancel requested")

	return nil
}

// RunReparse resets the given messages, or every message sent at or after since,
// to pending.
func (a *App) RunReparse(ctx context.Context, ids []string, since time.Time) error {
	var (
		n   int64
		err error
	)

	switch {
	case len(ids) > 0:
		n, err = a.database.ResetToPending(ctx, ids)
	case !since.IsZero():
		n, err = a.database.ResetToPendingSince(ctx, since)
	default:
		return fmt.Errorf("%w: reparse needs ids or a since date", errors.ErrMissingField)
	}

	if err != nil {
		return fmt.Errorf("reparse: %w", err)
	}

	event := a.logger.Info().Int64(logFieldCount, n)
	if !since.IsZero() {
		event = event.Time(logFieldSince, since)
	}

	event.Msg("messages reset to pending")

	return nil
}

func (a *App) newBatchPipeline() *batch.Pipeline {
	builder := batch.NewBuilder(a.prep, batch.BuildOptions{
		PrimaryModel:     a.cfg.LLMPrimaryModel,
		EscalationModel:  a.cfg.LLMEscalationModel,
		LongContextChars: a.cfg.LLMLongContextChars,
		MaxTokens:        a.cfg.LLMMaxTokens,
		PromptVersion:    a.cfg.PromptVersion,
	})
	committer := ingest.NewCommitter(a.database, ingest.PathBatch, a.cfg.PromptVersion, a.logger)

	return batch.New(a.provider, a.database, builder, committer, batch.Options{
		BuildLimit:    a.cfg.BatchBuildLimit,
		PollInterval:  a.cfg.BatchPollInterval,
		PromptVersion: a.cfg.PromptVersion,
	}, a.logger).WithPolicies(a.callPolicy(), retry.FilePolicy().WithLogger(a.logger), retry.DBPolicy().WithLogger(a.logger))
}

// callPolicy is the model call policy with the configured backoff.
func (a *App) callPolicy() retry.Policy {
	p := retry.DefaultPolicy().WithLogger(a.logger)
	p.MaxRetries = a.cfg.RetryMaxRetries
	p.InitialDelay = a.cfg.RetryInitialDelay
	p.BackoffFactor = a.cfg.RetryBackoffFactor

	return p
}
