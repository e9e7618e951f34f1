package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
	"github.com/lueurxax/trade-idea-parser/internal/platform/retry"
	"github.com/lueurxax/trade-idea-parser/internal/platform/worker"
	"github.com/lueurxax/trade-idea-parser/internal/process/ingest"
	db "github.com/lueurxax/trade-idea-parser/internal/storage"
)

const (
	workerName            = "live-parser"
	backlogTaskName       = "pending-backlog"
	backlogRefresh        = time.Minute
	defaultWorkerBatch    = 20
	defaultWorkerInterval = 10 * time.Second
)

// Source lists messages waiting for a parse. Messages held by an unfinished batch
// job are not listed; the batch ingest stores their outcome.
type Source interface {
	ListPendingOutsideBatches(ctx context.Context, limit int) ([]domain.Message, error)
	CountPendingMessages(ctx context.Context) (int64, error)
}

var _ Source = (*db.DB)(nil)

// Worker drains pending messages through the parser and commits the results.
type Worker struct {
	source       Source
	parser       *Parser
	committer    *ingest.Committer
	batchSize    int
	pollInterval time.Duration
	logger       *zerolog.Logger
}

func NewWorker(source Source, parser *Parser, committer *ingest.Committer, batchSize int, pollInterval time.Duration, logger *zerolog.Logger) *Worker {
	if batchSize <= 0 {
		batchSize = defaultWorkerBatch
	}

	if pollInterval <= 0 {
		pollInterval = defaultWorkerInterval
	}

	return &Worker{
		source:       source,
		parser:       parser,
		committer:    committer,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run loops until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         workerName,
		PollInterval: w.pollInterval,
		Process: func(ctx context.Context) error {
			_, err := w.ProcessOnce(ctx)
			return err
		},
		PeriodicTasks: []worker.PeriodicTask{{
			Name:     backlogTaskName,
			Interval: backlogRefresh,
			Run:      w.refreshBacklog,
		}},
		Logger: w.logger,
	})
}

// ProcessOnce parses one batch of pending messages and returns the summary.
func (w *Worker) ProcessOnce(ctx context.Context) (ingest.Summary, error) {
	var summary ingest.Summary

	correlationID := uuid.New().String()

	messages, err := w.source.ListPendingOutsideBatches(ctx, w.batchSize)
	if err != nil {
		return summary, fmt.Errorf("list pending messages: %w", err)
	}

	if len(messages) == 0 {
		return summary, nil
	}

	for _, m := range messages {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		o, err := w.parseOne(ctx, m)
		if err != nil {
			w.logger.Warn().Err(err).
				Str(LogFieldMsgID, m.ID).
				Str(LogFieldCorrelationID, correlationID).
				Msg("message left pending")

			summary.Add(ingest.Outcome{MessageID: m.ID, Status: domain.StatusPending})

			if stopsBatch(err) {
				break
			}

			continue
		}

		if err := w.committer.Apply(ctx, o); err != nil {
			w.logger.Error().Err(err).
				Str(LogFieldMsgID, m.ID).
				Str(LogFieldCorrelationID, correlationID).
				Msg("failed to store parse outcome")

			summary.Add(ingest.Outcome{MessageID: m.ID, Status: domain.StatusPending})

			continue
		}

		summary.Add(o)
	}

	summary.Log(w.logger, ingest.PathLive, map[string]string{LogFieldCorrelationID: correlationID})

	return summary, nil
}

// parseOne returns an outcome to store, or an error when the message should stay
// pending. Permanent faults that are not about the provider's availability become
// an error outcome so the message is not retried forever.
func (w *Worker) parseOne(ctx context.Context, m domain.Message) (ingest.Outcome, error) {
	o, err := w.parser.ParseMessage(ctx, m)
	if err == nil {
		return o, nil
	}

	if retry.IsRetryable(err) || stopsBatch(err) {
		return ingest.Outcome{}, err
	}

	failed := ingest.Failed(m.ID, err)
	failed.PromptVersion = w.parser.opts.PromptVersion

	w.logger.Warn().Err(err).
		Str(LogFieldMsgID, m.ID).
		Str(LogFieldStatus, string(failed.Status)).
		Str(LogFieldReason, *failed.Reason).
		Msg("permanent parse fault")

	return failed, nil
}

// stopsBatch reports faults that will hit every remaining message as well.
func stopsBatch(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, errors.ErrBudgetExceeded) ||
		errors.Is(err, errors.ErrCircuitBreakerOpen)
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	n, err := w.source.CountPendingMessages(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to count pending messages")
		return
	}

	observability.PendingBacklog.Set(float64(n))
}
