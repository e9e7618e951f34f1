// Package batch is the asynchronous path: pending messages are written into a
// provider job file, submitted, polled until the job is terminal and the output is
// ingested through the same aggregation and commit rules as the live path.
package batch

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/llm"
	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
	"github.com/lueurxax/trade-idea-parser/internal/platform/retry"
	"github.com/lueurxax/trade-idea-parser/internal/platform/worker"
	"github.com/lueurxax/trade-idea-parser/internal/process/ingest"
	db "github.com/lueurxax/trade-idea-parser/internal/storage"
)

type Repository interface {
	ListPendingMessages(ctx context.Context, limit int) ([]domain.Message, error)
	GetMessages(ctx context.Context, ids []string) ([]domain.Message, error)
	SaveBatchJob(ctx context.Context, job domain.BatchJob) error
	GetBatchJob(ctx context.Context, id string) (domain.BatchJob, error)
	ListUnfinishedBatchJobs(ctx context.Context) ([]domain.BatchJob, error)
	MarkBatchJobIngested(ctx context.Context, id string) error
}

var _ Repository = (*db.DB)(nil)

// Options configures polling and job size.
type Options struct {
	BuildLimit    int
	PollInterval  time.Duration
	PromptVersion string
}

type Pipeline struct {
	client     llm.BatchClient
	repo       Repository
	builder    *Builder
	committer  *ingest.Committer
	opts       Options
	callPolicy retry.Policy
	filePolicy retry.Policy
	dbPolicy   retry.Policy
	logger     *zerolog.Logger
}

func New(client llm.BatchClient, repo Repository, builder *Builder, committer *ingest.Committer, opts Options, logger *zerolog.Logger) *Pipeline {
	if opts.BuildLimit <= 0 {
		opts.BuildLimit = defaultBuildLimit
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	return &Pipeline{
		client:     client,
		repo:       repo,
		builder:    builder,
		committer:  committer,
		opts:       opts,
		callPolicy: retry.DefaultPolicy().WithLogger(logger),
		filePolicy: retry.FilePolicy().WithLogger(logger),
		dbPolicy:   retry.DBPolicy().WithLogger(logger),
		logger:     logger,
	}
}

// WithPolicies replaces the retry policies for provider calls, file transfers and
// job bookkeeping.
func (p *Pipeline) WithPolicies(call, file, database retry.Policy) *Pipeline {
	p.callPolicy = call
	p.filePolicy = file
	p.dbPolicy = database

	return p
}

// Run resumes unfinished jobs, then submits a new job for the current backlog and
// waits for it. It returns the summary of the new job.
func (p *Pipeline) Run(ctx context.Context) (ingest.Summary, error) {
	if err := p.ResumeUnfinished(ctx); err != nil {
		return ingest.Summary{}, err
	}

	job, submitted, err := p.Submit(ctx)
	if err != nil || !submitted {
		return ingest.Summary{}, err
	}

	return p.Resume(ctx, job.ID)
}

// Submit builds and submits a job for pending messages that are not already part
// of an unfinished job. submitted is false when there was nothing to send.
func (p *Pipeline) Submit(ctx context.Context) (job domain.BatchJob, submitted bool, err error) {
	runID := uuid.New().String()

	messages, err := p.repo.ListPendingMessages(ctx, p.opts.BuildLimit)
	if err != nil {
		return job, false, fmt.Errorf("list pending messages: %w", err)
	}

	messages, err = p.withoutInFlight(ctx, messages)
	if err != nil {
		return job, false, err
	}

	build, err := p.builder.Build(messages)
	if err != nil {
		return job, false, err
	}

	for _, o := range build.Skipped {
		if err := p.committer.Apply(ctx, o); err != nil {
			return job, false, err
		}
	}

	if build.Lines == 0 {
		p.logger.Info().
			Str(LogFieldCorrelationID, runID).
			Int(LogFieldMessages, len(messages)).
			Msg("nothing to submit")

		return job, false, nil
	}

	fileID, err := retry.Do(ctx, p.filePolicy, func(ctx context.Context) (string, error) {
		return p.client.UploadBatchFile(ctx, jobFileName, build.File)
	})
	if err != nil {
		return job, false, fmt.Errorf("upload job file: %w", err)
	}

	metadata := map[string]any{
		metadataPromptVersion: p.opts.PromptVersion,
		metadataRunID:         runID,
	}

	job, err = retry.Do(ctx, p.callPolicy, func(ctx context.Context) (domain.BatchJob, error) {
		return p.client.CreateBatch(ctx, fileID, metadata)
	})
	if err != nil {
		return job, false, fmt.Errorf("create batch: %w", err)
	}

	job.MessageIDs = build.MessageIDs
	job.PromptVersion = p.opts.PromptVersion

	if err := p.saveJob(ctx, job); err != nil {
		return job, false, err
	}

	p.logger.Info().
		Str(LogFieldBatchID, job.ID).
		Str(LogFieldCorrelationID, runID).
		Int(LogFieldLines, build.Lines).
		Int(LogFieldMessages, len(build.MessageIDs)).
		Int("skipped", len(build.Skipped)).
		Msg("batch job submitted")

	return job, true, nil
}

// Resume waits for a known job and ingests it unless it was ingested already.
func (p *Pipeline) Resume(ctx context.Context, batchID string) (ingest.Summary, error) {
	job, err := p.repo.GetBatchJob(ctx, batchID)
	if err != nil {
		return ingest.Summary{}, fmt.Errorf("load batch job %s: %w", batchID, err)
	}

	if job.IngestedAt != nil {
		p.logger.Info().Str(LogFieldBatchID, batchID).Msg("batch job already ingested")
		return ingest.Summary{}, nil
	}

	job, err = p.Wait(ctx, job)
	if err != nil {
		return ingest.Summary{}, err
	}

	return p.Ingest(ctx, job)
}

// ResumeUnfinished resumes every job that has not been ingested, oldest first.
// A job that fails is logged and left for the next run.
func (p *Pipeline) ResumeUnfinished(ctx context.Context) error {
	jobs, err := p.repo.ListUnfinishedBatchJobs(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished batch jobs: %w", err)
	}

	for _, job := range jobs {
		if _, err := p.Resume(ctx, job.ID); err != nil {
			if ctx.Err() != nil {
				return err
			}

			p.logger.Error().Err(err).Str(LogFieldBatchID, job.ID).Msg("failed to resume batch job")
		}
	}

	return nil
}

// Wait polls the provider until the job is terminal. Each observed status is
// persisted, so a canceled wait can be resumed from the stored job.
func (p *Pipeline) Wait(ctx context.Context, job domain.BatchJob) (domain.BatchJob, error) {
	current := job

	err := worker.PollUntil(ctx, p.opts.PollInterval, func(ctx context.Context) (bool, error) {
		observability.BatchPolls.Inc()

		latest, err := retry.Do(ctx, p.callPolicy, func(ctx context.Context) (domain.BatchJob, error) {
			return p.client.RetrieveBatch(ctx, current.ID)
		})
		if err != nil {
			return false, fmt.Errorf("retrieve batch %s: %w", current.ID, err)
		}

		latest.MessageIDs = current.MessageIDs
		latest.PromptVersion = current.PromptVersion

		if latest.Status != current.Status {
			p.logger.Info().
				Str(LogFieldBatchID, current.ID).
				Str(LogFieldStatus, string(latest.Status)).
				Int("completed", latest.RequestCounts.Completed).
				Int("failed", latest.RequestCounts.Failed).
				Int("total", latest.RequestCounts.Total).
				Msg("batch status changed")

			if err := p.saveJob(ctx, latest); err != nil {
				return false, err
			}
		}

		current = latest

		return current.Status.Terminal(), nil
	})
	if err != nil {
		return current, err
	}

	return current, nil
}

// Cancel asks the provider to stop a job and records the returned state.
func (p *Pipeline) Cancel(ctx context.Context, batchID string) (domain.BatchJob, error) {
	stored, err := p.repo.GetBatchJob(ctx, batchID)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("load batch job %s: %w", batchID, err)
	}

	job, err := retry.Do(ctx, p.callPolicy, func(ctx context.Context) (domain.BatchJob, error) {
		return p.client.CancelBatch(ctx, batchID)
	})
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("cancel batch %s: %w", batchID, err)
	}

	job.MessageIDs = stored.MessageIDs
	job.PromptVersion = stored.PromptVersion

	return job, p.saveJob(ctx, job)
}

func (p *Pipeline) saveJob(ctx context.Context, job domain.BatchJob) error {
	err := p.dbPolicy.Execute(ctx, func(ctx context.Context) error {
		return p.repo.SaveBatchJob(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("save batch job %s: %w", job.ID, err)
	}

	return nil
}

func (p *Pipeline) withoutInFlight(ctx context.Context, messages []domain.Message) ([]domain.Message, error) {
	jobs, err := p.repo.ListUnfinishedBatchJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unfinished batch jobs: %w", err)
	}

	if len(jobs) == 0 {
		return messages, nil
	}

	inFlight := make(map[string]struct{})

	for _, j := range jobs {
		for _, id := range j.MessageIDs {
			inFlight[id] = struct{}{}
		}
	}

	return slices.DeleteFunc(messages, func(m domain.Message) bool {
		_, ok := inFlight[m.ID]
		return ok
	}), nil
}
