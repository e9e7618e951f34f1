package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

const batchJobColumns = `id, status, input_file_id, output_file_id, error_file_id, request_total,
	request_completed, request_failed, message_ids, prompt_version, created_at, updated_at, ingested_at`

// SaveBatchJob inserts a job or updates its provider state. The message set and
// prompt version are fixed at creation.
func (db *DB) SaveBatchJob(ctx context.Context, job domain.BatchJob) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO batch_jobs (id, status, input_file_id, output_file_id, error_file_id,
			request_total, request_completed, request_failed, message_ids, prompt_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()))
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			output_file_id = EXCLUDED.output_file_id,
			error_file_id = EXCLUDED.error_file_id,
			request_total = EXCLUDED.request_total,
			request_completed = EXCLUDED.request_completed,
			request_failed = EXCLUDED.request_failed,
			updated_at = now()`,
		job.ID, string(job.Status), job.InputFileID, job.OutputFileID, job.ErrorFileID,
		job.RequestCounts.Total, job.RequestCounts.Completed, job.RequestCounts.Failed,
		nonNil(job.MessageIDs), job.PromptVersion, toTimestamptz(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save batch job %s: %w", job.ID, err)
	}

	return nil
}

// GetBatchJob loads a job by its provider id.
func (db *DB) GetBatchJob(ctx context.Context, id string) (domain.BatchJob, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+batchJobColumns+` FROM batch_jobs WHERE id = $1`, id)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("get batch job %s: %w", id, err)
	}

	jobs, err := collectBatchJobs(rows)
	if err != nil {
		return domain.BatchJob{}, err
	}

	if len(jobs) == 0 {
		return domain.BatchJob{}, fmt.Errorf("%w: batch job %s", errors.ErrNotFound, id)
	}

	return jobs[0], nil
}

// ListUnfinishedBatchJobs returns jobs whose results were never ingested, oldest first.
func (db *DB) ListUnfinishedBatchJobs(ctx context.Context) ([]domain.BatchJob, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+batchJobColumns+`
		FROM batch_jobs
		WHERE ingested_at IS NULL
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list unfinished batch jobs: %w", err)
	}

	return collectBatchJobs(rows)
}

// MarkBatchJobIngested records that a terminal job's results were applied.
func (db *DB) MarkBatchJobIngested(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE batch_jobs SET ingested_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark batch job %s ingested: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: batch job %s", errors.ErrNotFound, id)
	}

	return nil
}

func collectBatchJobs(rows pgx.Rows) ([]domain.BatchJob, error) {
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BatchJob, error) {
		var (
			job      domain.BatchJob
			status   string
			ingested pgtype.Timestamptz
		)

		err := row.Scan(
			&job.ID, &status, &job.InputFileID, &job.OutputFileID, &job.ErrorFileID,
			&job.RequestCounts.Total, &job.RequestCounts.Completed, &job.RequestCounts.Failed,
			&job.MessageIDs, &job.PromptVersion, &job.CreatedAt, &job.UpdatedAt, &ingested,
		)
		if err != nil {
			return domain.BatchJob{}, err
		}

		job.Status = domain.BatchStatus(status)
		job.IngestedAt = fromTimestamptzPtr(ingested)

		return job, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan batch jobs: %w", err)
	}

	return jobs, nil
}
