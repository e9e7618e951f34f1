package batch

import (
	"context"
	"fmt"
	"slices"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
	"github.com/lueurxax/trade-idea-parser/internal/core/llm"
	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
	"github.com/lueurxax/trade-idea-parser/internal/process/ingest"
)

var errMissingOutput = fmt.Errorf("%w: no output lines in completed batch", errors.ErrMissingField)

// Ingest downloads the output of a terminal job and commits every message in it.
// Ingesting the same job again yields the same idea sets.
func (p *Pipeline) Ingest(ctx context.Context, job domain.BatchJob) (ingest.Summary, error) {
	var summary ingest.Summary

	if !job.Status.Terminal() {
		return summary, fmt.Errorf("%w: %s is %s", errors.ErrBatchNotTerminal, job.ID, job.Status)
	}

	lines, err := p.downloadLines(ctx, job)
	if err != nil {
		return summary, err
	}

	chunks := p.groupLines(job, lines)

	messageIDs := slices.Clone(job.MessageIDs)
	for id := range chunks {
		if !slices.Contains(messageIDs, id) {
			messageIDs = append(messageIDs, id)
		}
	}

	slices.Sort(messageIDs)

	texts, err := p.sourceTexts(ctx, messageIDs)
	if err != nil {
		return summary, err
	}

	var applyErrs int

	for _, id := range messageIDs {
		o := p.outcomeFor(job, id, chunks[id])
		o.PromptVersion = job.PromptVersion

		if text, ok := texts[id]; ok && len(o.Ideas) > 0 {
			o.Ideas = p.builder.prep.Enrich(o.Ideas, text)
		}

		if err := p.committer.Apply(ctx, o); err != nil {
			if ctx.Err() != nil {
				return summary, err
			}

			applyErrs++

			p.logger.Error().Err(err).
				Str(LogFieldBatchID, job.ID).
				Str(LogFieldMsgID, id).
				Msg("failed to store batch outcome")

			continue
		}

		summary.Add(o)
	}

	observability.BatchJobs.WithLabelValues(string(job.Status)).Inc()

	summary.Log(p.logger, ingest.PathBatch, map[string]string{LogFieldBatchID: job.ID, LogFieldStatus: string(job.Status)})

	if applyErrs > 0 {
		return summary, fmt.Errorf("batch %s: %d messages could not be stored", job.ID, applyErrs)
	}

	if err := p.dbPolicy.Execute(ctx, func(ctx context.Context) error {
		return p.repo.MarkBatchJobIngested(ctx, job.ID)
	}); err != nil {
		return summary, fmt.Errorf("mark batch %s ingested: %w", job.ID, err)
	}

	return summary, nil
}

// sourceTexts loads the raw text of each message for ticker enrichment.
func (p *Pipeline) sourceTexts(ctx context.Context, messageIDs []string) (map[string]string, error) {
	messages, err := p.repo.GetMessages(ctx, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("load batch messages: %w", err)
	}

	texts := make(map[string]string, len(messages))
	for _, m := range messages {
		texts[m.ID] = m.Text
	}

	return texts, nil
}

func (p *Pipeline) outcomeFor(job domain.BatchJob, messageID string, chunks []ingest.ChunkOutcome) ingest.Outcome {
	if len(chunks) > 0 {
		return ingest.Aggregate(messageID, chunks)
	}

	if job.Status == domain.BatchCompleted {
		return ingest.Failed(messageID, errMissingOutput)
	}

	// Failed, expired or cancelled jobs leave unanswered messages for a later run.
	return ingest.Outcome{MessageID: messageID, Status: domain.StatusPending}
}

func (p *Pipeline) downloadLines(ctx context.Context, job domain.BatchJob) ([]llm.BatchOutputLine, error) {
	var lines []llm.BatchOutputLine

	for _, fileID := range []string{job.OutputFileID, job.ErrorFileID} {
		if fileID == "" {
			continue
		}

		data, err := p.download(ctx, fileID)
		if err != nil {
			return nil, fmt.Errorf("download %s for batch %s: %w", fileID, job.ID, err)
		}

		decoded, errs := llm.DecodeBatchLines(data)
		for _, lineErr := range errs {
			observability.BatchLines.WithLabelValues(lineOutcomeMalformed).Inc()
			p.logger.Warn().Err(lineErr).Str(LogFieldBatchID, job.ID).Msg("skipping batch line")
		}

		lines = append(lines, decoded...)
	}

	return lines, nil
}

func (p *Pipeline) download(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte

	err := p.filePolicy.Execute(ctx, func(ctx context.Context) error {
		var err error

		data, err = p.client.DownloadFile(ctx, fileID)

		return err
	})

	return data, err
}

// groupLines turns lines into chunk outcomes keyed by message id. A repeated
// custom id keeps the first line seen, output file before error file.
func (p *Pipeline) groupLines(job domain.BatchJob, lines []llm.BatchOutputLine) map[string][]ingest.ChunkOutcome {
	grouped := make(map[string][]ingest.ChunkOutcome)
	seen := make(map[string]struct{})

	for _, line := range lines {
		messageID, chunkIndex, err := ParseCustomID(line.CustomID)
		if err != nil {
			observability.BatchLines.WithLabelValues(lineOutcomeMalformed).Inc()
			p.logger.Warn().Err(err).Str(LogFieldBatchID, job.ID).Msg("skipping batch line")

			continue
		}

		if _, dup := seen[line.CustomID]; dup {
			continue
		}

		seen[line.CustomID] = struct{}{}

		grouped[messageID] = append(grouped[messageID], p.chunkOutcome(job, messageID, chunkIndex, line))
	}

	return grouped
}

func (p *Pipeline) chunkOutcome(job domain.BatchJob, messageID string, chunkIndex int, line llm.BatchOutputLine) ingest.ChunkOutcome {
	out := ingest.ChunkOutcome{Index: chunkIndex}

	resp, err := line.Completion()
	if err != nil {
		observability.BatchLines.WithLabelValues(lineOutcomeFailed).Inc()

		out.Err = fmt.Errorf("batch line %s: %w", line.CustomID, err)

		return out
	}

	result, err := llm.DecodeParse(resp.Content)
	if err != nil {
		observability.BatchLines.WithLabelValues(lineOutcomeInvalid).Inc()
		observability.ParseFailures.Inc()

		failure := &errors.ParseFailure{
			MessageID:  messageID,
			ChunkIndex: chunkIndex,
			Model:      resp.Model,
			Raw:        resp.Content,
			Cause:      err,
		}

		p.logger.Warn().Err(err).
			Str(LogFieldBatchID, job.ID).
			Str(LogFieldMsgID, messageID).
			Int(LogFieldChunk, chunkIndex).
			Str(LogFieldModel, failure.Model).
			Str(LogFieldRaw, failure.RawExcerpt(maxLoggedRawRunes)).
			Msg("batch chunk parse failed")

		out.Err = failure

		return out
	}

	observability.BatchLines.WithLabelValues(lineOutcomeParsed).Inc()

	out.Ideas = result.DomainIdeas(resp.Model, job.PromptVersion)

	return out
}
