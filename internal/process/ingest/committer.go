// Package ingest turns parse outcomes into stored state. Idea sets are replaced in one
// locked transaction per message; the parse status is written afterwards so a crash
// between the two leaves the message pending for another attempt.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
	"github.com/lueurxax/trade-idea-parser/internal/platform/retry"
	db "github.com/lueurxax/trade-idea-parser/internal/storage"
)

type Repository interface {
	CommitIdeas(ctx context.Context, messageIDs []string, ideas []domain.Idea) (deleted, inserted int64, err error)
	UpdateParseStatus(ctx context.Context, id string, status domain.ParseStatus, reason *string, promptVersion string) error
}

var _ Repository = (*db.DB)(nil)

type Committer struct {
	repo          Repository
	path          string
	promptVersion string
	policy        retry.Policy
	logger        *zerolog.Logger
}

func NewCommitter(repo Repository, path, promptVersion string, logger *zerolog.Logger) *Committer {
	return &Committer{
		repo:          repo,
		path:          path,
		promptVersion: promptVersion,
		policy:        retry.DBPolicy().WithLogger(logger),
		logger:        logger,
	}
}

// WithPolicy replaces the database retry policy.
func (c *Committer) WithPolicy(p retry.Policy) *Committer {
	c.policy = p
	return c
}

// Apply stores o. Ok and noise outcomes replace the message's idea set before the
// status is written; error and skipped outcomes only record the status and reason.
// Pending outcomes are left alone.
func (c *Committer) Apply(ctx context.Context, o Outcome) error {
	if o.Status == domain.StatusPending {
		return nil
	}

	promptVersion := o.PromptVersion
	if promptVersion == "" {
		promptVersion = c.promptVersion
	}

	if o.CommitsIdeas() {
		if err := c.commit(ctx, o); err != nil {
			return err
		}
	}

	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		return c.repo.UpdateParseStatus(ctx, o.MessageID, o.Status, o.Reason, promptVersion)
	})
	if err != nil {
		return fmt.Errorf("record %s status for message %s: %w", o.Status, o.MessageID, err)
	}

	observability.MessagesParsed.WithLabelValues(c.path, string(o.Status)).Inc()

	c.logger.Debug().
		Str(LogFieldMsgID, o.MessageID).
		Str(LogFieldPath, c.path).
		Str(LogFieldStatus, string(o.Status)).
		Msg("parse status recorded")

	return nil
}

func (c *Committer) commit(ctx context.Context, o Outcome) error {
	ideas := o.Ideas
	if ideas == nil {
		ideas = []domain.Idea{}
	}

	start := time.Now()

	var deleted, inserted int64

	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		var err error

		deleted, inserted, err = c.repo.CommitIdeas(ctx, []string{o.MessageID}, ideas)

		return err
	})
	if err != nil {
		return fmt.Errorf("commit ideas for message %s: %w", o.MessageID, err)
	}

	observability.CommitDuration.Observe(time.Since(start).Seconds())
	observability.IdeasCommitted.WithLabelValues(opDeleted).Add(float64(deleted))
	observability.IdeasCommitted.WithLabelValues(opInserted).Add(float64(inserted))

	c.logger.Debug().
		Str(LogFieldMsgID, o.MessageID).
		Str(LogFieldPath, c.path).
		Int64(LogFieldDeleted, deleted).
		Int64(LogFieldInserted, inserted).
		Msg("idea set replaced")

	return nil
}
