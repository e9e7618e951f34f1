package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

const ideaColumns = `message_id, soft_chunk_index, local_idea_index, idea_text, idea_summary, primary_symbol,
	symbols, instrument, direction, action, time_horizon, levels, labels, confidence, model,
	prompt_version, raw_payload, created_at`

const insertIdeaSQL = `
	INSERT INTO ideas (` + ideaColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, COALESCE($18, now()))`

// CommitIdeas replaces the idea sets of messageIDs with ideas in one
// transaction: advisory locks for every message in ascending key order, delete
// of the existing ideas, then the inserts. Every idea must belong to one of
// messageIDs and carry a unique key.
func (db *DB) CommitIdeas(ctx context.Context, messageIDs []string, ideas []domain.Idea) (deleted, inserted int64, err error) {
	if len(messageIDs) == 0 {
		return 0, 0, nil
	}

	if err := validateCommit(messageIDs, ideas); err != nil {
		return 0, 0, err
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf(errBeginTx, err)
	}

	defer func() {
		//nolint:errcheck // rollback after commit is a no-op
		_ = tx.Rollback(ctx)
	}()

	if err := lockMessages(ctx, tx, messageIDs); err != nil {
		return 0, 0, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM ideas WHERE message_id = ANY($1)`, messageIDs)
	if err != nil {
		return 0, 0, fmt.Errorf("delete ideas: %w", err)
	}

	deleted = tag.RowsAffected()

	if inserted, err = insertIdeas(ctx, tx, ideas); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit ideas: %w", err)
	}

	return deleted, inserted, nil
}

func validateCommit(messageIDs []string, ideas []domain.Idea) error {
	allowed := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		allowed[id] = struct{}{}
	}

	seen := make(map[domain.IdeaKey]struct{}, len(ideas))

	for _, idea := range ideas {
		if _, ok := allowed[idea.MessageID]; !ok {
			return fmt.Errorf("%w: idea for message %s outside the commit set", errors.ErrInvalidInput, idea.MessageID)
		}

		if idea.IsNoise {
			return fmt.Errorf("%w: noise idea %v must be filtered before commit", errors.ErrInvalidInput, idea.Key())
		}

		if _, dup := seen[idea.Key()]; dup {
			return fmt.Errorf("%w: duplicate idea key %v", errors.ErrInvalidInput, idea.Key())
		}

		seen[idea.Key()] = struct{}{}
	}

	return nil
}

func insertIdeas(ctx context.Context, tx pgx.Tx, ideas []domain.Idea) (int64, error) {
	if len(ideas) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}

	for _, idea := range ideas {
		levels, err := json.Marshal(nonNilLevels(idea.Levels))
		if err != nil {
			return 0, fmt.Errorf("encode levels: %w", err)
		}

		var raw []byte
		if len(idea.RawPayload) > 0 {
			raw = idea.RawPayload
		}

		batch.Queue(insertIdeaSQL,
			idea.MessageID, idea.SoftChunkIndex, idea.LocalIdeaIndex,
			SanitizeUTF8(idea.IdeaText), SanitizeUTF8(idea.IdeaSummary), idea.PrimarySymbol,
			nonNil(idea.Symbols), idea.Instrument, idea.Direction, idea.Action, idea.TimeHorizon,
			levels, nonNil(idea.Labels), idea.Confidence, idea.Model, idea.PromptVersion,
			raw, toTimestamptz(idea.CreatedAt),
		)
	}

	results := tx.SendBatch(ctx, batch)

	var inserted int64

	for range ideas {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()

			return 0, fmt.Errorf("insert idea: %w", err)
		}

		inserted += tag.RowsAffected()
	}

	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("insert ideas: %w", err)
	}

	return inserted, nil
}

var listIdeaColumns = qualifyColumns("i", ideaColumns)

// ListIdeas returns ideas newest first by the time their message was sent, so a
// reparse does not move old ideas forward. Symbol matches the primary symbol or
// any listed symbol.
func (db *DB) ListIdeas(ctx context.Context, filter domain.IdeaFilter) ([]domain.Idea, error) {
	var (
		where []string
		args  []any
	)

	if filter.Symbol != "" {
		args = append(args, strings.ToUpper(filter.Symbol))
		where = append(where, fmt.Sprintf("(i.primary_symbol = $%d OR $%d = ANY(i.symbols))", len(args), len(args)))
	}

	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("m.sent_at >= $%d", len(args)))
	}

	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		where = append(where, fmt.Sprintf("m.sent_at < $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultIdeaListLimit
	}

	limit = min(limit, maxIdeaListLimit)
	args = append(args, limit)

	query := `SELECT ` + listIdeaColumns + ` FROM ideas i JOIN messages m ON m.id = i.message_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	query += fmt.Sprintf(` ORDER BY m.sent_at DESC, i.message_id, i.soft_chunk_index, i.local_idea_index LIMIT $%d`, len(args))

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}

	return collectIdeas(rows)
}

// IdeasForMessages returns the current ideas of the given messages ordered by key.
func (db *DB) IdeasForMessages(ctx context.Context, messageIDs []string) ([]domain.Idea, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+ideaColumns+`
		FROM ideas
		WHERE message_id = ANY($1)
		ORDER BY message_id, soft_chunk_index, local_idea_index`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("ideas for messages: %w", err)
	}

	return collectIdeas(rows)
}

func collectIdeas(rows pgx.Rows) ([]domain.Idea, error) {
	ideas, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Idea, error) {
		var (
			idea   domain.Idea
			levels []byte
			raw    []byte
		)

		err := row.Scan(
			&idea.MessageID, &idea.SoftChunkIndex, &idea.LocalIdeaIndex, &idea.IdeaText, &idea.IdeaSummary,
			&idea.PrimarySymbol, &idea.Symbols, &idea.Instrument, &idea.Direction, &idea.Action,
			&idea.TimeHorizon, &levels, &idea.Labels, &idea.Confidence, &idea.Model,
			&idea.PromptVersion, &raw, &idea.CreatedAt,
		)
		if err != nil {
			return domain.Idea{}, err
		}

		if err := json.Unmarshal(levels, &idea.Levels); err != nil {
			return domain.Idea{}, fmt.Errorf("decode levels: %w", err)
		}

		if len(raw) > 0 {
			idea.RawPayload = json.RawMessage(raw)
		}

		return idea, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan ideas: %w", err)
	}

	return ideas, nil
}

func nonNilLevels(levels []domain.Level) []domain.Level {
	if levels == nil {
		return []domain.Level{}
	}

	return levels
}

func qualifyColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}

	return strings.Join(parts, ", ")
}
