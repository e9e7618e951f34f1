package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

const messageColumns = `id, author, author_is_bot, channel, text, sent_at, parse_status, error_reason, prompt_version`

// SaveMessage inserts a raw message or refreshes its content. The parse state
// of an existing row is left alone.
func (db *DB) SaveMessage(ctx context.Context, m domain.Message) error {
	status := m.ParseStatus
	if status == "" {
		status = domain.StatusPending
	}

	if !status.Valid() {
		return fmt.Errorf("%w: parse status %q", errors.ErrInvalidInput, status)
	}

	sentAt := m.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO messages (id, author, author_is_bot, channel, text, sent_at, parse_status, error_reason, prompt_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			author = EXCLUDED.author,
			author_is_bot = EXCLUDED.author_is_bot,
			channel = EXCLUDED.channel,
			text = EXCLUDED.text`,
		m.ID, m.Author, m.AuthorIsBot, m.Channel, SanitizeUTF8(m.Text), sentAt, string(status), m.ErrorReason, m.PromptVersion,
	)
	if err != nil {
		return fmt.Errorf("save message %s: %w", m.ID, err)
	}

	return nil
}

// ListPendingMessages returns up to limit pending messages, oldest first.
func (db *DB) ListPendingMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE parse_status = 'pending'
		ORDER BY sent_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending messages: %w", err)
	}

	return collectMessages(rows)
}

// ListPendingOutsideBatches is ListPendingMessages without the messages that an
// unfinished batch job will still deliver.
func (db *DB) ListPendingOutsideBatches(ctx context.Context, limit int) ([]domain.Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.parse_status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM batch_jobs j
			WHERE j.ingested_at IS NULL AND m.id = ANY(j.message_ids)
		  )
		ORDER BY m.sent_at, m.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending messages outside batches: %w", err)
	}

	return collectMessages(rows)
}

// GetMessages loads messages by id. Missing ids are ignored.
func (db *DB) GetMessages(ctx context.Context, ids []string) ([]domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = ANY($1)
		ORDER BY sent_at, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	return collectMessages(rows)
}

// GetMessage loads one message.
func (db *DB) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	msgs, err := db.GetMessages(ctx, []string{id})
	if err != nil {
		return domain.Message{}, err
	}

	if len(msgs) == 0 {
		return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}

	return msgs[0], nil
}

// UpdateParseStatus records the outcome of one parse attempt.
func (db *DB) UpdateParseStatus(ctx context.Context, id string, status domain.ParseStatus, reason *string, promptVersion string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: parse status %q", errors.ErrInvalidInput, status)
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE messages
		SET parse_status = $2, error_reason = $3, prompt_version = $4, parsed_at = now()
		WHERE id = $1`, id, string(status), reason, promptVersion)
	if err != nil {
		return fmt.Errorf("update parse status for %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}

	return nil
}

// ResetToPending marks the given messages for another parse.
func (db *DB) ResetToPending(ctx context.Context, ids []string) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE messages
		SET parse_status = 'pending', error_reason = NULL
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("reset messages to pending: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ResetToPendingSince marks every non-pending message sent at or after since
// for another parse.
func (db *DB) ResetToPendingSince(ctx context.Context, since time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE messages
		SET parse_status = 'pending', error_reason = NULL
		WHERE sent_at >= $1 AND parse_status <> 'pending'`, since)
	if err != nil {
		return 0, fmt.Errorf("reset messages since %s: %w", since.Format(time.RFC3339), err)
	}

	return tag.RowsAffected(), nil
}

// CountPendingMessages returns the pending backlog size.
func (db *DB) CountPendingMessages(ctx context.Context) (int64, error) {
	var n int64
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM messages WHERE parse_status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending messages: %w", err)
	}

	return n, nil
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Message, error) {
		var (
			m      domain.Message
			status string
		)

		if err := row.Scan(&m.ID, &m.Author, &m.AuthorIsBot, &m.Channel, &m.Text, &m.Timestamp, &status, &m.ErrorReason, &m.PromptVersion); err != nil {
			return domain.Message{}, err
		}

		m.ParseStatus = domain.ParseStatus(status)

		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	return msgs, nil
}
