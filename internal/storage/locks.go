package db

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"strconv"

	"github.com/jackc/pgx/v5"
)

// LockKey maps a message id to a Postgres advisory lock key. Ids that parse as
// a base-10 int64 use their value; any other id uses FNV-1a 64 of its bytes.
// Both are stable across processes and implementations.
func LockKey(messageID string) int64 {
	if n, err := strconv.ParseInt(messageID, 10, 64); err == nil {
		return n
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(messageID))

	return int64(h.Sum64())
}

// LockKeys returns the distinct lock keys for ids in ascending order. Every
// writer acquires locks in this order, so two writers never wait on each other
// in a cycle.
func LockKeys(messageIDs []string) []int64 {
	keys := make([]int64, 0, len(messageIDs))
	for _, id := range messageIDs {
		keys = append(keys, LockKey(id))
	}

	slices.Sort(keys)

	return slices.Compact(keys)
}

// lockMessages takes transaction-scoped advisory locks for every message id.
// They are released on commit or rollback.
func lockMessages(ctx context.Context, tx pgx.Tx, messageIDs []string) error {
	for _, key := range LockKeys(messageIDs) {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
			return fmt.Errorf("advisory lock %d: %w", key, err)
		}
	}

	return nil
}
