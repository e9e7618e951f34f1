package parser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
	"github.com/lueurxax/trade-idea-parser/internal/core/llm"
	"github.com/lueurxax/trade-idea-parser/internal/process/ingest"
)

type fakeStore struct {
	mu       sync.Mutex
	messages []domain.Message
	statuses map[string]domain.ParseStatus
	reasons  map[string]string
	ideas    map[string][]domain.Idea
	inFlight map[string]bool
}

func newFakeStore(messages ...domain.Message) *fakeStore {
	return &fakeStore{
		messages: messages,
		statuses: map[string]domain.ParseStatus{},
		reasons:  map[string]string{},
		ideas:    map[string][]domain.Idea{},
		inFlight: map[string]bool{},
	}
}

func (s *fakeStore) ListPendingMessages(_ context.Context, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Message

	for _, m := range s.messages {
		if st, ok := s.statuses[m.ID]; ok && st != domain.StatusPending {
			continue
		}

		out = append(out, m)
		if len(out) == limit {
			break
		}
	}

	return out, nil
}

func (s *fakeStore) ListPendingOutsideBatches(ctx context.Context, limit int) ([]domain.Message, error) {
	pending, err := s.ListPendingMessages(ctx, len(s.messages))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Message

	for _, m := range pending {
		if s.inFlight[m.ID] {
			continue
		}

		out = append(out, m)
		if len(out) == limit {
			break
		}
	}

	return out, nil
}

func (s *fakeStore) CountPendingMessages(ctx context.Context) (int64, error) {
	pending, err := s.ListPendingMessages(ctx, len(s.messages)+1)
	return int64(len(pending)), err
}

func (s *fakeStore) CommitIdeas(_ context.Context, messageIDs []string, ideas []domain.Idea) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range messageIDs {
		deleted += int64(len(s.ideas[id]))
		delete(s.ideas, id)
	}

	for _, idea := range ideas {
		s.ideas[idea.MessageID] = append(s.ideas[idea.MessageID], idea)
	}

	return deleted, int64(len(ideas)), nil
}

func (s *fakeStore) UpdateParseStatus(_ context.Context, id string, status domain.ParseStatus, reason *string, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[id] = status
	if reason != nil {
		s.reasons[id] = *reason
	}

	return nil
}

func testWorker(store *fakeStore, client llm.Client) *Worker {
	logger := zerolog.Nop()
	committer := ingest.NewCommitter(store, ingest.PathLive, "v3", &logger)

	return NewWorker(store, testParser(client, Options{}), committer, 10, time.Millisecond, &logger)
}

func TestWorker_ProcessOnce(t *testing.T) {
	store := newFakeStore(
		msg("1", "Bought $AAPL at $150, sell $GOOGL at $180"),
		msg("2", "lol"),
		msg("3", "/price TSLA"),
		msg("4", "https://example.com/x"),
	)

	summary, err := testWorker(store, llm.NewMockProvider()).ProcessOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ingest.Summary{OK: 1, Noise: 1, Skipped: 2, Ideas: 2}, summary)
	assert.Equal(t, domain.StatusOK, store.statuses["1"])
	assert.Equal(t, domain.StatusNoise, store.statuses["2"])
	assert.Equal(t, domain.StatusSkipped, store.statuses["3"])
	assert.Equal(t, "bot_command", store.reasons["3"])
	assert.Equal(t, "url_only", store.reasons["4"])
	assert.Len(t, store.ideas["1"], 2)

	// nothing pending on the second pass
	summary, err = testWorker(store, llm.NewMockProvider()).ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total())
}

func TestWorker_SkipsMessagesHeldByBatchJob(t *testing.T) {
	client := newScriptedClient()
	client.replies[testPrimaryModel] = []string{parseReply(t, 0.9)}

	store := newFakeStore(msg("1", "long $AAPL"), msg("2", "long $AAPL into earnings"))
	store.inFlight["2"] = true

	summary, err := testWorker(store, client).ProcessOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.OK)
	assert.Equal(t, domain.StatusOK, store.statuses["1"])
	assert.NotContains(t, store.statuses, "2")
	assert.Equal(t, 1, client.triageCalls(), "the batch-held message must not reach the model")
	assert.Len(t, client.parseCalls(), 1)
}

func TestWorker_BudgetExhaustionLeavesMessagesPending(t *testing.T) {
	client := newScriptedClient()
	client.triage = func(string) (string, error) { return "", errors.ErrBudgetExceeded }

	store := newFakeStore(msg("1", "long $AAPL"), msg("2", "short $TSLA"))

	summary, err := testWorker(store, client).ProcessOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Pending)
	assert.Empty(t, store.statuses)
	assert.Equal(t, 1, client.triageCalls())
}

func TestWorker_PermanentFaultBecomesError(t *testing.T) {
	client := newScriptedClient()
	client.errs[testPrimaryModel] = []error{errors.ErrInvalidInput}

	store := newFakeStore(msg("1", "long $AAPL"))

	summary, err := testWorker(store, client).ProcessOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Error)
	assert.Equal(t, domain.StatusError, store.statuses["1"])
	assert.Contains(t, store.reasons["1"], "invalid input")
	assert.Empty(t, store.ideas["1"])
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := newFakeStore(msg("1", "long $AAPL"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := testWorker(store, llm.NewMockProvider()).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StatusOK, store.statuses["1"])
}
