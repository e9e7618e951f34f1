package db

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

const testDSNEnv = "TEST_POSTGRES_DSN"

func openTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := zerolog.Nop()

	database, err := New(ctx, dsn, &logger)
	require.NoError(t, err)
	t.Cleanup(database.Close)

	require.NoError(t, database.Migrate(ctx))

	return database
}

func newMessage(t *testing.T, database *DB, text string) domain.Message {
	t.Helper()

	m := domain.Message{
		ID:        "it-" + uuid.NewString(),
		Author:    "tester",
		Channel:   "ideas",
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, database.SaveMessage(context.Background(), m))

	return m
}

func ideasFor(messageID string, n int, tag string) []domain.Idea {
	ideas := make([]domain.Idea, 0, n)

	for i := 0; i < n; i++ {
		sym := "AAPL"
		ideas = append(ideas, domain.Idea{
			MessageID:      messageID,
			SoftChunkIndex: 0,
			LocalIdeaIndex: i,
			IdeaText:       fmt.Sprintf("%s idea %d", tag, i),
			PrimarySymbol:  &sym,
			Symbols:        []string{sym},
			Instrument:     domain.InstrumentEquity,
			Direction:      domain.DirectionLong,
			Action:         domain.ActionBuy,
			TimeHorizon:    domain.HorizonSwing,
			Levels:         []domain.Level{{Kind: domain.LevelEntry, Value: 150, Label: "entry"}},
			Confidence:     0.9,
			Model:          "test-model",
			PromptVersion:  "v3",
		})
	}

	return ideas
}

func TestCommitIdeas_ReplacesWholeSet(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	m := newMessage(t, database, "$AAPL long")

	deleted, inserted, err := database.CommitIdeas(ctx, []string{m.ID}, ideasFor(m.ID, 3, "first"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
	assert.Equal(t, int64(3), inserted)

	deleted, inserted, err = database.CommitIdeas(ctx, []string{m.ID}, ideasFor(m.ID, 1, "second"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.Equal(t, int64(1), inserted)

	got, err := database.IdeasForMessages(ctx, []string{m.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second idea 0", got[0].IdeaText)
	assert.Equal(t, []domain.Level{{Kind: domain.LevelEntry, Value: 150, Label: "entry"}}, got[0].Levels)

	// Committing an empty set clears the message.
	_, _, err = database.CommitIdeas(ctx, []string{m.ID}, nil)
	require.NoError(t, err)

	got, err = database.IdeasForMessages(ctx, []string{m.ID})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCommitIdeas_RejectsForeignAndDuplicateIdeas(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	m := newMessage(t, database, "x")

	_, _, err := database.CommitIdeas(ctx, []string{m.ID}, ideasFor("other", 1, "x"))
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	dup := append(ideasFor(m.ID, 1, "a"), ideasFor(m.ID, 1, "b")...)
	_, _, err = database.CommitIdeas(ctx, []string{m.ID}, dup)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestCommitIdeas_ConcurrentWritersOneSetSurvives(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	m := newMessage(t, database, "$AAPL $MSFT")

	setA := ideasFor(m.ID, 2, "A")
	setB := ideasFor(m.ID, 3, "B")

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup

		errs := make([]error, 2)

		for i, set := range [][]domain.Idea{setA, setB} {
			wg.Add(1)

			go func(i int, set []domain.Idea) {
				defer wg.Done()

				_, _, errs[i] = database.CommitIdeas(ctx, []string{m.ID}, set)
			}(i, set)
		}

		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		got, err := database.IdeasForMessages(ctx, []string{m.ID})
		require.NoError(t, err)

		switch len(got) {
		case 2:
			for _, idea := range got {
				assert.Contains(t, idea.IdeaText, "A idea")
			}
		case 3:
			for _, idea := range got {
				assert.Contains(t, idea.IdeaText, "B idea")
			}
		default:
			t.Fatalf("round %d: mixed or partial idea set of %d rows", round, len(got))
		}
	}
}

func TestCommitIdeas_OpposingLockOrderDoesNotDeadlock(t *testing.T) {
	database := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m1 := newMessage(t, database, "one")
	m2 := newMessage(t, database, "two")
	all := append(ideasFor(m1.ID, 1, "x"), ideasFor(m2.ID, 1, "x")...)

	var wg sync.WaitGroup

	errs := make(chan error, 40)

	for i := 0; i < 20; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()

			_, _, err := database.CommitIdeas(ctx, []string{m1.ID, m2.ID}, all)
			errs <- err
		}()

		go func() {
			defer wg.Done()

			_, _, err := database.CommitIdeas(ctx, []string{m2.ID, m1.ID}, all)
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func TestMessages_StatusLifecycle(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	m := newMessage(t, database, "lol")

	got, err := database.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.ParseStatus)

	reason := "bot_command"
	require.NoError(t, database.UpdateParseStatus(ctx, m.ID, domain.StatusSkipped, &reason, "v3"))

	got, err = database.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSkipped, got.ParseStatus)
	require.NotNil(t, got.ErrorReason)
	assert.Equal(t, reason, *got.ErrorReason)

	assert.True(t, errors.Is(database.UpdateParseStatus(ctx, m.ID, "done", nil, "v3"), errors.ErrInvalidInput))
	assert.True(t, errors.Is(database.UpdateParseStatus(ctx, "missing-"+m.ID, domain.StatusOK, nil, "v3"), errors.ErrNotFound))

	n, err := database.ResetToPending(ctx, []string{m.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = database.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.ParseStatus)
	assert.Nil(t, got.ErrorReason)
}

func TestBatchJobs_SaveAndResume(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	job := domain.BatchJob{
		ID:            "batch_it_" + uuid.NewString(),
		Status:        domain.BatchValidating,
		InputFileID:   "file-in",
		MessageIDs:    []string{"1380123456789012345", "abc"},
		PromptVersion: "v3",
	}
	require.NoError(t, database.SaveBatchJob(ctx, job))

	job.Status = domain.BatchCompleted
	job.OutputFileID = "file-out"
	job.RequestCounts = domain.RequestCounts{Total: 2, Completed: 2}
	require.NoError(t, database.SaveBatchJob(ctx, job))

	got, err := database.GetBatchJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchCompleted, got.Status)
	assert.Equal(t, "file-out", got.OutputFileID)
	assert.Equal(t, job.MessageIDs, got.MessageIDs)
	assert.Nil(t, got.IngestedAt)

	unfinished, err := database.ListUnfinishedBatchJobs(ctx)
	require.NoError(t, err)
	assert.Contains(t, batchIDs(unfinished), job.ID)

	require.NoError(t, database.MarkBatchJobIngested(ctx, job.ID))

	unfinished, err = database.ListUnfinishedBatchJobs(ctx)
	require.NoError(t, err)
	assert.NotContains(t, batchIDs(unfinished), job.ID)

	_, err = database.GetBatchJob(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestMessages_PendingOutsideBatches(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	free := newMessage(t, database, "long $AAPL")
	held := newMessage(t, database, "short $TSLA")

	job := domain.BatchJob{
		ID:          "batch_it_" + uuid.NewString(),
		Status:      domain.BatchInProgress,
		InputFileID: "file-in",
		MessageIDs:  []string{held.ID},
	}
	require.NoError(t, database.SaveBatchJob(ctx, job))

	ids := func() []string {
		msgs, err := database.ListPendingOutsideBatches(ctx, 10000)
		require.NoError(t, err)

		out := make([]string, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, m.ID)
		}

		return out
	}

	got := ids()
	assert.Contains(t, got, free.ID)
	assert.NotContains(t, got, held.ID)

	require.NoError(t, database.MarkBatchJobIngested(ctx, job.ID))
	assert.Contains(t, ids(), held.ID, "an ingested job no longer holds its messages")
}

func TestListIdeas_FiltersOnSentAt(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	sym := fmt.Sprintf("ZT%d", time.Now().UnixNano()%1000000)

	old := domain.Message{
		ID:        "it-" + uuid.NewString(),
		Author:    "tester",
		Channel:   "ideas",
		Text:      "old call",
		Timestamp: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, database.SaveMessage(ctx, old))

	fresh := newMessage(t, database, "new call")

	for _, m := range []domain.Message{old, fresh} {
		ideas := ideasFor(m.ID, 1, m.Text)
		ideas[0].PrimarySymbol = &sym
		ideas[0].Symbols = []string{sym}

		_, _, err := database.CommitIdeas(ctx, []string{m.ID}, ideas)
		require.NoError(t, err)
	}

	recent, err := database.ListIdeas(ctx, domain.IdeaFilter{Symbol: sym, Since: time.Now().Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, recent, 1, "ideas of an old message stay old after a fresh commit")
	assert.Equal(t, fresh.ID, recent[0].MessageID)

	all, err := database.ListIdeas(ctx, domain.IdeaFilter{Symbol: sym})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, fresh.ID, all[0].MessageID, "newest message first")
}

func batchIDs(jobs []domain.BatchJob) []string {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}

	return ids
}
