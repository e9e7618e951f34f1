package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
)

var errDown = errors.New("connection refused")

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubIdeas struct {
	got   domain.IdeaFilter
	ideas []domain.Idea
}

func (s *stubIdeas) ListIdeas(_ context.Context, f domain.IdeaFilter) ([]domain.Idea, error) {
	s.got = f
	return s.ideas, nil
}

func TestServer_Readyz(t *testing.T) {
	logger := zerolog.Nop()

	up := NewServer(stubPinger{}, nil, 0, &logger).Handler()
	rec := httptest.NewRecorder()
	up.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(stubPinger{err: errDown}, nil, 0, &logger).Handler()
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Ideas(t *testing.T) {
	logger := zerolog.Nop()
	sym := "AAPL"
	reader := &stubIdeas{ideas: []domain.Idea{{
		MessageID:     "1380123456789012345",
		PrimarySymbol: &sym,
		Symbols:       []string{"AAPL"},
		Direction:     domain.DirectionLong,
		Levels:        []domain.Level{{Kind: domain.LevelEntry, Value: 150}},
	}}}

	h := NewServer(stubPinger{}, reader, 0, &logger).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ideas?symbol=$aapl&since=2024-05-01&limit=10000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", reader.got.Symbol)
	assert.Equal(t, maxIdeaLimit, reader.got.Limit)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), reader.got.Since.UTC())

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "1380123456789012345", body[0]["message_id"])
}

func TestServer_IdeasBadLimit(t *testing.T) {
	logger := zerolog.Nop()

	h := NewServer(stubPinger{}, &stubIdeas{}, 0, &logger).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ideas?limit=abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
