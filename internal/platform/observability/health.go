package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	defaultIdeaLimit  = 50
	maxIdeaLimit      = 500
)

// Pinger reports database reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IdeaReader serves the downstream read endpoint.
type IdeaReader interface {
	ListIdeas(ctx context.Context, filter domain.IdeaFilter) ([]domain.Idea, error)
}

type Server struct {
	db     Pinger
	ideas  IdeaReader
	port   int
	logger *zerolog.Logger
}

func NewServer(db Pinger, ideas IdeaReader, port int, logger *zerolog.Logger) *Server {
	return &Server{
		db:     db,
		ideas:  ideas,
		port:   port,
		logger: logger,
	}
}

// Handler returns the mux served by Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "DB error: %v", err)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "OK")
	})

	mux.Handle("/metrics", promhttp.Handler())

	if s.ideas != nil {
		mux.HandleFunc("/ideas", s.handleIdeas)
	}

	return mux
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("Health check server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

type ideaLevelView struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
	Label string  `json:"label,omitempty"`
}

type ideaView struct {
	MessageID      string          `json:"message_id"`
	SoftChunkIndex int             `json:"soft_chunk_index"`
	LocalIdeaIndex int             `json:"local_idea_index"`
	Summary        string          `json:"idea_summary"`
	PrimarySymbol  *string         `json:"primary_symbol"`
	Symbols        []string        `json:"symbols"`
	Instrument     string          `json:"instrument"`
	Direction      string          `json:"direction"`
	Action         string          `json:"action"`
	TimeHorizon    string          `json:"time_horizon"`
	Levels         []ideaLevelView `json:"levels"`
	Labels         []string        `json:"labels"`
	Confidence     float64         `json:"confidence"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (s *Server) handleIdeas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter, err := parseIdeaFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ideas, err := s.ideas.ListIdeas(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("list ideas failed")
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	views := make([]ideaView, 0, len(ideas))

	for _, idea := range ideas {
		levels := make([]ideaLevelView, 0, len(idea.Levels))
		for _, l := range idea.Levels {
			levels = append(levels, ideaLevelView(l))
		}

		views = append(views, ideaView{
			MessageID:      idea.MessageID,
			SoftChunkIndex: idea.SoftChunkIndex,
			LocalIdeaIndex: idea.LocalIdeaIndex,
			Summary:        idea.IdeaSummary,
			PrimarySymbol:  idea.PrimarySymbol,
			Symbols:        idea.Symbols,
			Instrument:     idea.Instrument,
			Direction:      idea.Direction,
			Action:         idea.Action,
			TimeHorizon:    idea.TimeHorizon,
			Levels:         levels,
			Labels:         idea.Labels,
			Confidence:     idea.Confidence,
			CreatedAt:      idea.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(views); err != nil {
		s.logger.Warn().Err(err).Msg("encode ideas response")
	}
}

func parseIdeaFilter(r *http.Request) (domain.IdeaFilter, error) {
	q := r.URL.Query()

	filter := domain.IdeaFilter{
		Symbol: strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(q.Get("symbol")), "$")),
		Limit:  defaultIdeaLimit,
	}

	if v := strings.TrimSpace(q.Get("since")); v != "" {
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return filter, fmt.Errorf("invalid since: %w", err)
		}

		filter.Since = t
	}

	if v := strings.TrimSpace(q.Get("until")); v != "" {
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return filter, fmt.Errorf("invalid until: %w", err)
		}

		filter.Until = t
	}

	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, fmt.Errorf("invalid limit %q", v)
		}

		filter.Limit = min(n, maxIdeaLimit)
	}

	return filter, nil
}
