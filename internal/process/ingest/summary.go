package ingest

import (
	"github.com/rs/zerolog"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
)

// Summary counts message outcomes for the operator report.
type Summary struct {
	OK      int
	Noise   int
	Error   int
	Skipped int
	Pending int
	Ideas   int
}

func (s *Summary) Add(o Outcome) {
	switch o.Status {
	case domain.StatusOK:
		s.OK++
	case domain.StatusNoise:
		s.Noise++
	case domain.StatusError:
		s.Error++
	case domain.StatusSkipped:
		s.Skipped++
	case domain.StatusPending:
		s.Pending++
	}

	s.Ideas += len(o.Ideas)
}

func (s Summary) Total() int {
	return s.OK + s.Noise + s.Error + s.Skipped + s.Pending
}

// Log writes the summary as a single Info event.
func (s Summary) Log(logger *zerolog.Logger, path string, fields map[string]string) {
	event := logger.Info().
		Str(LogFieldPath, path).
		Int("ok", s.OK).
		Int("noise", s.Noise).
		Int("error", s.Error).
		Int("skipped", s.Skipped).
		Int("pending", s.Pending).
		Int("ideas", s.Ideas)

	for k, v := range fields {
		event = event.Str(k, v)
	}

	event.Msg("parse summary")
}
