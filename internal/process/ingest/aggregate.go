package ingest

import (
	"slices"
	"strings"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
)

// ChunkOutcome is the result of parsing one soft chunk.
type ChunkOutcome struct {
	Index int
	// Noise is set when triage rejected the chunk before parsing.
	Noise bool
	Ideas []domain.Idea
	Err   error
}

// Outcome is the final result of one parse attempt for a message.
type Outcome struct {
	MessageID     string
	Status        domain.ParseStatus
	Reason        *string
	PromptVersion string
	Ideas         []domain.Idea
	FailedChunks  int
}

// Skipped builds the outcome of a prefilter rejection.
func Skipped(messageID, reason string) Outcome {
	return Outcome{MessageID: messageID, Status: domain.StatusSkipped, Reason: &reason}
}

// Failed builds an error outcome that does not touch stored ideas.
func Failed(messageID string, err error) Outcome {
	reason := err.Error()

	return Outcome{MessageID: messageID, Status: domain.StatusError, Reason: &reason, FailedChunks: 1}
}

// Aggregate folds per-chunk results into a message outcome. Noise ideas are dropped,
// chunks are taken in index order and local idea indexes restart at zero per chunk.
//
// The message is ok when any chunk produced a non-noise idea and error only when
// every chunk failed. Anything else is noise, including a noise chunk next to a
// failed one. A failing chunk never hides ideas from a chunk that succeeded.
func Aggregate(messageID string, chunks []ChunkOutcome) Outcome {
	sorted := slices.Clone(chunks)
	slices.SortStableFunc(sorted, func(a, b ChunkOutcome) int { return a.Index - b.Index })

	out := Outcome{MessageID: messageID, Ideas: []domain.Idea{}}

	var failures []string

	for _, c := range sorted {
		if c.Err != nil {
			out.FailedChunks++
			failures = append(failures, c.Err.Error())

			continue
		}

		if c.Noise {
			continue
		}

		local := 0

		for _, idea := range c.Ideas {
			if idea.IsNoise {
				continue
			}

			idea.MessageID = messageID
			idea.SoftChunkIndex = c.Index
			idea.LocalIdeaIndex = local
			local++

			out.Ideas = append(out.Ideas, idea)
		}
	}

	switch {
	case len(out.Ideas) > 0:
		out.Status = domain.StatusOK
	case len(sorted) > 0 && out.FailedChunks == len(sorted):
		out.Status = domain.StatusError
		reason := strings.Join(failures, reasonSeparator)
		out.Reason = &reason
	default:
		out.Status = domain.StatusNoise
	}

	return out
}

// CommitsIdeas reports whether applying o replaces the stored idea set.
func (o Outcome) CommitsIdeas() bool {
	return o.Status == domain.StatusOK || o.Status == domain.StatusNoise
}
