package llm

import (
	"strings"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
)

// DomainIdeas converts a validated parse result. Keys are left for the caller to
// assign once noise ideas are dropped.
func (r ParseResult) DomainIdeas(model, promptVersion string) []domain.Idea {
	ideas := make([]domain.Idea, 0, len(r.Ideas))

	for _, pi := range r.Ideas {
		idea := domain.Idea{
			IdeaText:      strings.TrimSpace(pi.IdeaText),
			IdeaSummary:   strings.TrimSpace(pi.IdeaSummary),
			Symbols:       canonicalSymbols(pi.Symbols),
			Instrument:    pi.Instrument,
			Direction:     pi.Direction,
			Action:        pi.Action,
			TimeHorizon:   pi.TimeHorizon,
			Levels:        pi.Levels,
			Labels:        pi.Labels,
			Confidence:    pi.Confidence,
			Model:         model,
			PromptVersion: promptVersion,
			RawPayload:    MarshalRaw(pi),
			IsNoise:       pi.IsNoise,
		}

		if primary := canonicalSymbol(pi.PrimarySymbol); primary != "" {
			idea.PrimarySymbol = &primary

			if !contains(idea.Symbols, primary) {
				idea.Symbols = append([]string{primary}, idea.Symbols...)
			}
		}

		if idea.Levels == nil {
			idea.Levels = []domain.Level{}
		}

		if idea.Labels == nil {
			idea.Labels = []string{}
		}

		ideas = append(ideas, idea)
	}

	return ideas
}

// MinConfidence is the lowest confidence among non-noise ideas, or 1 when there
// are none.
func (r ParseResult) MinConfidence() float64 {
	lowest := 1.0

	for _, idea := range r.Ideas {
		if !idea.IsNoise && idea.Confidence < lowest {
			lowest = idea.Confidence
		}
	}

	return lowest
}

func canonicalSymbol(s string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(s), "$"))
}

func canonicalSymbols(in []string) []string {
	out := make([]string, 0, len(in))

	for _, s := range in {
		if s = canonicalSymbol(s); s != "" && !contains(out, s) {
			out = append(out, s)
		}
	}

	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}

	return false
}
