// Package preprocess runs the deterministic front half of parsing: prefilter, alias
// normalization and soft splitting. The live parser and the batch builder share one
// instance so a message is judged and chunked the same way on both paths.
package preprocess

import (
	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/platform/config"
	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
	"github.com/lueurxax/trade-idea-parser/internal/process/normalize"
	"github.com/lueurxax/trade-idea-parser/internal/process/prefilter"
	"github.com/lueurxax/trade-idea-parser/internal/process/splitter"
)

// Prepared is a message ready for the model, or the reason it never will be.
type Prepared struct {
	Message domain.Message
	Verdict prefilter.Verdict
	// Text is the normalized message text the chunks were cut from.
	Text   string
	Chunks []domain.Chunk
}

// Skip reports whether the prefilter rejected the message.
func (p Prepared) Skip() bool {
	return p.Verdict.Skip
}

type Preprocessor struct {
	prefilter  *prefilter.Prefilter
	normalizer *normalize.Normalizer
	splitter   *splitter.Splitter
}

func New(pf *prefilter.Prefilter, n *normalize.Normalizer, s *splitter.Splitter) *Preprocessor {
	return &Preprocessor{prefilter: pf, normalizer: n, splitter: s}
}

// FromConfig wires the three stages from configuration.
func FromConfig(cfg *config.Config) *Preprocessor {
	n := normalize.New(cfg.Aliases(), cfg.TickerContextWindow)

	return New(
		prefilter.New(cfg.BotCommandPrefixes, cfg.KnownBotAuthors),
		n,
		splitter.New(cfg.SplitThreshold, cfg.SplitMinChunk, n),
	)
}

// Prepare prefilters m and, when it passes, normalizes and splits its text.
func (p *Preprocessor) Prepare(m domain.Message) Prepared {
	verdict := p.prefilter.Check(m.Text, prefilter.AuthorMeta{Name: m.Author, IsBot: m.AuthorIsBot})
	observability.PrefilterVerdicts.WithLabelValues(string(verdict.Reason)).Inc()

	out := Prepared{Message: m, Verdict: verdict}
	if verdict.Skip {
		return out
	}

	out.Text = p.NormalizeText(m.Text)
	out.Chunks = p.splitter.Split(m.ID, out.Text)

	return out
}

// NormalizeText applies alias normalization alone, without prefilter or split.
func (p *Preprocessor) NormalizeText(text string) string {
	return p.normalizer.Normalize(text)
}

// Enrich fills tickers the model omitted from company names in the source text.
func (p *Preprocessor) Enrich(ideas []domain.Idea, sourceText string) []domain.Idea {
	return p.normalizer.Enrich(ideas, sourceText)
}
