// Package parser is the live path: it takes one message at a time through
// preprocessing, triage and structured parsing, and hands the aggregated result to
// ingest.
package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
	"github.com/lueurxax/trade-idea-parser/internal/core/llm"
	"github.com/lueurxax/trade-idea-parser/internal/platform/cache"
	"github.com/lueurxax/trade-idea-parser/internal/platform/config"
	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
	"github.com/lueurxax/trade-idea-parser/internal/platform/retry"
	"github.com/lueurxax/trade-idea-parser/internal/process/ingest"
	"github.com/lueurxax/trade-idea-parser/internal/process/preprocess"
)

// Options selects models and escalation thresholds.
type Options struct {
	TriageModel         string
	PrimaryModel        string
	EscalationModel     string
	ConfidenceThreshold float64
	LongContextChars    int
	MaxTokens           int
	PromptVersion       string
	ChunkConcurrency    int
	TriageCacheTTL      time.Duration
	TriageCacheSize     int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TriageModel:         cfg.LLMTriageModel,
		PrimaryModel:        cfg.LLMPrimaryModel,
		EscalationModel:     cfg.LLMEscalationModel,
		ConfidenceThreshold: cfg.LLMConfidenceThreshold,
		LongContextChars:    cfg.LLMLongContextChars,
		MaxTokens:           cfg.LLMMaxTokens,
		PromptVersion:       cfg.PromptVersion,
		ChunkConcurrency:    cfg.ParserChunkConcurrency,
		TriageCacheTTL:      cfg.TriageCacheTTL,
		TriageCacheSize:     cfg.TriageCacheSize,
	}
}

type Parser struct {
	client  llm.Client
	prep    *preprocess.Preprocessor
	opts    Options
	policy  retry.Policy
	triaged *cache.TTL[string, llm.TriageVerdict]
	logger  *zerolog.Logger
}

// New creates a Parser. clock drives triage cache expiry; nil means time.Now.
func New(client llm.Client, prep *preprocess.Preprocessor, opts Options, clock cache.Clock, logger *zerolog.Logger) *Parser {
	if opts.ChunkConcurrency <= 0 {
		opts.ChunkConcurrency = defaultChunkConcurrency
	}

	if opts.EscalationModel == "" {
		opts.EscalationModel = opts.PrimaryModel
	}

	return &Parser{
		client:  client,
		prep:    prep,
		opts:    opts,
		policy:  retry.DefaultPolicy().WithLogger(logger),
		triaged: cache.NewTTL[string, llm.TriageVerdict](opts.TriageCacheTTL, opts.TriageCacheSize, clock),
		logger:  logger,
	}
}

// WithPolicy replaces the retry policy used around model calls.
func (p *Parser) WithPolicy(policy retry.Policy) *Parser {
	p.policy = policy
	return p
}

// ParseMessage produces the outcome of one parse attempt. Chunks are parsed
// concurrently. Chunks whose output stays invalid become ParseFailures inside the
// outcome; any other error aborts the attempt and is returned so the message stays
// pending.
func (p *Parser) ParseMessage(ctx context.Context, m domain.Message) (ingest.Outcome, error) {
	prepared := p.prep.Prepare(m)
	if prepared.Skip() {
		o := ingest.Skipped(m.ID, string(prepared.Verdict.Reason))
		o.PromptVersion = p.opts.PromptVersion

		return o, nil
	}

	results := make([]ingest.ChunkOutcome, len(prepared.Chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.ChunkConcurrency)

	for i, chunk := range prepared.Chunks {
		i, chunk := i, chunk

		g.Go(func() error {
			res, err := p.parseChunk(gctx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunk.Index, err)
			}

			results[i] = res

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return ingest.Outcome{}, fmt.Errorf("parse message %s: %w", m.ID, err)
	}

	o := ingest.Aggregate(m.ID, results)
	o.Ideas = p.prep.Enrich(o.Ideas, m.Text)
	o.PromptVersion = p.opts.PromptVersion

	return o, nil
}

func (p *Parser) parseChunk(ctx context.Context, chunk domain.Chunk) (ingest.ChunkOutcome, error) {
	out := ingest.ChunkOutcome{Index: chunk.Index}

	verdict, err := p.triage(ctx, chunk)
	if err != nil {
		return out, err
	}

	if verdict.IsNoise {
		out.Noise = true

		observability.ChunksProcessed.WithLabelValues(ingest.PathLive, chunkOutcomeNoise).Inc()

		return out, nil
	}

	ideas, err := p.parse(ctx, chunk)
	if err != nil {
		var failure *errors.ParseFailure
		if !errors.As(err, &failure) {
			return out, err
		}

		observability.ParseFailures.Inc()
		observability.ChunksProcessed.WithLabelValues(ingest.PathLive, chunkOutcomeFailed).Inc()

		p.logger.Warn().Err(err).
			Str(LogFieldMsgID, chunk.MessageID).
			Int(LogFieldChunk, chunk.Index).
			Str(LogFieldModel, failure.Model).
			Str(LogFieldRaw, failure.RawExcerpt(maxLoggedRawRunes)).
			Msg("chunk parse failed")

		out.Err = failure

		return out, nil
	}

	observability.ChunksProcessed.WithLabelValues(ingest.PathLive, chunkOutcomeParsed).Inc()

	out.Ideas = ideas

	return out, nil
}

// triage asks the cheap model whether the chunk is worth a parse. A triage answer
// that fails validation is treated as "not noise" so the chunk still gets parsed.
func (p *Parser) triage(ctx context.Context, chunk domain.Chunk) (llm.TriageVerdict, error) {
	key := triageKey(chunk.Text)

	if v, ok := p.triaged.Get(key); ok {
		return v, nil
	}

	resp, err := p.complete(ctx, llm.TriageRequest(p.opts.TriageModel, chunk))
	if err != nil && !isValidationError(err) {
		return llm.TriageVerdict{}, err
	}

	verdict := llm.TriageVerdict{}
	if err == nil {
		verdict, err = llm.DecodeTriage(resp.Content)
	}

	if err != nil {
		p.logger.Warn().Err(err).
			Str(LogFieldMsgID, chunk.MessageID).
			Int(LogFieldChunk, chunk.Index).
			Msg("triage output invalid, parsing anyway")

		return llm.TriageVerdict{}, nil
	}

	p.triaged.Set(key, verdict)

	return verdict, nil
}

func (p *Parser) complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return retry.Do(ctx, p.policy, func(ctx context.Context) (llm.Response, error) {
		return p.client.Complete(ctx, req)
	})
}

func triageKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
