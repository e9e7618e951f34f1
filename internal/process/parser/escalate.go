package parser

import (
	"context"
	"unicode/utf8"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
	"github.com/lueurxax/trade-idea-parser/internal/core/llm"
	"github.com/lueurxax/trade-idea-parser/internal/platform/observability"
)

type attempt struct {
	model  string
	raw    string
	result llm.ParseResult
}

// parse runs the structured parse for one chunk and escalates at most once:
// directly for long input, after a failed same-model retry, or when the primary
// model is unsure of any idea.
func (p *Parser) parse(ctx context.Context, chunk domain.Chunk) ([]domain.Idea, error) {
	if p.opts.LongContextChars > 0 && utf8.RuneCountInString(chunk.Text) > p.opts.LongContextChars {
		p.recordEscalation(chunk, triggerLongContext)

		a, err := p.attempt(ctx, p.opts.EscalationModel, chunk)
		if err != nil {
			return nil, p.failure(chunk, a, err)
		}

		return a.result.DomainIdeas(a.model, p.opts.PromptVersion), nil
	}

	primary, err := p.attempt(ctx, p.opts.PrimaryModel, chunk)
	if err != nil && isValidationError(err) {
		primary, err = p.attempt(ctx, p.opts.PrimaryModel, chunk)
	}

	if err != nil {
		if !isValidationError(err) {
			return nil, err
		}

		p.recordEscalation(chunk, triggerValidation)

		escalated, escErr := p.attempt(ctx, p.opts.EscalationModel, chunk)
		if escErr != nil {
			return nil, p.failure(chunk, escalated, escErr)
		}

		return escalated.result.DomainIdeas(escalated.model, p.opts.PromptVersion), nil
	}

	if primary.result.MinConfidence() < p.opts.ConfidenceThreshold {
		p.recordEscalation(chunk, triggerLowConfidence)

		escalated, escErr := p.attempt(ctx, p.opts.EscalationModel, chunk)
		if escErr == nil {
			return escalated.result.DomainIdeas(escalated.model, p.opts.PromptVersion), nil
		}

		if !isValidationError(escErr) {
			return nil, escErr
		}

		p.logger.Warn().Err(escErr).
			Str(LogFieldMsgID, chunk.MessageID).
			Int(LogFieldChunk, chunk.Index).
			Msg("escalation output invalid, keeping primary result")
	}

	return primary.result.DomainIdeas(primary.model, p.opts.PromptVersion), nil
}

// attempt makes one parse call. Transport faults are retried by the policy; the
// returned error is either a validation error or a fault the policy gave up on.
func (p *Parser) attempt(ctx context.Context, model string, chunk domain.Chunk) (attempt, error) {
	a := attempt{model: model}

	resp, err := p.complete(ctx, llm.ParseRequest(model, p.opts.PromptVersion, p.opts.MaxTokens, chunk))
	if err != nil {
		return a, err
	}

	if resp.Model != "" {
		a.model = resp.Model
	}

	a.raw = resp.Content

	a.result, err = llm.DecodeParse(resp.Content)
	if err != nil {
		return a, err
	}

	return a, nil
}

// failure wraps a validation error into a ParseFailure and passes anything else
// through untouched.
func (p *Parser) failure(chunk domain.Chunk, a attempt, err error) error {
	if !isValidationError(err) {
		return err
	}

	return &errors.ParseFailure{
		MessageID:  chunk.MessageID,
		ChunkIndex: chunk.Index,
		Model:      a.model,
		Raw:        a.raw,
		Cause:      err,
	}
}

func (p *Parser) recordEscalation(chunk domain.Chunk, trigger string) {
	observability.Escalations.WithLabelValues(trigger).Inc()

	p.logger.Debug().
		Str(LogFieldMsgID, chunk.MessageID).
		Int(LogFieldChunk, chunk.Index).
		Str(LogFieldTrigger, trigger).
		Str(LogFieldModel, p.opts.EscalationModel).
		Msg("escalating chunk")
}

func isValidationError(err error) bool {
	return errors.Is(err, errors.ErrSchemaValidation) ||
		errors.Is(err, errors.ErrEmptyResponse) ||
		errors.Is(err, errors.ErrMissingField)
}
