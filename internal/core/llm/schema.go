package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

// Schema names sent with the json_schema response format.
const (
	TriageSchemaName = "chunk_triage"
	ParseSchemaName  = "trade_ideas"
)

// TriageVerdict is the cheap model's decision on whether a chunk deserves a parse.
type TriageVerdict struct {
	IsNoise              bool     `json:"is_noise"`
	HasActionableContent bool     `json:"has_actionable_content"`
	TickersPresent       []string `json:"tickers_present"`
	SkipReason           string   `json:"skip_reason"`
}

// ParsedIdea is one idea as returned by the parse model.
type ParsedIdea struct {
	IdeaText      string         `json:"idea_text"`
	IdeaSummary   string         `json:"idea_summary"`
	PrimarySymbol string         `json:"primary_symbol"`
	Symbols       []string       `json:"symbols"`
	Instrument    string         `json:"instrument"`
	Direction     string         `json:"direction"`
	Action        string         `json:"action"`
	TimeHorizon   string         `json:"time_horizon"`
	Levels        []domain.Level `json:"levels"`
	Labels        []string       `json:"labels"`
	Confidence    float64        `json:"confidence"`
	IsNoise       bool           `json:"is_noise"`
}

// ParseResult is the full parse model output for one chunk.
type ParseResult struct {
	Ideas []ParsedIdea `json:"ideas"`
}

// TriageSchema returns the strict schema for triage responses.
func TriageSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"is_noise":               {Type: jsonschema.Boolean, Description: "true when the text carries no market view at all"},
			"has_actionable_content": {Type: jsonschema.Boolean, Description: "true when the text states a position, trade or level"},
			"tickers_present": {
				Type:  jsonschema.Array,
				Items: &jsonschema.Definition{Type: jsonschema.String},
			},
			"skip_reason": {Type: jsonschema.String, Description: "short reason when is_noise is true, empty otherwise"},
		},
		Required:             []string{"is_noise", "has_actionable_content", "tickers_present", "skip_reason"},
		AdditionalProperties: false,
	}
}

// ParseSchema returns the strict schema for parse responses.
func ParseSchema() *jsonschema.Definition {
	level := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"kind":  {Type: jsonschema.String, Enum: domain.LevelKinds},
			"value": {Type: jsonschema.Number},
			"label": {Type: jsonschema.String},
		},
		Required:             []string{"kind", "value", "label"},
		AdditionalProperties: false,
	}

	idea := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"idea_text":      {Type: jsonschema.String, Description: "verbatim span of the message carrying the idea"},
			"idea_summary":   {Type: jsonschema.String},
			"primary_symbol": {Type: jsonschema.String, Description: "main ticker without $, empty for sector or macro commentary"},
			"symbols":        {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
			"instrument":     {Type: jsonschema.String, Enum: domain.Instruments},
			"direction":      {Type: jsonschema.String, Enum: domain.Directions},
			"action":         {Type: jsonschema.String, Enum: domain.Actions},
			"time_horizon":   {Type: jsonschema.String, Enum: domain.TimeHorizons},
			"levels":         {Type: jsonschema.Array, Items: &level},
			"labels":         {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
			"confidence":     {Type: jsonschema.Number, Description: "0 to 1"},
			"is_noise":       {Type: jsonschema.Boolean},
		},
		Required: []string{
			"idea_text", "idea_summary", "primary_symbol", "symbols", "instrument", "direction",
			"action", "time_horizon", "levels", "labels", "confidence", "is_noise",
		},
		AdditionalProperties: false,
	}

	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"ideas": {Type: jsonschema.Array, Items: &idea},
		},
		Required:             []string{"ideas"},
		AdditionalProperties: false,
	}
}

// DecodeTriage validates content against the triage schema and decodes it.
func DecodeTriage(content string) (TriageVerdict, error) {
	var v TriageVerdict

	if err := decodeStrict(TriageSchema(), content, &v); err != nil {
		return TriageVerdict{}, err
	}

	return v, nil
}

// DecodeParse validates content against the parse schema, decodes it and checks
// the fields the schema cannot express.
func DecodeParse(content string) (ParseResult, error) {
	var res ParseResult

	if err := decodeStrict(ParseSchema(), content, &res); err != nil {
		return ParseResult{}, err
	}

	for i, idea := range res.Ideas {
		if err := validateIdea(idea); err != nil {
			return ParseResult{}, fmt.Errorf("%w: idea %d: %w", errors.ErrSchemaValidation, i, err)
		}
	}

	return res, nil
}

func decodeStrict(schema *jsonschema.Definition, content string, v any) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.ErrEmptyResponse
	}

	if err := schema.Unmarshal(content, v); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrSchemaValidation, err)
	}

	return nil
}

func validateIdea(idea ParsedIdea) error {
	if math.IsNaN(idea.Confidence) || idea.Confidence < 0 || idea.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", idea.Confidence)
	}

	if !idea.IsNoise && strings.TrimSpace(idea.IdeaText) == "" {
		return fmt.Errorf("%w: idea_text", errors.ErrMissingField)
	}

	for _, l := range idea.Levels {
		if math.IsNaN(l.Value) || math.IsInf(l.Value, 0) {
			return fmt.Errorf("level %q has invalid value", l.Kind)
		}
	}

	return nil
}

// MarshalRaw re-encodes a parsed idea for the raw_payload column.
func MarshalRaw(idea ParsedIdea) json.RawMessage {
	b, err := json.Marshal(idea)
	if err != nil {
		return nil
	}

	return b
}
