package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
)

func TestParseResult_DomainIdeas(t *testing.T) {
	res := ParseResult{Ideas: []ParsedIdea{
		{
			IdeaText:      " Bought $AAPL at $150 ",
			PrimarySymbol: "$aapl",
			Symbols:       []string{"aapl", "AAPL", "$msft"},
			Instrument:    domain.InstrumentEquity,
			Direction:     domain.DirectionLong,
			Action:        domain.ActionBuy,
			TimeHorizon:   domain.HorizonUnknown,
			Confidence:    0.92,
		},
		{IdeaText: "sector rotation", PrimarySymbol: "", Confidence: 0.5},
	}}

	ideas := res.DomainIdeas("gpt-4o", "v3")
	require.Len(t, ideas, 2)

	first := ideas[0]
	require.NotNil(t, first.PrimarySymbol)
	assert.Equal(t, "AAPL", *first.PrimarySymbol)
	assert.Equal(t, []string{"AAPL", "MSFT"}, first.Symbols)
	assert.Equal(t, "Bought $AAPL at $150", first.IdeaText)
	assert.Equal(t, "gpt-4o", first.Model)
	assert.Equal(t, "v3", first.PromptVersion)
	assert.NotEmpty(t, first.RawPayload)
	assert.NotNil(t, first.Levels)
	assert.NotNil(t, first.Labels)

	assert.Nil(t, ideas[1].PrimarySymbol)
	assert.Empty(t, ideas[1].Symbols)
}

func TestParseResult_PrimaryAddedToSymbols(t *testing.T) {
	ideas := ParseResult{Ideas: []ParsedIdea{{IdeaText: "x", PrimarySymbol: "NVDA", Symbols: []string{"AMD"}}}}.DomainIdeas("m", "v")
	assert.Equal(t, []string{"NVDA", "AMD"}, ideas[0].Symbols)
}

func TestParseResult_MinConfidence(t *testing.T) {
	assert.InDelta(t, 1.0, ParseResult{}.MinConfidence(), 1e-9)

	res := ParseResult{Ideas: []ParsedIdea{
		{Confidence: 0.9},
		{Confidence: 0.1, IsNoise: true},
		{Confidence: 0.7},
	}}
	assert.InDelta(t, 0.7, res.MinConfidence(), 1e-9)
}
