package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

const validIdeaJSON = `{"ideas":[{
	"idea_text":"$AAPL long above 150, stop 145",
	"idea_summary":"Long Apple above 150",
	"primary_symbol":"AAPL",
	"symbols":["AAPL"],
	"instrument":"equity",
	"direction":"long",
	"action":"buy",
	"time_horizon":"swing",
	"levels":[{"kind":"entry","value":150,"label":"above 150"},{"kind":"stop","value":145,"label":"stop 145"}],
	"labels":[],
	"confidence":0.92,
	"is_noise":false
}]}`

func TestDecodeParse_Valid(t *testing.T) {
	res, err := DecodeParse(validIdeaJSON)
	require.NoError(t, err)
	require.Len(t, res.Ideas, 1)

	idea := res.Ideas[0]
	assert.Equal(t, "AAPL", idea.PrimarySymbol)
	assert.Equal(t, "long", idea.Direction)
	require.Len(t, idea.Levels, 2)
	assert.Equal(t, "entry", idea.Levels[0].Kind)
	assert.InDelta(t, 145.0, idea.Levels[1].Value, 1e-9)
}

func TestDecodeParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{"empty", "  ", errors.ErrEmptyResponse},
		{"not json", "Sure! Here are the ideas", errors.ErrSchemaValidation},
		{"missing ideas", `{}`, errors.ErrSchemaValidation},
		{"bad enum", strings.Replace(validIdeaJSON, `"direction":"long"`, `"direction":"up"`, 1), errors.ErrSchemaValidation},
		{"missing field", strings.Replace(validIdeaJSON, `"action":"buy",`, ``, 1), errors.ErrSchemaValidation},
		{"confidence out of range", strings.Replace(validIdeaJSON, `"confidence":0.92`, `"confidence":1.5`, 1), errors.ErrSchemaValidation},
		{"empty idea text", strings.Replace(validIdeaJSON, `"idea_text":"$AAPL long above 150, stop 145"`, `"idea_text":" "`, 1), errors.ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeParse(tt.content)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestDecodeParse_NoIdeas(t *testing.T) {
	res, err := DecodeParse(`{"ideas":[]}`)

	require.NoError(t, err)
	assert.Empty(t, res.Ideas)
}

func TestDecodeTriage(t *testing.T) {
	v, err := DecodeTriage(`{"is_noise":true,"has_actionable_content":false,"tickers_present":[],"skip_reason":"banter"}`)
	require.NoError(t, err)
	assert.True(t, v.IsNoise)
	assert.Equal(t, "banter", v.SkipReason)

	_, err = DecodeTriage(`{"is_noise":"yes"}`)
	assert.True(t, errors.Is(err, errors.ErrSchemaValidation))
}

func TestParseSchema_StrictShape(t *testing.T) {
	b, err := json.Marshal(ParseSchema())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))

	assert.Equal(t, false, doc["additionalProperties"])

	items := doc["properties"].(map[string]any)["ideas"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, false, items["additionalProperties"])
	assert.Len(t, items["required"], len(items["properties"].(map[string]any)), "strict mode requires every property")
}
