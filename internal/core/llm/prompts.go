package llm

import (
	"fmt"
	"strings"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
)

const triageSystemPrompt = `You screen chat messages from a trading community.
Decide whether the text contains any market view: a position, a trade, a price level, a thesis on a symbol, sector or the macro picture.
Banter, greetings, memes, questions without a view and bot output are noise.
List every ticker you see without the $ sign.`

const parseSystemPrompt = `You extract trading ideas from chat messages. Prompt version %s.
Return every distinct idea in the text, in the order they appear. An idea is a view on one instrument or one theme.
Rules:
- idea_text is the exact span of the message that carries the idea.
- idea_summary is one neutral sentence.
- primary_symbol is the main ticker without $; use an empty string only for sector or macro commentary.
- symbols lists every ticker the idea mentions, without $.
- levels keeps the prices in the order the author wrote them.
- confidence is your certainty that the idea and its fields are read correctly, from 0 to 1.
- set is_noise for fragments that carry no view; they are discarded.
Use only the enumerated values for instrument, direction, action, time_horizon and level kind.`

// TriageRequest builds the cheap triage call for a chunk.
func TriageRequest(model string, chunk domain.Chunk) Request {
	return Request{
		Task:       TaskTriage,
		Model:      model,
		System:     triageSystemPrompt,
		User:       chunk.Text,
		SchemaName: TriageSchemaName,
		Schema:     TriageSchema,
		MaxTokens:  256,
	}
}

// ParseRequest builds the structured parse call for a chunk.
func ParseRequest(model, promptVersion string, maxTokens int, chunk domain.Chunk) Request {
	return Request{
		Task:       TaskParse,
		Model:      model,
		System:     fmt.Sprintf(parseSystemPrompt, promptVersion),
		User:       parseUserContent(chunk),
		SchemaName: ParseSchemaName,
		Schema:     ParseSchema,
		MaxTokens:  maxTokens,
	}
}

func parseUserContent(chunk domain.Chunk) string {
	var sb strings.Builder

	if len(chunk.DetectedTickers) > 0 {
		sb.WriteString("Tickers detected: ")
		sb.WriteString(strings.Join(chunk.DetectedTickers, ", "))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Message:\n")
	sb.WriteString(chunk.Text)

	return sb.String()
}
