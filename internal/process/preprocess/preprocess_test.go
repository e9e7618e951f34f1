package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
	"github.com/lueurxax/trade-idea-parser/internal/platform/config"
	"github.com/lueurxax/trade-idea-parser/internal/process/prefilter"
)

func testPreprocessor() *Preprocessor {
	return FromConfig(&config.Config{
		BotCommandPrefixes:  []string{"!", "/", "?"},
		KnownBotAuthors:     []string{"TickerBot"},
		TickerContextWindow: 4,
		SplitThreshold:      300,
		SplitMinChunk:       40,
	})
}

func TestPrepare_Skips(t *testing.T) {
	p := testPreprocessor()

	tests := []struct {
		name   string
		msg    domain.Message
		reason prefilter.Reason
	}{
		{"bot command", domain.Message{ID: "1", Text: "!price AAPL"}, prefilter.ReasonBotCommand},
		{"url only", domain.Message{ID: "2", Text: "https://example.com/chart.png"}, prefilter.ReasonURLOnly},
		{"bot author", domain.Message{ID: "3", Author: "tickerbot", Text: "AAPL 150.2 +1%"}, prefilter.ReasonBotResponse},
		{"empty", domain.Message{ID: "4", Text: " \u200b "}, prefilter.ReasonEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Prepare(tt.msg)

			assert.True(t, got.Skip())
			assert.Equal(t, tt.reason, got.Verdict.Reason)
			assert.Empty(t, got.Chunks)
		})
	}
}

func TestPrepare_NormalizesAndSplits(t *testing.T) {
	p := testPreprocessor()

	got := p.Prepare(domain.Message{ID: "7", Text: "Long apple into earnings, target 200"})
	require.False(t, got.Skip())
	assert.Equal(t, prefilter.ReasonNone, got.Verdict.Reason)
	assert.Contains(t, got.Text, "$AAPL")
	require.Len(t, got.Chunks, 1)
	assert.Equal(t, domain.ChunkSingle, got.Chunks[0].Type)
	assert.Equal(t, "7", got.Chunks[0].MessageID)

	long := "## $AAPL\n" + strings.Repeat("Buying the dip on apple here. ", 8) +
		"\n\n## $TSLA\n" + strings.Repeat("Shorting the bounce, stop above 260. ", 8)

	got = p.Prepare(domain.Message{ID: "8", Text: long})
	require.GreaterOrEqual(t, len(got.Chunks), 2)

	for i, c := range got.Chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestPrepare_SameVerdictForSameText(t *testing.T) {
	p := testPreprocessor()

	texts := []string{"/help", "lol", "https://x.com/a", "", "$NVDA calls", "?what"}
	for _, text := range texts {
		a := p.Prepare(domain.Message{ID: "a", Text: text})
		b := p.Prepare(domain.Message{ID: "b", Text: text})

		assert.Equal(t, a.Verdict, b.Verdict, text)
		assert.Equal(t, len(a.Chunks), len(b.Chunks), text)
	}
}
