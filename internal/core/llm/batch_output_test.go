package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

func TestDecodeBatchLines(t *testing.T) {
	data := []byte(`{"id":"r1","custom_id":"msg-1-chunk-0","response":{"status_code":200,"body":{"model":"gpt-4o","choices":[{"message":{"role":"assistant","content":"{\"ideas\":[]}"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}},"error":null}
not json

{"id":"r2","response":null}
{"id":"r3","custom_id":"msg-2-chunk-0","response":null,"error":{"code":"server_error","message":"boom"}}
{"id":"r4","custom_id":"msg-3-chunk-0","response":{"status_code":500,"body":{}}}
`)

	lines, errs := DecodeBatchLines(data)

	require.Len(t, lines, 3)
	require.Len(t, errs, 2)
	assert.True(t, errors.Is(errs[0], errors.ErrMalformedLine))
	assert.True(t, errors.Is(errs[1], errors.ErrMissingField))

	resp, err := lines[0].Completion()
	require.NoError(t, err)
	assert.Equal(t, `{"ideas":[]}`, resp.Content)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.Equal(t, 12, resp.TotalTokens)

	_, err = lines[1].Completion()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = lines[2].Completion()
	assert.True(t, errors.Is(err, errors.ErrProviderUnavailable))
}
