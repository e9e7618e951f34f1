package llm

import (
	"github.com/sashabaranov/go-openai"
)

// ChatRequest converts a Request into the provider payload. The live client and
// the batch job file both use it, so a chunk is asked the same question on
// either path.
func ChatRequest(req Request) openai.ChatCompletionRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	chat := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxCompletionTokens: maxTokens,
	}

	if req.Schema != nil {
		chat.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema(),
				Strict: true,
			},
		}
	}

	return chat
}

// BatchLine wraps a chat request as one job-file line.
func BatchLine(customID string, req Request) openai.BatchChatCompletionRequest {
	return openai.BatchChatCompletionRequest{
		CustomID: customID,
		Body:     ChatRequest(req),
		Method:   batchMethodPOST,
		URL:      openai.BatchEndpointChatCompletions,
	}
}
