package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

// BatchOutputLine is one line of a batch output or error file.
type BatchOutputLine struct {
	ID       string             `json:"id"`
	CustomID string             `json:"custom_id"`
	Response *BatchLineResponse `json:"response"`
	Error    *BatchLineError    `json:"error"`
}

// BatchLineResponse is the HTTP response the provider recorded for a request.
type BatchLineResponse struct {
	StatusCode int             `json:"status_code"`
	RequestID  string          `json:"request_id"`
	Body       json.RawMessage `json:"body"`
}

// BatchLineError is a request-level failure recorded in the error file.
type BatchLineError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *BatchLineError) Error() string {
	return fmt.Sprintf("batch request failed: %s: %s", e.Code, e.Message)
}

// DecodeBatchLines splits an NDJSON file into lines. Lines that are not valid
// JSON or carry no custom_id are reported separately and do not stop decoding.
func DecodeBatchLines(data []byte) ([]BatchOutputLine, []error) {
	var (
		lines []BatchOutputLine
		errs  []error
	)

	for i, raw := range bytes.Split(data, []byte("\n")) {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}

		var line BatchOutputLine
		if err := json.Unmarshal(raw, &line); err != nil {
			errs = append(errs, fmt.Errorf("%w: line %d: %w", errors.ErrMalformedLine, i+1, err))
			continue
		}

		if line.CustomID == "" {
			errs = append(errs, fmt.Errorf("%w: line %d: %w: custom_id", errors.ErrMalformedLine, i+1, errors.ErrMissingField))
			continue
		}

		lines = append(lines, line)
	}

	return lines, errs
}

// Completion extracts the model output from a successful line.
func (l BatchOutputLine) Completion() (Response, error) {
	if l.Error != nil {
		return Response{}, l.Error
	}

	if l.Response == nil {
		return Response{}, fmt.Errorf("%w: response", errors.ErrMissingField)
	}

	switch code := l.Response.StatusCode; {
	case code >= http.StatusInternalServerError:
		return Response{}, fmt.Errorf("%w: status %d", errors.ErrProviderUnavailable, code)
	case code != http.StatusOK:
		return Response{}, fmt.Errorf("%w: status %d", errors.ErrInvalidInput, code)
	}

	var chat openai.ChatCompletionResponse
	if err := json.Unmarshal(l.Response.Body, &chat); err != nil {
		return Response{}, fmt.Errorf("%w: %w", errors.ErrMalformedLine, err)
	}

	return responseFrom(chat)
}

func responseFrom(chat openai.ChatCompletionResponse) (Response, error) {
	if len(chat.Choices) == 0 {
		return Response{}, errors.ErrEmptyResponse
	}

	choice := chat.Choices[0]

	return Response{
		Content:          choice.Message.Content,
		Model:            chat.Model,
		PromptTokens:     chat.Usage.PromptTokens,
		CompletionTokens: chat.Usage.CompletionTokens,
		TotalTokens:      chat.Usage.TotalTokens,
		FinishReason:     string(choice.FinishReason),
	}, nil
}
