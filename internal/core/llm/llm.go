// Package llm is the boundary to the language-model provider: structured chat
// completions for triage and parsing, and the Files/Batches endpoints used by the
// asynchronous batch path.
package llm

import (
	"context"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/lueurxax/trade-idea-parser/internal/core/domain"
)

// Task names a kind of model call. It is used in logs and metric labels.
type Task string

// Tasks.
const (
	TaskTriage Task = "triage"
	TaskParse  Task = "parse"
)

// Request is one structured chat completion.
type Request struct {
	Task       Task
	Model      string
	System     string
	User       string
	SchemaName string
	// Schema builds a fresh definition per call; definitions are mutated when marshaled.
	Schema    func() *jsonschema.Definition
	MaxTokens int
}

// Response is the raw model output of a structured completion.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	FinishReason     string
}

// Truncated reports whether the model stopped on the token limit.
func (r Response) Truncated() bool {
	return r.FinishReason == string(finishReasonLength)
}

// Client performs synchronous structured completions.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// BatchClient wraps the provider's file and batch endpoints.
type BatchClient interface {
	UploadBatchFile(ctx context.Context, name string, data []byte) (fileID string, err error)
	CreateBatch(ctx context.Context, inputFileID string, metadata map[string]any) (domain.BatchJob, error)
	RetrieveBatch(ctx context.Context, batchID string) (domain.BatchJob, error)
	CancelBatch(ctx context.Context, batchID string) (domain.BatchJob, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Provider is a client that supports both paths.
type Provider interface {
	Client
	BatchClient
}
