package llm

import "github.com/sashabaranov/go-openai"

// Error message templates
const (
	errRateLimiter          = "rate limiter error: %w"
	errOpenAIChatCompletion = "openai chat completion error: %w"
	errOpenAIFiles          = "openai files error: %w"
	errOpenAIBatch          = "openai batch error: %w"
)

// Log key strings
const (
	logKeyTask         = "task"
	logKeyModel        = "model"
	logKeyMaxTokens    = "max_tokens"
	logKeyOutputTokens = "output_tokens"
	logKeyBatchID      = "batch_id"
	logKeyFileID       = "file_id"
)

// Log message strings
const (
	logMsgTruncated      = "LLM output truncated due to max_tokens limit"
	logMsgCircuitOpened  = "LLM circuit breaker opened"
	logMsgBudgetExceeded = "daily token budget exhausted, refusing call"
)

// Metric label values
const (
	statusOK    = "ok"
	statusError = "error"
)

const (
	rateLimiterBurst     = 5
	defaultMaxTokens     = 2048
	batchFilePurpose     = openai.PurposeBatch
	batchMethodPOST      = "POST"
	defaultBatchWindow   = "24h"
	finishReasonLength   = openai.FinishReasonLength
	defaultCircuitFailed = 5
)
