package batch

import "time"

// Log field constants
const (
	LogFieldBatchID       = "batch_id"
	LogFieldStatus        = "status"
	LogFieldMsgID         = "msg_id"
	LogFieldLines         = "lines"
	LogFieldMessages      = "messages"
	LogFieldCorrelationID = "correlation_id"
	LogFieldChunk         = "chunk"
	LogFieldModel         = "model"
	LogFieldRaw           = "raw"
)

// Line outcomes, used as metric labels.
const (
	lineOutcomeParsed    = "parsed"
	lineOutcomeInvalid   = "invalid"
	lineOutcomeFailed    = "failed"
	lineOutcomeMalformed = "malformed"
)

const (
	jobFileName           = "trade-ideas-batch.jsonl"
	metadataPromptVersion = "prompt_version"
	metadataRunID         = "run_id"

	defaultPollInterval = 30 * time.Second
	defaultBuildLimit   = 5000
	maxLoggedRawRunes   = 500
)
