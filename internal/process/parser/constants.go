package parser

// Escalation triggers, used as metric labels.
const (
	triggerValidation    = "validation"
	triggerLowConfidence = "low_confidence"
	triggerLongContext   = "long_context"
)

// Chunk outcomes, used as metric labels.
const (
	chunkOutcomeNoise  = "noise"
	chunkOutcomeParsed = "parsed"
	chunkOutcomeFailed = "failed"
)

// Log field constants
const (
	LogFieldMsgID         = "msg_id"
	LogFieldChunk         = "chunk"
	LogFieldModel         = "model"
	LogFieldTrigger       = "trigger"
	LogFieldStatus        = "status"
	LogFieldCorrelationID = "correlation_id"
	LogFieldReason        = "reason"
	LogFieldRaw           = "raw"
)

const (
	defaultChunkConcurrency = 4
	maxLoggedRawRunes       = 500
)
