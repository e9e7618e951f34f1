// Package domain holds the core records shared across the parsing pipeline:
// raw chat messages, soft chunks, extracted trading ideas and provider batch jobs.
package domain

import (
	"encoding/json"
	"time"
)

// ParseStatus is the persisted per-message parse outcome.
type ParseStatus string

// Parse status values. These are the only values ever written to messages.parse_status.
const (
	StatusPending ParseStatus = "pending"
	StatusOK      ParseStatus = "ok"
	StatusNoise   ParseStatus = "noise"
	StatusSkipped ParseStatus = "skipped"
	StatusError   ParseStatus = "error"
)

// Valid reports whether s is one of the five persisted status values.
func (s ParseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusOK, StatusNoise, StatusSkipped, StatusError:
		return true
	default:
		return false
	}
}

// Message is a raw chat message as written by the logging collaborator.
// ID is an opaque string and must never be converted to a number.
type Message struct {
	ID            string
	Author        string
	AuthorIsBot   bool
	Channel       string
	Text          string
	Timestamp     time.Time
	ParseStatus   ParseStatus
	ErrorReason   *string
	PromptVersion string
}

// Chunk is a deterministic sub-segment of a message, the unit of model invocation.
type Chunk struct {
	MessageID       string
	Index           int
	Text            string
	Type            ChunkType
	StartOffset     int
	EndOffset       int
	DetectedTickers []string
}

// ChunkType describes which boundary produced a chunk.
type ChunkType string

// Chunk types.
const (
	ChunkSingle      ChunkType = "single"
	ChunkHeading     ChunkType = "heading"
	ChunkSection     ChunkType = "section"
	ChunkTickerBlock ChunkType = "ticker_block"
)

// Level is a price level attached to an idea, kept in model order.
type Level struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// Idea is one persisted trading idea. (MessageID, SoftChunkIndex, LocalIdeaIndex)
// is globally unique.
type Idea struct {
	MessageID      string
	SoftChunkIndex int
	LocalIdeaIndex int
	IdeaText       string
	IdeaSummary    string
	PrimarySymbol  *string
	Symbols        []string
	Instrument     string
	Direction      string
	Action         string
	TimeHorizon    string
	Levels         []Level
	Labels         []string
	Confidence     float64
	Model          string
	PromptVersion  string
	RawPayload     json.RawMessage
	IsNoise        bool
	CreatedAt      time.Time
}

// IdeaKey is the idempotency key of an idea.
type IdeaKey struct {
	MessageID      string
	SoftChunkIndex int
	LocalIdeaIndex int
}

// Key returns the triple key of the idea.
func (i Idea) Key() IdeaKey {
	return IdeaKey{MessageID: i.MessageID, SoftChunkIndex: i.SoftChunkIndex, LocalIdeaIndex: i.LocalIdeaIndex}
}

// Instrument values.
const (
	InstrumentEquity = "equity"
	InstrumentOption = "option"
	InstrumentFuture = "future"
	InstrumentCrypto = "crypto"
	InstrumentForex  = "forex"
	InstrumentETF    = "etf"
	InstrumentIndex  = "index"
	InstrumentOther  = "other"
)

// Direction values.
const (
	DirectionLong    = "long"
	DirectionShort   = "short"
	DirectionNeutral = "neutral"
)

// Action values.
const (
	ActionBuy   = "buy"
	ActionSell  = "sell"
	ActionHold  = "hold"
	ActionWatch = "watch"
	ActionTrim  = "trim"
	ActionAdd   = "add"
	ActionClose = "close"
	ActionNone  = "none"
)

// Time horizon values.
const (
	HorizonIntraday = "intraday"
	HorizonSwing    = "swing"
	HorizonPosition = "position"
	HorizonLongTerm = "long_term"
	HorizonUnknown  = "unknown"
)

// Level kinds.
const (
	LevelEntry      = "entry"
	LevelTarget     = "target"
	LevelStop       = "stop"
	LevelSupport    = "support"
	LevelResistance = "resistance"
	LevelOther      = "other"
)

// Enum sets used for schema generation and validation.
var (
	Instruments  = []string{InstrumentEquity, InstrumentOption, InstrumentFuture, InstrumentCrypto, InstrumentForex, InstrumentETF, InstrumentIndex, InstrumentOther}
	Directions   = []string{DirectionLong, DirectionShort, DirectionNeutral}
	Actions      = []string{ActionBuy, ActionSell, ActionHold, ActionWatch, ActionTrim, ActionAdd, ActionClose, ActionNone}
	TimeHorizons = []string{HorizonIntraday, HorizonSwing, HorizonPosition, HorizonLongTerm, HorizonUnknown}
	LevelKinds   = []string{LevelEntry, LevelTarget, LevelStop, LevelSupport, LevelResistance, LevelOther}
)

// IdeaFilter selects ideas for downstream readers. Results are newest-first.
type IdeaFilter struct {
	Symbol string
	Since  time.Time
	Until  time.Time
	Limit  int
}
