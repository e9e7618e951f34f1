package ingest

// Paths label the pipeline that produced an outcome.
const (
	PathLive  = "live"
	PathBatch = "batch"
)

// Log field constants
const (
	LogFieldMsgID    = "msg_id"
	LogFieldStatus   = "status"
	LogFieldPath     = "path"
	LogFieldDeleted  = "deleted"
	LogFieldInserted = "inserted"
)

const (
	opDeleted  = "deleted"
	opInserted = "inserted"

	reasonSeparator = "; "
)
