package domain

import "time"

// BatchStatus is the provider-reported state of an asynchronous batch job.
type BatchStatus string

// Batch statuses as reported by the provider.
const (
	BatchValidating BatchStatus = "validating"
	BatchQueued     BatchStatus = "queued"
	BatchInProgress BatchStatus = "in_progress"
	BatchFinalizing BatchStatus = "finalizing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchCancelling BatchStatus = "cancelling"
	BatchCancelled  BatchStatus = "cancelled"
	BatchExpired    BatchStatus = "expired"
)

// Terminal reports whether no further status change will happen.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchCompleted, BatchFailed, BatchCancelled, BatchExpired:
		return true
	default:
		return false
	}
}

// RequestCounts mirrors the provider's per-job request counters.
type RequestCounts struct {
	Total     int
	Completed int
	Failed    int
}

// BatchJob is the local handle for a provider batch job.
type BatchJob struct {
	ID            string
	Status        BatchStatus
	InputFileID   string
	OutputFileID  string
	ErrorFileID   string
	RequestCounts RequestCounts
	MessageIDs    []string
	PromptVersion string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	IngestedAt    *time.Time
}
