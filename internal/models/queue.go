package models

import "time"

// Operation is the work a queue entry asks for.
type Operation string

const (
	OperationImport Operation = "import"
	OperationExport Operation = "export"
)

// QueueState is the processing state of a queue entry.
type QueueState string

const (
	QueueStatePending    QueueState = "pending"
	QueueStateProcessing QueueState = "processing"
	QueueStateDone       QueueState = "done"
	QueueStateFailed     QueueState = "failed"
)

// QueueOptions is the configuration carried by a queue entry. It is stored
// encrypted because it may hold credentials.
type QueueOptions struct {
	Import ImportOptions `json:"import"`

	// Export fields: the file to push and the service to push it to.
	FileID  string `json:"file_id,omitempty"`
	Service string `json:"service,omitempty"`
}

// QueueEntry is a deferred unit of work.
type QueueEntry struct {
	ID        int64
	URL       string
	Operation Operation
	Options   QueueOptions
	State     QueueState
	Attempts  int
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
