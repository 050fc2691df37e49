package models

import "time"

// Severity of a journal entry.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// LogEntry is one persisted journal row.
type LogEntry struct {
	ID        int64
	CreatedAt time.Time
	Message   string
	URL       string
	Severity  Severity
}
