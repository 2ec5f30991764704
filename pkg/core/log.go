package core

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies system log entries.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// LogEntry is an append-only record of a system event. Encrypted is an
// advisory marker carried through to consumers; the runtime does not
// enforce it.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Encrypted bool      `json:"encrypted"`
}

// NewLogEntry creates a log entry with a generated ID and current timestamp.
func NewLogEntry(role Role, severity Severity, message string) *LogEntry {
	return &LogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Role:      role,
		Message:   message,
		Severity:  severity,
	}
}
