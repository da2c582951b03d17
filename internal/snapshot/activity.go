package snapshot

import (
	"context"
	"time"
)

// ActivityRecord is the audit entry written once per ingestion run.
type ActivityRecord struct {
	RunID        string    `json:"runId"`
	Source       string    `json:"source"`
	Network      string    `json:"network"`
	Category     string    `json:"category"`
	ItemsFound   int       `json:"itemsFound"`
	ItemsWritten int       `json:"itemsWritten"`
	DurationMs   int64     `json:"durationMs"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// ActivitySink receives one record per ingestion run.
type ActivitySink interface {
	Record(ctx context.Context, rec ActivityRecord) error
}
