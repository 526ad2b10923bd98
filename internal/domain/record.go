package domain

import "time"

const (
	RecordStatusSucceeded = "succeeded"
	RecordStatusFailed    = "failed"
	RecordStatusCancelled = "cancelled"
)

// TransformRecord is the history entry written for every transform that
// finished, failed or was superseded.
type TransformRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	StyleID     string    `json:"style_id"`
	Status      string    `json:"status"`
	SourceBytes int64     `json:"source_bytes"`
	ResultBytes int64     `json:"result_bytes"`
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
