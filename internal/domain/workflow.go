package domain

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusIdle          Status = "idle"
	StatusAwaitingStyle Status = "awaiting_style"
	StatusProcessing    Status = "processing"
	StatusComplete      Status = "complete"
	StatusFailed        Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// ErrorRecord captures a transform failure inside the workflow state.
type ErrorRecord struct {
	Kind       ErrorKind
	Message    string
	StyleID    string
	OccurredAt time.Time
}

// WorkflowState is a snapshot of one session. Pointer fields are nil when
// absent; the values they point to are treated as immutable.
type WorkflowState struct {
	SessionID     string
	Status        Status
	SourceImage   *ImageAsset
	SelectedStyle *StylePreset
	ResultImage   *ImageAsset
	Error         *ErrorRecord
	Revision      uint64
	UpdatedAt     time.Time
}

// IdleState returns the empty state a session starts in.
func IdleState(sessionID string) WorkflowState {
	return WorkflowState{
		SessionID: sessionID,
		Status:    StatusIdle,
	}
}

// Validate checks the structural invariants of a snapshot.
func (s WorkflowState) Validate() error {
	switch s.Status {
	case StatusIdle, StatusAwaitingStyle, StatusProcessing, StatusComplete, StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", s.Status)
	}

	if s.SourceImage == nil {
		if s.Status != StatusIdle {
			return fmt.Errorf("status %s without source image", s.Status)
		}
		if s.SelectedStyle != nil || s.ResultImage != nil || s.Error != nil {
			return errors.New("idle state carries leftover fields")
		}
		return nil
	}

	if s.Status == StatusIdle {
		return errors.New("idle state carries a source image")
	}
	if s.ResultImage != nil && s.Status != StatusComplete {
		return fmt.Errorf("result image present in status %s", s.Status)
	}
	if s.Status == StatusComplete && s.ResultImage == nil {
		return errors.New("complete state without result image")
	}
	if s.Status == StatusFailed && s.Error == nil {
		return errors.New("failed state without error record")
	}
	if s.Error != nil && s.Status != StatusFailed {
		return fmt.Errorf("error record present in status %s", s.Status)
	}

	switch s.Status {
	case StatusProcessing, StatusComplete, StatusFailed:
		if s.SelectedStyle == nil {
			return fmt.Errorf("status %s without selected style", s.Status)
		}
	case StatusAwaitingStyle:
		if s.SelectedStyle != nil {
			return errors.New("awaiting_style state carries a selected style")
		}
	}
	return nil
}
