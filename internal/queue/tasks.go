package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/styleflow/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeTransformImage = "style:transform"

type TransformPayload struct {
	RequestID      string             `json:"request_id"`
	SessionID      string             `json:"session_id"`
	Style          domain.StylePreset `json:"style"`
	SourceKey      string             `json:"source_key"`
	SourceName     string             `json:"source_name,omitempty"`
	SourceMimeType string             `json:"source_mime_type"`
	ResultKey      string             `json:"result_key"`
	RequestedAt    time.Time          `json:"requested_at"`
}

// TransformResult is written by the worker as the task result.
type TransformResult struct {
	ResultKey string `json:"result_key"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func NewTransformTask(payload TransformPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal transform payload: %w", err)
	}
	return asynq.NewTask(TypeTransformImage, body), nil
}

func ParseTransformPayload(task *asynq.Task) (TransformPayload, error) {
	var payload TransformPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TransformPayload{}, fmt.Errorf("unmarshal transform payload: %w", err)
	}
	if payload.RequestID == "" || payload.SourceKey == "" || payload.ResultKey == "" {
		return TransformPayload{}, fmt.Errorf("transform payload is missing request_id, source_key or result_key")
	}
	return payload, nil
}

func EncodeTransformResult(result TransformResult) ([]byte, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal transform result: %w", err)
	}
	return body, nil
}

func ParseTransformResult(raw []byte) (TransformResult, error) {
	var result TransformResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return TransformResult{}, fmt.Errorf("unmarshal transform result: %w", err)
	}
	return result, nil
}
