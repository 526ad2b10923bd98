package store

import (
	"context"

	"github.com/dunamismax/styleflow/internal/domain"
)

// TransformRecordStore keeps the transform history of each session.
// List returns the newest records first.
type TransformRecordStore interface {
	CreateTransformRecord(ctx context.Context, record domain.TransformRecord) error
	ListTransformRecords(ctx context.Context, sessionID string, limit int) ([]domain.TransformRecord, error)
	DeleteTransformRecords(ctx context.Context, sessionID string) error
}

const DefaultListLimit = 50
