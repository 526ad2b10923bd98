package store

import (
	"context"
	"errors"
	"sync"

	"github.com/dunamismax/styleflow/internal/domain"
)

var ErrMissingSessionID = errors.New("transform record requires a session id")

// MemoryRecordStore keeps up to perSession records for every session,
// dropping the oldest first.
type MemoryRecordStore struct {
	mu         sync.RWMutex
	records    map[string][]domain.TransformRecord
	perSession int
}

func NewMemoryRecordStore(perSession int) *MemoryRecordStore {
	if perSession <= 0 {
		perSession = 100
	}
	return &MemoryRecordStore{
		records:    make(map[string][]domain.TransformRecord),
		perSession: perSession,
	}
}

func (s *MemoryRecordStore) CreateTransformRecord(_ context.Context, record domain.TransformRecord) error {
	if record.SessionID == "" {
		return ErrMissingSessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.records[record.SessionID], record)
	if len(list) > s.perSession {
		list = append([]domain.TransformRecord(nil), list[len(list)-s.perSession:]...)
	}
	s.records[record.SessionID] = list
	return nil
}

func (s *MemoryRecordStore) ListTransformRecords(_ context.Context, sessionID string, limit int) ([]domain.TransformRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.records[sessionID]
	out := make([]domain.TransformRecord, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (s *MemoryRecordStore) DeleteTransformRecords(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	return nil
}
