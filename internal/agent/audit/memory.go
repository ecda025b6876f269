package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"cloudops-agent/internal/models"
)

// MemoryStore keeps records in process; appends are serialized by a mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records []models.InteractionRecord
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(_ context.Context, rec *models.InteractionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.nextID
	s.nextID++
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.records = append(s.records, snapshot(rec))
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]models.InteractionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.InteractionRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, snapshot(&s.records[i]))
	}
	return out, nil
}

// Search matches text case-insensitively against user messages, newest first.
func (s *MemoryStore) Search(_ context.Context, text string, limit int) ([]models.InteractionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(text)
	out := make([]models.InteractionRecord, 0)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(strings.ToLower(s.records[i].UserMessage), needle) {
			out = append(out, snapshot(&s.records[i]))
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// snapshot copies the record so later mutation by the caller cannot reach the store.
func snapshot(rec *models.InteractionRecord) models.InteractionRecord {
	out := *rec
	out.Entities = rec.Entities.Clone()
	if rec.OperationExecuted != nil {
		op := *rec.OperationExecuted
		out.OperationExecuted = &op
	}
	if rec.OperationResult != nil {
		out.OperationResult = make(map[string]interface{}, len(rec.OperationResult))
		for k, v := range rec.OperationResult {
			out.OperationResult[k] = v
		}
	}
	return out
}
