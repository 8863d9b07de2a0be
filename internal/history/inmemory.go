package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process history store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]ExchangeRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]ExchangeRecord)}
}

func (s *InMemoryStore) SaveExchange(_ context.Context, record ExchangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.records[record.ClientID] = append(s.records[record.ClientID], record)
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, clientID string, limit int) ([]ExchangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[clientID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]ExchangeRecord, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
