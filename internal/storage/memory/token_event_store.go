package memory

import (
	"context"
	"sort"
	"sync"

	"pumpmonitor/internal/domain"
	"pumpmonitor/internal/storage"
)

// TokenEventStore is an in-memory implementation of storage.TokenEventStore.
type TokenEventStore struct {
	mu   sync.RWMutex
	data []*domain.TokenCreatedEvent
	keys map[string]bool
}

// NewTokenEventStore creates a new in-memory token event store.
func NewTokenEventStore() *TokenEventStore {
	return &TokenEventStore{
		data: make([]*domain.TokenCreatedEvent, 0),
		keys: make(map[string]bool),
	}
}

// Insert adds a new token creation event. Returns ErrDuplicateKey if
// tx_signature already exists.
func (s *TokenEventStore) Insert(_ context.Context, e *domain.TokenCreatedEvent) error {
	if e == nil || e.TransactionSignature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[e.TransactionSignature] {
		return storage.ErrDuplicateKey
	}

	// Store a copy
	copy := *e
	s.data = append(s.data, &copy)
	s.keys[e.TransactionSignature] = true

	return nil
}

// GetBySignature retrieves an event by its transaction signature.
// Returns ErrNotFound if not exists.
func (s *TokenEventStore) GetBySignature(_ context.Context, signature string) (*domain.TokenCreatedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.data {
		if e.TransactionSignature == signature {
			copy := *e
			return &copy, nil
		}
	}

	return nil, storage.ErrNotFound
}

// ListRecent retrieves the most recently detected events, newest first.
func (s *TokenEventStore) ListRecent(_ context.Context, limit int) ([]*domain.TokenCreatedEvent, error) {
	if limit <= 0 {
		return []*domain.TokenCreatedEvent{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TokenCreatedEvent, 0, len(s.data))
	for _, e := range s.data {
		copy := *e
		result = append(result, &copy)
	}

	sortTokenEvents(result)

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Count returns the total number of stored events.
func (s *TokenEventStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.data)), nil
}

// sortTokenEvents sorts events by detection time descending, newest first.
// Ties break on tx_signature for deterministic ordering.
func sortTokenEvents(events []*domain.TokenCreatedEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].TransactionSignature < events[j].TransactionSignature
	})
}

// Verify interface compliance at compile time.
var _ storage.TokenEventStore = (*TokenEventStore)(nil)
