package storage

import (
	"context"

	"pumpmonitor/internal/domain"
)

// TokenEventStore provides access to token_events storage.
type TokenEventStore interface {
	// Insert adds a new token creation event. Returns ErrDuplicateKey if
	// tx_signature already exists.
	Insert(ctx context.Context, e *domain.TokenCreatedEvent) error

	// GetBySignature retrieves an event by its transaction signature.
	// Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.TokenCreatedEvent, error)

	// ListRecent retrieves the most recently detected events, newest first,
	// up to limit. A limit <= 0 returns an empty slice.
	ListRecent(ctx context.Context, limit int) ([]*domain.TokenCreatedEvent, error)

	// Count returns the total number of stored events.
	Count(ctx context.Context) (int64, error)
}
