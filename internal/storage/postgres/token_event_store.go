package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pumpmonitor/internal/domain"
	"pumpmonitor/internal/observability"
	"pumpmonitor/internal/storage"
)

// TokenEventStore implements storage.TokenEventStore using PostgreSQL.
type TokenEventStore struct {
	pool *Pool
}

// NewTokenEventStore creates a new TokenEventStore.
func NewTokenEventStore(pool *Pool) *TokenEventStore {
	return &TokenEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenEventStore = (*TokenEventStore)(nil)

// Reserve and supply magnitudes fit comfortably in int64; columns are BIGINT
// and values round-trip through explicit conversions.

// Insert adds a new token creation event. Returns ErrDuplicateKey if
// tx_signature already exists.
func (s *TokenEventStore) Insert(ctx context.Context, e *domain.TokenCreatedEvent) error {
	query := `
		INSERT INTO token_events (
			tx_signature, event_type, detected_at, mint_address,
			name, symbol, uri, creator, supply, decimals,
			bonding_curve, virtual_sol_reserves, virtual_token_reserves
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		e.TransactionSignature,
		e.EventType,
		e.Timestamp,
		e.Token.MintAddress,
		e.Token.Name,
		e.Token.Symbol,
		e.Token.URI,
		e.Token.Creator,
		int64(e.Token.Supply),
		int16(e.Token.Decimals),
		e.PumpData.BondingCurve,
		int64(e.PumpData.VirtualSolReserves),
		int64(e.PumpData.VirtualTokenReserves),
	)
	observability.RecordDBQuery("postgres", "insert", time.Since(start).Seconds())
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		observability.RecordStoreError("postgres")
		return fmt.Errorf("insert token event: %w", err)
	}
	observability.RecordEventStored("postgres")
	return nil
}

// GetBySignature retrieves an event by its transaction signature.
// Returns ErrNotFound if not exists.
func (s *TokenEventStore) GetBySignature(ctx context.Context, signature string) (*domain.TokenCreatedEvent, error) {
	query := `
		SELECT tx_signature, event_type, detected_at, mint_address,
		       name, symbol, uri, creator, supply, decimals,
		       bonding_curve, virtual_sol_reserves, virtual_token_reserves
		FROM token_events
		WHERE tx_signature = $1
	`

	start := time.Now()
	row := s.pool.QueryRow(ctx, query, signature)
	e, err := scanTokenEvent(row)
	observability.RecordDBQuery("postgres", "get_by_signature", time.Since(start).Seconds())
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token event by signature: %w", err)
	}
	return e, nil
}

// ListRecent retrieves the most recently detected events, newest first.
func (s *TokenEventStore) ListRecent(ctx context.Context, limit int) ([]*domain.TokenCreatedEvent, error) {
	if limit <= 0 {
		return []*domain.TokenCreatedEvent{}, nil
	}

	query := `
		SELECT tx_signature, event_type, detected_at, mint_address,
		       name, symbol, uri, creator, supply, decimals,
		       bonding_curve, virtual_sol_reserves, virtual_token_reserves
		FROM token_events
		ORDER BY detected_at DESC, tx_signature ASC
		LIMIT $1
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent token events: %w", err)
	}
	defer rows.Close()

	events, err := scanTokenEvents(rows)
	observability.RecordDBQuery("postgres", "list_recent", time.Since(start).Seconds())
	return events, err
}

// Count returns the total number of stored events.
func (s *TokenEventStore) Count(ctx context.Context) (int64, error) {
	start := time.Now()
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM token_events`).Scan(&count)
	observability.RecordDBQuery("postgres", "count", time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("count token events: %w", err)
	}
	return count, nil
}

// scanTokenEvent scans a single row into a TokenCreatedEvent.
func scanTokenEvent(row pgx.Row) (*domain.TokenCreatedEvent, error) {
	var e domain.TokenCreatedEvent
	var supply, solReserves, tokenReserves int64
	var decimals int16

	err := row.Scan(
		&e.TransactionSignature,
		&e.EventType,
		&e.Timestamp,
		&e.Token.MintAddress,
		&e.Token.Name,
		&e.Token.Symbol,
		&e.Token.URI,
		&e.Token.Creator,
		&supply,
		&decimals,
		&e.PumpData.BondingCurve,
		&solReserves,
		&tokenReserves,
	)
	if err != nil {
		return nil, err
	}

	e.Timestamp = e.Timestamp.UTC()
	e.Token.Supply = uint64(supply)
	e.Token.Decimals = uint8(decimals)
	e.PumpData.VirtualSolReserves = uint64(solReserves)
	e.PumpData.VirtualTokenReserves = uint64(tokenReserves)
	return &e, nil
}

// scanTokenEvents scans multiple rows into a slice of TokenCreatedEvent.
func scanTokenEvents(rows pgx.Rows) ([]*domain.TokenCreatedEvent, error) {
	var events []*domain.TokenCreatedEvent

	for rows.Next() {
		e, err := scanTokenEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token event row: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token event rows: %w", err)
	}

	return events, nil
}
