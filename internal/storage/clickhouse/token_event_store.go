package clickhouse

import (
	"context"
	"fmt"
	"time"

	"pumpmonitor/internal/domain"
	"pumpmonitor/internal/observability"
	"pumpmonitor/internal/storage"
)

// TokenEventStore implements storage.TokenEventStore using ClickHouse.
//
// MergeTree engines do not enforce uniqueness at insert time, so Insert
// checks for an existing signature explicitly. The table is a
// ReplacingMergeTree keyed by tx_signature and reads use FINAL, so a
// race between two inserts still collapses to a single row.
type TokenEventStore struct {
	conn *Conn
}

// NewTokenEventStore creates a new TokenEventStore.
func NewTokenEventStore(conn *Conn) *TokenEventStore {
	return &TokenEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TokenEventStore = (*TokenEventStore)(nil)

// Insert adds a new token creation event. Returns ErrDuplicateKey if
// tx_signature already exists.
func (s *TokenEventStore) Insert(ctx context.Context, e *domain.TokenCreatedEvent) error {
	start := time.Now()

	exists, err := s.exists(ctx, e.TransactionSignature)
	if err != nil {
		observability.RecordStoreError("clickhouse")
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO token_events (
			tx_signature, event_type, detected_at, mint_address,
			name, symbol, uri, creator, supply, decimals,
			bonding_curve, virtual_sol_reserves, virtual_token_reserves
		)
	`

	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		observability.RecordStoreError("clickhouse")
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.TransactionSignature,
		e.EventType,
		e.Timestamp,
		e.Token.MintAddress,
		e.Token.Name,
		e.Token.Symbol,
		e.Token.URI,
		e.Token.Creator,
		e.Token.Supply,
		e.Token.Decimals,
		e.PumpData.BondingCurve,
		e.PumpData.VirtualSolReserves,
		e.PumpData.VirtualTokenReserves,
	)
	if err != nil {
		observability.RecordStoreError("clickhouse")
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		observability.RecordStoreError("clickhouse")
		return fmt.Errorf("send batch: %w", err)
	}

	observability.RecordDBQuery("clickhouse", "insert", time.Since(start).Seconds())
	observability.RecordEventStored("clickhouse")
	return nil
}

// GetBySignature retrieves an event by its transaction signature.
// Returns ErrNotFound if not exists.
func (s *TokenEventStore) GetBySignature(ctx context.Context, signature string) (*domain.TokenCreatedEvent, error) {
	query := `
		SELECT tx_signature, event_type, detected_at, mint_address,
		       name, symbol, uri, creator, supply, decimals,
		       bonding_curve, virtual_sol_reserves, virtual_token_reserves
		FROM token_events FINAL
		WHERE tx_signature = ?
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, signature)
	if err != nil {
		return nil, fmt.Errorf("query by signature: %w", err)
	}
	defer rows.Close()

	events, err := scanTokenEvents(rows)
	observability.RecordDBQuery("clickhouse", "get_by_signature", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	return events[0], nil
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
		FROM token_events FINAL
		ORDER BY detected_at DESC, tx_signature ASC
		LIMIT ?
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()

	events, err := scanTokenEvents(rows)
	observability.RecordDBQuery("clickhouse", "list_recent", time.Since(start).Seconds())
	return events, err
}

// Count returns the total number of stored events.
func (s *TokenEventStore) Count(ctx context.Context) (int64, error) {
	start := time.Now()
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM token_events FINAL`).Scan(&count)
	observability.RecordDBQuery("clickhouse", "count", time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("count token events: %w", err)
	}
	return int64(count), nil
}

// exists checks if an event with the given signature exists.
func (s *TokenEventStore) exists(ctx context.Context, signature string) (bool, error) {
	query := `
		SELECT count(*) FROM token_events FINAL
		WHERE tx_signature = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, signature).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanTokenEvents scans multiple rows into a slice.
func scanTokenEvents(rows chRows) ([]*domain.TokenCreatedEvent, error) {
	var events []*domain.TokenCreatedEvent

	for rows.Next() {
		var e domain.TokenCreatedEvent

		err := rows.Scan(
			&e.TransactionSignature,
			&e.EventType,
			&e.Timestamp,
			&e.Token.MintAddress,
			&e.Token.Name,
			&e.Token.Symbol,
			&e.Token.URI,
			&e.Token.Creator,
			&e.Token.Supply,
			&e.Token.Decimals,
			&e.PumpData.BondingCurve,
			&e.PumpData.VirtualSolReserves,
			&e.PumpData.VirtualTokenReserves,
		)
		if err != nil {
			return nil, fmt.Errorf("scan token event row: %w", err)
		}

		e.Timestamp = e.Timestamp.UTC()
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token event rows: %w", err)
	}

	return events, nil
}
