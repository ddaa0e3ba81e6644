package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpmonitor/internal/domain"
	"pumpmonitor/internal/storage"
)

func testTokenEvent(sig string, detectedAt time.Time) *domain.TokenCreatedEvent {
	return &domain.TokenCreatedEvent{
		EventType:            domain.EventTypeTokenCreated,
		Timestamp:            detectedAt,
		TransactionSignature: sig,
		Token: domain.TokenDetails{
			MintAddress: "Mint" + sig,
			Name:        "Pepe Classic",
			Symbol:      "PEPEC",
			URI:         "https://ipfs.io/ipfs/QmTest",
			Creator:     "Creator" + sig,
			Supply:      1_000_000_000_000_000,
			Decimals:    6,
		},
		PumpData: domain.PumpFunData{
			BondingCurve:         "Curve" + sig,
			VirtualSolReserves:   30_000_000_000,
			VirtualTokenReserves: 1_073_000_000_000_000,
		},
	}
}

func TestTokenEventStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenEventStore(pool)

	event := testTokenEvent("InsertGetTx1", time.Unix(1700000000, 0).UTC())

	err := store.Insert(ctx, event)
	require.NoError(t, err)

	got, err := store.GetBySignature(ctx, "InsertGetTx1")
	require.NoError(t, err)

	assert.Equal(t, event.EventType, got.EventType)
	assert.Equal(t, event.TransactionSignature, got.TransactionSignature)
	assert.True(t, event.Timestamp.Equal(got.Timestamp), "detected_at mismatch: got %v, want %v", got.Timestamp, event.Timestamp)
	assert.Equal(t, event.Token.MintAddress, got.Token.MintAddress)
	assert.Equal(t, event.Token.Name, got.Token.Name)
	assert.Equal(t, event.Token.Symbol, got.Token.Symbol)
	assert.Equal(t, event.Token.URI, got.Token.URI)
	assert.Equal(t, event.Token.Creator, got.Token.Creator)
	assert.Equal(t, event.Token.Supply, got.Token.Supply)
	assert.Equal(t, event.Token.Decimals, got.Token.Decimals)
	assert.Equal(t, event.PumpData.BondingCurve, got.PumpData.BondingCurve)
	assert.Equal(t, event.PumpData.VirtualSolReserves, got.PumpData.VirtualSolReserves)
	assert.Equal(t, event.PumpData.VirtualTokenReserves, got.PumpData.VirtualTokenReserves)
}

func TestTokenEventStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenEventStore(pool)

	event := testTokenEvent("DupTx1", time.Unix(1700000000, 0).UTC())

	err := store.Insert(ctx, event)
	require.NoError(t, err)

	err = store.Insert(ctx, event)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTokenEventStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenEventStore(pool)

	_, err := store.GetBySignature(ctx, "NonexistentTx")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenEventStore_ListRecent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenEventStore(pool)

	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 5; i++ {
		event := testTokenEvent(fmt.Sprintf("ListTx%d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Insert(ctx, event))
	}

	result, err := store.ListRecent(ctx, 3)
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.Equal(t, "ListTx4", result[0].TransactionSignature)
	assert.Equal(t, "ListTx3", result[1].TransactionSignature)
	assert.Equal(t, "ListTx2", result[2].TransactionSignature)
}

func TestTokenEventStore_ListRecentLimits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenEventStore(pool)

	event := testTokenEvent("LimitTx1", time.Unix(1700000000, 0).UTC())
	require.NoError(t, store.Insert(ctx, event))

	// Limit larger than stored count
	result, err := store.ListRecent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, result, 1)

	// Zero limit returns nothing without hitting the database
	result, err = store.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestTokenEventStore_Count(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenEventStore(pool)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 3; i++ {
		event := testTokenEvent(fmt.Sprintf("CountTx%d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Insert(ctx, event))
	}

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestTokenEventStore_LargeReserves(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenEventStore(pool)

	// Values near the top of the observed range must round-trip intact.
	event := testTokenEvent("LargeTx1", time.Unix(1700000000, 0).UTC())
	event.Token.Supply = 1_000_000_000_000_000_000
	event.PumpData.VirtualTokenReserves = 1_073_000_000_000_000_000

	require.NoError(t, store.Insert(ctx, event))

	got, err := store.GetBySignature(ctx, "LargeTx1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000_000_000_000), got.Token.Supply)
	assert.Equal(t, uint64(1_073_000_000_000_000_000), got.PumpData.VirtualTokenReserves)
}
