package ingestion

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"pumpmonitor/internal/codec"
	"pumpmonitor/internal/domain"
	"pumpmonitor/internal/observability"
	"pumpmonitor/internal/solana"
)

// Positions in the create instruction's account list. The instruction names
// the new mint first, then mint authority, then curve-related accounts; the
// bonding curve PDA sits at position 4.
const (
	createMintAccountPos         = 0
	createBondingCurveAccountPos = 4
)

// TxDecoder turns a transaction signature into a TokenCreatedEvent, or
// reports that the transaction is not a pump.fun token creation.
type TxDecoder struct {
	rpc     solana.RPCClient
	program string
	logger  *log.Logger
}

// NewTxDecoder creates a decoder bound to the given program ID.
func NewTxDecoder(rpc solana.RPCClient, program string, logger *log.Logger) *TxDecoder {
	if logger == nil {
		logger = log.New(os.Stderr, "[decoder] ", log.LstdFlags)
	}
	return &TxDecoder{
		rpc:     rpc,
		program: program,
		logger:  logger,
	}
}

// Decode fetches and decodes one transaction. It returns (nil, nil) when the
// transaction carries no create instruction for the configured program, a
// populated event when it does, and an error for fetch or decode failures.
func (d *TxDecoder) Decode(ctx context.Context, signature string) (*domain.TokenCreatedEvent, error) {
	start := time.Now()

	tx, err := d.rpc.GetTransaction(ctx, signature)
	observability.RecordRPCLatency("getTransaction", time.Since(start).Seconds())
	if err != nil {
		observability.RecordDecodeError("fetch")
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}
	if tx == nil {
		observability.RecordDecodeError("fetch")
		return nil, fmt.Errorf("transaction %s not found", signature)
	}

	raw, err := base64.StdEncoding.DecodeString(tx.Data)
	if err != nil {
		observability.RecordDecodeError("parse")
		return nil, fmt.Errorf("transaction payload not base64: %w", err)
	}

	parsed, err := codec.DecodeTransaction(raw)
	if err != nil {
		observability.RecordDecodeError("parse")
		return nil, fmt.Errorf("parse transaction: %w", err)
	}
	observability.RecordDecoded()

	ix, create, err := d.findCreateInstruction(parsed)
	if err != nil {
		observability.RecordDecodeError("instruction")
		return nil, err
	}
	if create == nil {
		return nil, nil
	}

	creator, err := parsed.FeePayer()
	if err != nil {
		observability.RecordDecodeError("instruction")
		return nil, err
	}
	mint, err := parsed.Account(ix, createMintAccountPos)
	if err != nil {
		observability.RecordDecodeError("instruction")
		return nil, fmt.Errorf("mint account: %w", err)
	}
	bondingCurve, err := parsed.Account(ix, createBondingCurveAccountPos)
	if err != nil {
		observability.RecordDecodeError("instruction")
		return nil, fmt.Errorf("bonding curve account: %w", err)
	}

	// The mint and bonding curve states live in separate accounts; fetch
	// both at once.
	var (
		wg         sync.WaitGroup
		mintState  *codec.MintState
		curveState *codec.BondingCurveState
		mintErr    error
		curveErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		mintState, mintErr = d.fetchMintState(ctx, mint)
	}()
	go func() {
		defer wg.Done()
		curveState, curveErr = d.fetchCurveState(ctx, bondingCurve)
	}()
	wg.Wait()

	if mintErr != nil {
		observability.RecordDecodeError("account")
		return nil, fmt.Errorf("mint %s: %w", mint, mintErr)
	}
	if curveErr != nil {
		observability.RecordDecodeError("account")
		return nil, fmt.Errorf("bonding curve %s: %w", bondingCurve, curveErr)
	}

	d.verifyBondingCurvePDA(mint, bondingCurve)

	now := time.Now().UTC()
	event := &domain.TokenCreatedEvent{
		EventType:            domain.EventTypeTokenCreated,
		Timestamp:            now,
		TransactionSignature: signature,
		Token: domain.TokenDetails{
			MintAddress: mint,
			Name:        create.Name,
			Symbol:      create.Symbol,
			URI:         create.URI,
			Creator:     creator,
			Supply:      mintState.Supply,
			Decimals:    mintState.Decimals,
		},
		PumpData: domain.PumpFunData{
			BondingCurve:         bondingCurve,
			VirtualSolReserves:   curveState.VirtualSolReserves,
			VirtualTokenReserves: curveState.VirtualTokenReserves,
		},
	}

	observability.ObserveDecodeDuration(time.Since(start).Seconds())
	observability.RecordCreateEvent(now.Unix())
	return event, nil
}

// findCreateInstruction scans top-level instructions in order and returns
// the first create instruction of the configured program. A missing
// instruction is not an error; a matched discriminator with a bad payload is.
func (d *TxDecoder) findCreateInstruction(tx *codec.Transaction) (*codec.CompiledInstruction, *codec.CreateInstruction, error) {
	for i := range tx.Instructions {
		ix := &tx.Instructions[i]

		program, err := tx.Program(ix)
		if err != nil {
			return nil, nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		if program != d.program || !codec.IsCreateInstruction(ix.Data) {
			continue
		}

		create, err := codec.DecodeCreateInstruction(ix.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		return ix, create, nil
	}
	return nil, nil, nil
}

// fetchMintState reads the SPL mint account for supply and decimals.
func (d *TxDecoder) fetchMintState(ctx context.Context, mint string) (*codec.MintState, error) {
	start := time.Now()
	info, err := d.rpc.GetAccountInfo(ctx, mint)
	observability.RecordRPCLatency("getAccountInfo", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("account not found")
	}

	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("account data not base64: %w", err)
	}
	return codec.DecodeMintAccount(data)
}

// fetchCurveState reads and validates the bonding curve account.
func (d *TxDecoder) fetchCurveState(ctx context.Context, address string) (*codec.BondingCurveState, error) {
	start := time.Now()
	info, err := d.rpc.GetAccountInfo(ctx, address)
	observability.RecordRPCLatency("getAccountInfo", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("account not found")
	}

	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("account data not base64: %w", err)
	}
	return codec.DecodeBondingCurveAccount(data)
}

// verifyBondingCurvePDA cross-checks the instruction-supplied curve address
// against the canonical derivation. The instruction's account list stays
// authoritative; a mismatch is logged and counted, never fatal.
func (d *TxDecoder) verifyBondingCurvePDA(mint, bondingCurve string) {
	expected, err := codec.DeriveBondingCurveAddress(mint, d.program)
	if err != nil {
		d.logger.Printf("WARN: PDA derivation failed for mint %s: %v", mint, err)
		return
	}
	if expected != bondingCurve {
		d.logger.Printf("WARN: bonding curve %s does not match derived PDA %s (mint %s)", bondingCurve, expected, mint)
		observability.RecordPDAMismatch()
	}
}
