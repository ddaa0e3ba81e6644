package codec

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Transaction versions. Legacy transactions have no version byte on the
// wire; v0 adds address table lookups after the instruction list.
const (
	VersionLegacy = -1
	Version0      = 0
)

const (
	signatureLen = 64
	pubkeyLen    = 32
)

// Transaction is a Solana transaction decoded from its raw wire bytes.
// Only the parts the create pipeline needs are materialized: static account
// keys and top-level instructions. Addresses loaded from lookup tables are
// not resolved; the create instruction's accounts are always static.
type Transaction struct {
	Signatures      []string // base58, fee payer signature first
	Version         int      // VersionLegacy or Version0
	AccountKeys     []string // base58 static account keys, fee payer first
	RecentBlockhash string
	Instructions    []CompiledInstruction
}

// CompiledInstruction is a top-level instruction referencing the
// transaction's account keys by index.
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           []byte
}

// Program resolves the instruction's program address against the
// transaction's static account keys.
func (tx *Transaction) Program(ix *CompiledInstruction) (string, error) {
	if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(tx.AccountKeys) {
		return "", fmt.Errorf("program index %d out of range (%d keys)", ix.ProgramIDIndex, len(tx.AccountKeys))
	}
	return tx.AccountKeys[ix.ProgramIDIndex], nil
}

// Account resolves the instruction account at position pos against the
// transaction's static account keys.
func (tx *Transaction) Account(ix *CompiledInstruction, pos int) (string, error) {
	if pos < 0 || pos >= len(ix.Accounts) {
		return "", fmt.Errorf("instruction has %d accounts, want index %d", len(ix.Accounts), pos)
	}
	keyIndex := ix.Accounts[pos]
	if keyIndex < 0 || keyIndex >= len(tx.AccountKeys) {
		return "", fmt.Errorf("account index %d out of range (%d static keys)", keyIndex, len(tx.AccountKeys))
	}
	return tx.AccountKeys[keyIndex], nil
}

// FeePayer returns the transaction fee payer, the first static account key.
func (tx *Transaction) FeePayer() (string, error) {
	if len(tx.AccountKeys) == 0 {
		return "", fmt.Errorf("transaction has no account keys")
	}
	return tx.AccountKeys[0], nil
}

// DecodeTransaction parses a raw Solana transaction (the base64-decoded
// payload of getTransaction with base64 encoding). Both legacy and v0
// message formats are supported; v0 address table lookups are parsed past
// but not resolved.
func DecodeTransaction(raw []byte) (*Transaction, error) {
	sigCount, offset, err := readCompactU16(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("signature count: %w", err)
	}

	tx := &Transaction{Version: VersionLegacy}

	for i := 0; i < sigCount; i++ {
		if offset+signatureLen > len(raw) {
			return nil, fmt.Errorf("signature %d truncated", i)
		}
		tx.Signatures = append(tx.Signatures, base58.Encode(raw[offset:offset+signatureLen]))
		offset += signatureLen
	}

	if offset >= len(raw) {
		return nil, fmt.Errorf("message missing after signatures")
	}

	// A set high bit on the first message byte marks a versioned message;
	// the low bits carry the version number.
	if raw[offset]&0x80 != 0 {
		version := int(raw[offset] & 0x7f)
		if version != Version0 {
			return nil, fmt.Errorf("unsupported transaction version %d", version)
		}
		tx.Version = Version0
		offset++
	}

	// Message header: required signatures, readonly signed, readonly unsigned.
	if offset+3 > len(raw) {
		return nil, fmt.Errorf("message header truncated")
	}
	offset += 3

	keyCount, offset, err := readCompactU16(raw, offset)
	if err != nil {
		return nil, fmt.Errorf("account key count: %w", err)
	}
	for i := 0; i < keyCount; i++ {
		if offset+pubkeyLen > len(raw) {
			return nil, fmt.Errorf("account key %d truncated", i)
		}
		tx.AccountKeys = append(tx.AccountKeys, base58.Encode(raw[offset:offset+pubkeyLen]))
		offset += pubkeyLen
	}

	if offset+pubkeyLen > len(raw) {
		return nil, fmt.Errorf("recent blockhash truncated")
	}
	tx.RecentBlockhash = base58.Encode(raw[offset : offset+pubkeyLen])
	offset += pubkeyLen

	ixCount, offset, err := readCompactU16(raw, offset)
	if err != nil {
		return nil, fmt.Errorf("instruction count: %w", err)
	}
	for i := 0; i < ixCount; i++ {
		var ix CompiledInstruction
		ix, offset, err = readInstruction(raw, offset)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		tx.Instructions = append(tx.Instructions, ix)
	}

	if tx.Version == Version0 {
		if err := skipAddressTableLookups(raw, offset); err != nil {
			return nil, err
		}
	}

	return tx, nil
}

func readInstruction(raw []byte, offset int) (CompiledInstruction, int, error) {
	var ix CompiledInstruction

	if offset >= len(raw) {
		return ix, 0, fmt.Errorf("program index truncated")
	}
	ix.ProgramIDIndex = int(raw[offset])
	offset++

	acctCount, offset, err := readCompactU16(raw, offset)
	if err != nil {
		return ix, 0, fmt.Errorf("account count: %w", err)
	}
	if offset+acctCount > len(raw) {
		return ix, 0, fmt.Errorf("account indices truncated")
	}
	ix.Accounts = make([]int, acctCount)
	for i := 0; i < acctCount; i++ {
		ix.Accounts[i] = int(raw[offset+i])
	}
	offset += acctCount

	dataLen, offset, err := readCompactU16(raw, offset)
	if err != nil {
		return ix, 0, fmt.Errorf("data length: %w", err)
	}
	if offset+dataLen > len(raw) {
		return ix, 0, fmt.Errorf("data truncated")
	}
	ix.Data = raw[offset : offset+dataLen]
	offset += dataLen

	return ix, offset, nil
}

func skipAddressTableLookups(raw []byte, offset int) error {
	lookupCount, offset, err := readCompactU16(raw, offset)
	if err != nil {
		return fmt.Errorf("lookup count: %w", err)
	}

	for i := 0; i < lookupCount; i++ {
		if offset+pubkeyLen > len(raw) {
			return fmt.Errorf("lookup table %d key truncated", i)
		}
		offset += pubkeyLen

		for _, section := range []string{"writable", "readonly"} {
			var n int
			n, offset, err = readCompactU16(raw, offset)
			if err != nil {
				return fmt.Errorf("lookup table %d %s count: %w", i, section, err)
			}
			if offset+n > len(raw) {
				return fmt.Errorf("lookup table %d %s indices truncated", i, section)
			}
			offset += n
		}
	}

	return nil
}

// readCompactU16 decodes Solana's compact-u16 (shortvec) length prefix:
// up to three bytes, seven value bits each, high bit as continuation.
func readCompactU16(data []byte, offset int) (int, int, error) {
	var value int
	var shift uint

	for i := 0; i < 3; i++ {
		if offset >= len(data) {
			return 0, 0, fmt.Errorf("compact-u16 truncated at offset %d", offset)
		}
		b := data[offset]
		offset++

		value |= int(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, offset, nil
		}
		shift += 7
	}

	return 0, 0, fmt.Errorf("compact-u16 longer than 3 bytes")
}
