// Package codec decodes the pump.fun binary layouts (discriminator-tagged
// instruction and account data) and translates events to and from the JSON
// wire protocol spoken to WebSocket clients.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DiscriminatorLen is the length of the Anchor-style type prefix on
// pump.fun instruction and account data.
const DiscriminatorLen = 8

// PumpFunProgramID is the mainnet pump.fun program address, the default
// monitoring target.
const PumpFunProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// Known pump.fun discriminators.
var (
	// CreateDiscriminator prefixes the "create" instruction data.
	CreateDiscriminator = [DiscriminatorLen]byte{0x61, 0x21, 0xdf, 0x27, 0x22, 0x30, 0x04, 0x2f}
	// BondingCurveDiscriminator prefixes bonding curve account data.
	BondingCurveDiscriminator = [DiscriminatorLen]byte{0x68, 0x93, 0x5a, 0x56, 0x57, 0x5a, 0x0d, 0x73}
)

// CreateInstruction holds the decoded payload of a pump.fun create
// instruction: three borsh strings after the discriminator.
type CreateInstruction struct {
	Name   string
	Symbol string
	URI    string
}

// BondingCurveState holds the virtual reserves decoded from a bonding curve
// account. The account has no curve-completion flag at these offsets.
type BondingCurveState struct {
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
}

// MintState holds the fields of interest from an SPL Token Mint account.
type MintState struct {
	Supply   uint64
	Decimals uint8
}

// IsCreateInstruction reports whether the instruction data carries the
// create discriminator. Callers use this to skip unrelated instructions
// (trades and the like) without treating them as errors.
func IsCreateInstruction(data []byte) bool {
	return len(data) >= DiscriminatorLen && bytes.Equal(data[:DiscriminatorLen], CreateDiscriminator[:])
}

// DecodeCreateInstruction decodes create instruction data including its
// discriminator. Once the discriminator matches, the payload must have the
// expected shape; any truncation is a hard error, never a defaulted field.
func DecodeCreateInstruction(data []byte) (*CreateInstruction, error) {
	if len(data) < DiscriminatorLen {
		return nil, fmt.Errorf("instruction data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:DiscriminatorLen], CreateDiscriminator[:]) {
		return nil, fmt.Errorf("create discriminator mismatch")
	}

	offset := DiscriminatorLen

	name, offset, err := readBorshString(data, offset)
	if err != nil {
		return nil, fmt.Errorf("decode name: %w", err)
	}

	symbol, offset, err := readBorshString(data, offset)
	if err != nil {
		return nil, fmt.Errorf("decode symbol: %w", err)
	}

	uri, _, err := readBorshString(data, offset)
	if err != nil {
		return nil, fmt.Errorf("decode uri: %w", err)
	}

	return &CreateInstruction{Name: name, Symbol: symbol, URI: uri}, nil
}

// DecodeBondingCurveAccount decodes bonding curve account data. The leading
// discriminator must match; interpreting an unverified account speculatively
// is never allowed.
func DecodeBondingCurveAccount(data []byte) (*BondingCurveState, error) {
	if len(data) < DiscriminatorLen+16 {
		return nil, fmt.Errorf("bonding curve data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:DiscriminatorLen], BondingCurveDiscriminator[:]) {
		return nil, fmt.Errorf("bonding curve discriminator mismatch")
	}

	return &BondingCurveState{
		VirtualSolReserves:   binary.LittleEndian.Uint64(data[8:16]),
		VirtualTokenReserves: binary.LittleEndian.Uint64(data[16:24]),
	}, nil
}

// DecodeMintAccount parses SPL Token Mint account data.
// SPL Token Mint layout (82 bytes):
// - mintAuthority: Option<Pubkey> (36 bytes: 4 + 32)
// - supply: u64 (8 bytes)
// - decimals: u8 (1 byte)
// - isInitialized: bool (1 byte)
// - freezeAuthority: Option<Pubkey> (36 bytes: 4 + 32)
func DecodeMintAccount(data []byte) (*MintState, error) {
	if len(data) < 82 {
		return nil, fmt.Errorf("mint data too short: %d bytes", len(data))
	}

	return &MintState{
		Supply:   binary.LittleEndian.Uint64(data[36:44]),
		Decimals: data[44],
	}, nil
}

// readBorshString reads a borsh-encoded string (4-byte little-endian length
// prefix followed by UTF-8 bytes) at offset, returning the value and the
// offset just past it.
func readBorshString(data []byte, offset int) (string, int, error) {
	if offset+4 > len(data) {
		return "", 0, fmt.Errorf("string length prefix out of range at offset %d", offset)
	}
	strLen := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4

	if strLen < 0 || offset+strLen > len(data) {
		return "", 0, fmt.Errorf("string of length %d overruns data at offset %d", strLen, offset)
	}

	return string(data[offset : offset+strLen]), offset + strLen, nil
}
