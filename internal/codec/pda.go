package codec

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// bondingCurveSeed is the fixed seed prefix pump.fun uses when deriving a
// token's bonding curve address.
const bondingCurveSeed = "bonding-curve"

// DeriveBondingCurveAddress derives the canonical bonding curve PDA for a
// mint under the given program. Seeds: ["bonding-curve", mint].
// Used to cross-check the address carried by the create instruction.
func DeriveBondingCurveAddress(mint, programID string) (string, error) {
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", fmt.Errorf("decode mint: %w", err)
	}
	programBytes, err := base58.Decode(programID)
	if err != nil {
		return "", fmt.Errorf("decode program id: %w", err)
	}
	if len(mintBytes) != pubkeyLen || len(programBytes) != pubkeyLen {
		return "", fmt.Errorf("mint and program id must be 32-byte keys")
	}

	seeds := [][]byte{
		[]byte(bondingCurveSeed),
		mintBytes,
	}

	pda := derivePDA(seeds, programBytes)
	if pda == "" {
		return "", fmt.Errorf("no valid bump seed for mint %s", mint)
	}
	return pda, nil
}

// derivePDA derives a Program Derived Address using the Solana algorithm:
// sha256(seeds || bump || programID || "ProgramDerivedAddress"), taking the
// highest bump whose hash is off the ed25519 curve.
func derivePDA(seeds [][]byte, programID []byte) string {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != pubkeyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
