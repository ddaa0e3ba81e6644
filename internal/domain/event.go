package domain

import "time"

// EventTypeTokenCreated tags every event produced by the create-instruction
// pipeline. New event kinds get their own tag; consumers switch on this field.
const EventTypeTokenCreated = "tokenCreated"

// TokenCreatedEvent is the event broadcast to WebSocket clients when a new
// token is created. Constructed exactly once per matched transaction and
// treated as read-only by every downstream stage.
type TokenCreatedEvent struct {
	EventType            string       `json:"eventType"`
	Timestamp            time.Time    `json:"timestamp"` // detection time (UTC), not block time
	TransactionSignature string       `json:"transactionSignature"`
	Token                TokenDetails `json:"token"`
	PumpData             PumpFunData  `json:"pumpData"`
}

// TokenDetails describes the newly created token.
// Supply and Decimals come from the mint account at decode time; the create
// instruction payload does not carry them.
type TokenDetails struct {
	MintAddress string `json:"mintAddress"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	URI         string `json:"uri"`
	Creator     string `json:"creator"` // transaction fee payer
	Supply      uint64 `json:"supply"`
	Decimals    uint8  `json:"decimals"`
}

// PumpFunData carries the bonding-curve state read at creation time.
// Only the virtual reserves are available; the on-chain account has no
// curve-completion flag at this layout offset.
type PumpFunData struct {
	BondingCurve         string `json:"bondingCurve"`
	VirtualSolReserves   uint64 `json:"virtualSolReserves"`
	VirtualTokenReserves uint64 `json:"virtualTokenReserves"`
}
