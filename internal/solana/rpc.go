package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the pipeline.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature with its raw
	// base64 payload. Returns nil when the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetAccountInfo retrieves account info by public key.
	// Returns nil when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetHealth checks node health; nil means the node reports ok.
	GetHealth(ctx context.Context) error
}

// Transaction represents a fetched Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds), 0 when unavailable
	Meta      *TransactionMeta
	Data      string // base64-encoded wire transaction
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}
