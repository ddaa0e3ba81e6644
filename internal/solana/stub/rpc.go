package stub

import (
	"context"
	"sync"

	"pumpmonitor/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. Unknown signatures and
// pubkeys return (nil, nil), matching the real client's not-found behavior.
// Errors maps inject failures for specific keys.
type RPCClient struct {
	mu           sync.Mutex
	Transactions map[string]*solana.Transaction
	Accounts     map[string]*solana.AccountInfo
	TxErrors     map[string]error
	AccErrors    map[string]error
	HealthErr    error

	TxCalls  int
	AccCalls int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Accounts:     make(map[string]*solana.AccountInfo),
		TxErrors:     make(map[string]error),
		AccErrors:    make(map[string]error),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.TxCalls++
	if err, ok := c.TxErrors[signature]; ok {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// GetAccountInfo retrieves account info by pubkey from the stub store.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.AccCalls++
	if err, ok := c.AccErrors[pubkey]; ok {
		return nil, err
	}
	return c.Accounts[pubkey], nil
}

// GetHealth reports the configured health error, nil by default.
func (c *RPCClient) GetHealth(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.HealthErr
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Transactions[tx.Signature] = tx
}

// AddAccount adds account info under the given pubkey.
func (c *RPCClient) AddAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Accounts[pubkey] = info
}
