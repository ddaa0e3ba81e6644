package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 30 * time.Second

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint   string
	client     *http.Client
	maxRetries int
	retryStep  time.Duration
	requestID  atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts after the initial call.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryStep sets the base delay between retry attempts.
func WithRetryStep(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryStep = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryStep:  DefaultRetryStep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// call performs a single JSON-RPC round trip. Retry policy lives in the
// public methods via withRetry so that every caller gets the same behavior.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (429)")
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// getTransactionResult is the base64-encoded getTransaction response shape.
type getTransactionResult struct {
	Slot        int64               `json:"slot"`
	BlockTime   *int64              `json:"blockTime"`
	Transaction []string            `json:"transaction"` // [data, "base64"]
	Meta        *transactionMetaRaw `json:"meta"`
}

type transactionMetaRaw struct {
	Err         interface{} `json:"err"`
	LogMessages []string    `json:"logMessages"`
}

// GetTransaction retrieves a confirmed transaction by signature with the raw
// base64 payload. Returns (nil, nil) when the node has no such transaction.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "base64",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *getTransactionResult
	err := withRetry(ctx, c.maxRetries, c.retryStep, func() error {
		result = nil
		return c.call(ctx, "getTransaction", params, &result)
	})
	if err != nil {
		return nil, fmt.Errorf("getTransaction %s: %w", signature, err)
	}

	if result == nil {
		// Transaction not found
		return nil, nil
	}

	tx := &Transaction{
		Slot:      result.Slot,
		Signature: signature,
	}
	if result.BlockTime != nil {
		tx.BlockTime = *result.BlockTime
	}
	if result.Meta != nil {
		tx.Meta = &TransactionMeta{
			Err:         result.Meta.Err,
			LogMessages: result.Meta.LogMessages,
		}
	}
	if len(result.Transaction) > 0 {
		tx.Data = result.Transaction[0]
	}

	return tx, nil
}

// getAccountInfoResult is the getAccountInfo response shape.
type getAccountInfoResult struct {
	Value *accountInfoRaw `json:"value"`
}

type accountInfoRaw struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [data, "base64"]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// GetAccountInfo retrieves account info by public key with base64-encoded
// data at confirmed commitment. Returns (nil, nil) for unknown accounts.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	params := []interface{}{
		pubkey,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": "confirmed",
		},
	}

	var result getAccountInfoResult
	err := withRetry(ctx, c.maxRetries, c.retryStep, func() error {
		result = getAccountInfoResult{}
		return c.call(ctx, "getAccountInfo", params, &result)
	})
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo %s: %w", pubkey, err)
	}

	if result.Value == nil {
		return nil, nil
	}

	info := &AccountInfo{
		Lamports:   result.Value.Lamports,
		Owner:      result.Value.Owner,
		Executable: result.Value.Executable,
		RentEpoch:  result.Value.RentEpoch,
	}
	if len(result.Value.Data) > 0 {
		info.Data = result.Value.Data[0]
	}

	return info, nil
}

// GetHealth checks that the node reports itself healthy.
func (c *HTTPClient) GetHealth(ctx context.Context) error {
	var result string
	if err := c.call(ctx, "getHealth", nil, &result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("node unhealthy: %s", result)
	}
	return nil
}
