package solana

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxRetries is the number of retries after the initial attempt.
	DefaultMaxRetries = 3
	// DefaultRetryStep is the base delay between attempts. The actual delay
	// grows linearly: step after the first failure, 2*step after the second.
	DefaultRetryStep = 500 * time.Millisecond
)

// RPCError represents a JSON-RPC error response from the node. These are
// definitive answers from the RPC layer and are never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// withRetry runs fn up to 1+maxRetries times. Transport failures and HTTP
// status errors are retried with a linearly growing delay; RPC-level errors
// abort immediately. Context cancellation aborts the wait.
func withRetry(ctx context.Context, maxRetries int, step time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := step * time.Duration(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		// RPC errors are not retried: the node answered, the answer is final.
		var rpcErr *RPCError
		if errors.As(lastErr, &rpcErr) {
			return lastErr
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
