package ingestion

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"pumpmonitor/internal/observability"
	"pumpmonitor/internal/solana"
)

// reconnectDelay is the fixed wait between subscription attempts. The
// subscriber never gives up; a dead upstream just means a quiet monitor.
const reconnectDelay = 5 * time.Second

// WSDialer opens a fresh WebSocket client. Each reconnect dials a new one
// because a client is spent once its connection drops.
type WSDialer func(ctx context.Context) (solana.WSClient, error)

// LogSubscriber maintains the logsSubscribe stream for the configured
// program and feeds transaction signatures into the decode queue.
type LogSubscriber struct {
	dial           WSDialer
	program        string
	logger         *log.Logger
	reconnectDelay time.Duration
}

// NewLogSubscriber creates a subscriber for one program ID.
func NewLogSubscriber(dial WSDialer, program string, logger *log.Logger) *LogSubscriber {
	if logger == nil {
		logger = log.New(os.Stderr, "[subscriber] ", log.LstdFlags)
	}
	return &LogSubscriber{
		dial:           dial,
		program:        program,
		logger:         logger,
		reconnectDelay: reconnectDelay,
	}
}

// Run blocks until ctx is cancelled, reconnecting with a fixed delay every
// time the upstream connection fails. Signatures of non-errored
// notifications are sent to sigCh in arrival order.
func (s *LogSubscriber) Run(ctx context.Context, sigCh chan<- string) error {
	defer observability.SetSubscriberConnected(false)

	for {
		err := s.runOnce(ctx, sigCh)
		observability.SetSubscriberConnected(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Printf("connection lost: %v; reconnecting in %v", err, s.reconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

// runOnce serves a single connection until it fails or ctx is cancelled.
func (s *LogSubscriber) runOnce(ctx context.Context, sigCh chan<- string) error {
	client, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer client.Close()

	notifCh, err := client.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions: []string{s.program},
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.logger.Printf("subscribed to program %s", s.program)
	observability.SetSubscriberConnected(true)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-notifCh:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			observability.RecordNotification()

			// Failed transactions cannot have created a token.
			if notif.Err != nil || notif.Signature == "" {
				continue
			}

			select {
			case sigCh <- notif.Signature:
				observability.SetSignatureQueueDepth(len(sigCh))
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
