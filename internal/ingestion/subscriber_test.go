package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpmonitor/internal/solana"
)

// fakeWSClient implements a controllable solana.WSClient for testing.
type fakeWSClient struct {
	mu     sync.Mutex
	ch     chan solana.LogNotification
	filter solana.LogsFilter
	subErr error
	closed bool
}

func newFakeWSClient() *fakeWSClient {
	return &fakeWSClient{
		ch: make(chan solana.LogNotification, 100),
	}
}

func (c *fakeWSClient) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subErr != nil {
		return nil, c.subErr
	}
	c.filter = filter
	return c.ch, nil
}

func (c *fakeWSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func (c *fakeWSClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeWSClient) send(n solana.LogNotification) {
	c.ch <- n
}

// dialSequence returns a WSDialer handing out the given clients in order
// and counting dials. Dialing past the end blocks until ctx is cancelled.
func dialSequence(clients ...*fakeWSClient) (WSDialer, *int, *sync.Mutex) {
	var mu sync.Mutex
	dials := 0

	dial := func(ctx context.Context) (solana.WSClient, error) {
		mu.Lock()
		i := dials
		dials++
		mu.Unlock()

		if i < len(clients) {
			return clients[i], nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return dial, &dials, &mu
}

func TestLogSubscriber_ForwardsSignatures(t *testing.T) {
	client := newFakeWSClient()
	dial, _, _ := dialSequence(client)

	sub := NewLogSubscriber(dial, "ProgramXYZ", testLogger())
	sigCh := make(chan string, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, sigCh) }()

	client.send(solana.LogNotification{Signature: "sig1", Slot: 100})
	client.send(solana.LogNotification{Signature: "failedsig", Slot: 101, Err: map[string]interface{}{"InstructionError": []interface{}{}}})
	client.send(solana.LogNotification{Signature: "", Slot: 102})
	client.send(solana.LogNotification{Signature: "sig2", Slot: 103})

	assert.Equal(t, "sig1", recvSig(t, sigCh))
	assert.Equal(t, "sig2", recvSig(t, sigCh))

	// Errored and empty-signature notifications never reach the queue.
	select {
	case sig := <-sigCh:
		t.Fatalf("unexpected signature forwarded: %s", sig)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLogSubscriber_SubscribesWithProgramFilter(t *testing.T) {
	client := newFakeWSClient()
	dial, _, _ := dialSequence(client)

	sub := NewLogSubscriber(dial, "ProgramXYZ", testLogger())
	sigCh := make(chan string, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, sigCh) }()

	// Wait for the subscription to land, then inspect the filter.
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.filter.Mentions) > 0
	}, 2*time.Second, 10*time.Millisecond)

	client.mu.Lock()
	assert.Equal(t, []string{"ProgramXYZ"}, client.filter.Mentions)
	client.mu.Unlock()

	cancel()
	<-done
}

func TestLogSubscriber_ReconnectsAfterChannelClose(t *testing.T) {
	first := newFakeWSClient()
	second := newFakeWSClient()
	dial, dials, dialsMu := dialSequence(first, second)

	sub := NewLogSubscriber(dial, "ProgramXYZ", testLogger())
	sub.reconnectDelay = 10 * time.Millisecond

	sigCh := make(chan string, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, sigCh) }()

	first.send(solana.LogNotification{Signature: "sig1", Slot: 100})
	assert.Equal(t, "sig1", recvSig(t, sigCh))

	// Simulate connection loss: the client closes its channel.
	close(first.ch)

	// Events flow again once the second connection is up.
	require.Eventually(t, func() bool {
		dialsMu.Lock()
		defer dialsMu.Unlock()
		return *dials >= 2
	}, 2*time.Second, 10*time.Millisecond)

	second.send(solana.LogNotification{Signature: "sig2", Slot: 200})
	assert.Equal(t, "sig2", recvSig(t, sigCh))

	// The spent client was closed during teardown.
	assert.True(t, first.isClosed())

	cancel()
	<-done
}

func TestLogSubscriber_RetriesFailedDial(t *testing.T) {
	attempts := 0
	var mu sync.Mutex

	client := newFakeWSClient()
	dial := func(ctx context.Context) (solana.WSClient, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return client, nil
	}

	sub := NewLogSubscriber(dial, "ProgramXYZ", testLogger())
	sub.reconnectDelay = 10 * time.Millisecond

	sigCh := make(chan string, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, sigCh) }()

	// Third dial succeeds and the stream works.
	client.send(solana.LogNotification{Signature: "sig1", Slot: 100})
	assert.Equal(t, "sig1", recvSig(t, sigCh))

	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()

	cancel()
	<-done
}

func TestLogSubscriber_StopsOnCancelWhileWaiting(t *testing.T) {
	dial := func(ctx context.Context) (solana.WSClient, error) {
		return nil, errors.New("always down")
	}

	sub := NewLogSubscriber(dial, "ProgramXYZ", testLogger())
	sub.reconnectDelay = time.Hour // cancel must cut the wait short

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, make(chan string, 1)) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// recvSig reads one signature with a timeout.
func recvSig(t *testing.T, sigCh <-chan string) string {
	t.Helper()
	select {
	case sig := <-sigCh:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signature")
		return ""
	}
}
