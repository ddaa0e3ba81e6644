package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Logger receives connection-level diagnostics. Defaults to stderr.
	Logger *log.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket. A client wraps a
// single connection for its whole lifetime: when the connection drops, all
// subscription channels are closed and the client is spent. Callers decide
// whether and when to dial a replacement.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subscriptions maps subscription ID to channel
	subs   map[int64]chan LogNotification
	subsMu sync.RWMutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// subsOnce guards closing subscription channels exactly once
	subsOnce sync.Once
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[ws] ", log.LstdFlags)
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger,
		subs:        make(map[int64]chan LogNotification),
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	// Pongs extend the read deadline so an idle but healthy connection
	// survives quiet periods between notifications.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.conn = conn
	return nil
}

// SubscribeLogs subscribes to program logs matching the filter.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)

	// Build subscription request
	mentionsFilter := make(map[string]interface{})
	if len(filter.Mentions) > 0 {
		mentionsFilter["mentions"] = filter.Mentions
	} else {
		mentionsFilter["all"] = nil
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentionsFilter,
			map[string]string{
				"commitment": "confirmed",
				"encoding":   "jsonParsed",
			},
		},
	}

	// Create channel to receive subscription ID
	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	// Send subscribe request
	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
		return nil, fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	// Wait for subscription confirmation (30s timeout for slow providers)
	var subID int64
	select {
	case subID = <-confirmCh:
	case <-time.After(30 * time.Second):
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
		return nil, fmt.Errorf("subscription timeout after 30s")
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	case <-ctx.Done():
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
		return nil, ctx.Err()
	}

	if subID == 0 {
		return nil, fmt.Errorf("client closed")
	}

	// Blocking send plus a deep buffer means no notification loss; bounded
	// drop policies live downstream where the consumer can count skips.
	ch := make(chan LogNotification, 10000)
	c.subsMu.Lock()
	c.subs[subID] = ch
	c.subsMu.Unlock()

	return ch, nil
}

// Close closes the WebSocket connection and all subscription channels.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	// Wait for reader and pinger to stop before closing channels they
	// could still be sending on.
	c.wg.Wait()

	c.closeSubs()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	return nil
}

// closeSubs closes every subscription channel exactly once.
func (c *WSClientImpl) closeSubs() {
	c.subsOnce.Do(func() {
		c.subsMu.Lock()
		for id, ch := range c.subs {
			close(ch)
			delete(c.subs, id)
		}
		c.subsMu.Unlock()
	})
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
// It exits on the first read error; if that error was not caused by Close,
// subscription channels are closed to tell consumers the connection died.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Printf("connection lost: %v", err)
				c.closeSubs()
			}
			return
		}

		c.handleMessage(message)
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	// Try to parse as subscription response first
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	// Try to parse as notification
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "logsNotification" {
		c.handleLogsNotification(&notif)
		return
	}

	// Check for error response
	var errResp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      uint64 `json:"id"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// Log but keep reading; the pending subscribe will time out.
		c.logger.Printf("error response: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
		return
	}

	c.logger.Printf("unhandled message: %s", truncateForLog(message))
}

// handleSubscribeResponse handles subscription confirmation.
func (c *WSClientImpl) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handleLogsNotification dispatches log notification to subscriber.
func (c *WSClientImpl) handleLogsNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	subID := notif.Params.Subscription
	value := notif.Params.Result.Value

	logNotif := LogNotification{
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}

	// Get slot from context if available
	if notif.Params.Result.Context != nil {
		logNotif.Slot = notif.Params.Result.Context.Slot
	}

	c.subsMu.RLock()
	ch, ok := c.subs[subID]
	c.subsMu.RUnlock()

	if ok {
		// Block until we can send - never drop events
		select {
		case ch <- logNotif:
		case <-c.done:
			return
		}
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will notice
				}
			}
			c.connMu.Unlock()
		}
	}
}

func truncateForLog(b []byte) string {
	const max = 256
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
