package broadcast

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pumpmonitor/internal/codec"
	"pumpmonitor/internal/domain"
	"pumpmonitor/internal/observability"
)

const (
	// sendQueueSize bounds the per-session outbound queue. A client that
	// falls this far behind is treated as dead and reaped on the next
	// fan-out pass.
	sendQueueSize = 256

	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongTimeout    = 60 * time.Second
	maxMessageSize = 4096
)

// Session is one connected WebSocket subscriber. Its filter has its own
// lock so a filter update from this client never contends with fan-out
// delivery to other sessions. Outbound order is preserved: one queue,
// one writer goroutine.
type Session struct {
	conn   *websocket.Conn
	addr   string
	logger *log.Logger

	filterMu sync.RWMutex
	filter   domain.FilterCriteria

	send   chan []byte
	done   chan struct{}
	closed atomic.Bool
}

func newSession(conn *websocket.Conn, logger *log.Logger) *Session {
	return &Session{
		conn:   conn,
		addr:   conn.RemoteAddr().String(),
		logger: logger,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Addr returns the remote address identifying this session.
func (s *Session) Addr() string { return s.addr }

// Filter returns the session's current filter criteria.
func (s *Session) Filter() domain.FilterCriteria {
	s.filterMu.RLock()
	defer s.filterMu.RUnlock()
	return s.filter
}

// SetFilter replaces the session's filter wholesale.
func (s *Session) SetFilter(criteria domain.FilterCriteria) {
	s.filterMu.Lock()
	s.filter = criteria
	s.filterMu.Unlock()
}

// Enqueue places an encoded event on the outbound queue without blocking.
// It reports false when the session is closed or the queue is full; either
// way the caller should treat the session as dead.
func (s *Session) Enqueue(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// close shuts the session down once; safe to call from any goroutine.
func (s *Session) close() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)
	s.conn.Close()
}

// writeLoop drains the outbound queue to the wire and keeps the
// connection alive with pings. Any write failure closes the session.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.close()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Printf("Write to %s failed: %v", s.addr, err)
				return
			}
			observability.RecordMessageSent()
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client control messages until the connection drops.
// Each text message is parsed as a SetFilter request; a malformed message
// is logged and skipped, the connection survives.
func (s *Session) readLoop() {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("Read from %s failed: %v", s.addr, err)
			}
			return
		}

		msg, err := codec.DecodeClientMessage(data)
		if err != nil {
			s.logger.Printf("Malformed message from %s: %v", s.addr, err)
			observability.RecordMalformedMessage()
			continue
		}

		s.SetFilter(msg.Filter)
		observability.RecordFilterUpdate()
		s.logger.Printf("Filter updated for %s", s.addr)
	}
}
