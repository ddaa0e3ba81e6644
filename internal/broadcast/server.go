// Package broadcast fans decoded token creation events out to WebSocket
// subscribers. Each connection becomes a Session with its own filter and
// outbound queue; a single fan-out loop consumes the event bus, encodes
// each event once and delivers the shared bytes to every matching session.
package broadcast

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/websocket"

	"pumpmonitor/internal/bus"
	"pumpmonitor/internal/codec"
	"pumpmonitor/internal/domain"
	"pumpmonitor/internal/filter"
	"pumpmonitor/internal/observability"
)

// Options configures the broadcast server.
type Options struct {
	// Bus is the event source consumed by the fan-out loop. Required.
	Bus *bus.EventBus

	// Logger defaults to a "[broadcast]" stdout logger.
	Logger *log.Logger
}

// Server upgrades HTTP requests to WebSocket sessions and fans bus events
// out to them. Subscribers are anonymous; there is no auth layer.
type Server struct {
	bus      *bus.EventBus
	registry *Registry
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a broadcast server consuming the given bus.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[broadcast] ", log.LstdFlags|log.Lshortfile)
	}

	return &Server{
		bus:      opts.Bus,
		registry: NewRegistry(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ClientCount returns the number of connected sessions.
func (s *Server) ClientCount() int {
	return s.registry.Len()
}

// HandleWS upgrades the request and serves the session until the client
// disconnects. New sessions start with a match-all filter.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("Upgrade failed: %v", err)
		return
	}

	sess := newSession(conn, s.logger)
	s.registry.Add(sess)
	s.logger.Printf("Client connected: %s (%d total)", sess.Addr(), s.registry.Len())

	go sess.writeLoop()

	// Blocks until the client disconnects or the read side fails.
	sess.readLoop()

	s.registry.Remove(sess.Addr())
	s.logger.Printf("Client disconnected: %s (%d total)", sess.Addr(), s.registry.Len())
}

// Run consumes events from the bus and fans them out until ctx is
// cancelled or the bus closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting broadcast fan-out...")

	for {
		event, skipped, err := s.bus.Receive(ctx)
		if err != nil {
			if err == bus.ErrClosed {
				s.logger.Println("Event bus closed, stopping fan-out")
				return nil
			}
			return err
		}

		if skipped > 0 {
			s.logger.Printf("Fan-out lagging: bus dropped %d event(s)", skipped)
			observability.RecordBusDropped(skipped)
		}

		s.broadcast(event)
	}
}

// broadcast delivers one event to every session whose filter matches.
// Sessions whose outbound path has failed are removed in one batch after
// the pass so a dead client never blocks delivery to the rest.
func (s *Server) broadcast(event *domain.TokenCreatedEvent) {
	sessions := s.registry.Snapshot()
	if len(sessions) == 0 {
		return
	}

	payload, err := codec.EncodeEvent(event)
	if err != nil {
		s.logger.Printf("Encode event %s: %v", event.TransactionSignature, err)
		return
	}

	var dead []string
	for _, sess := range sessions {
		if !filter.Matches(event, sess.Filter()) {
			continue
		}
		if !sess.Enqueue(payload) {
			sess.close()
			dead = append(dead, sess.Addr())
		}
	}

	if len(dead) > 0 {
		s.registry.RemoveBatch(dead)
		observability.RecordSessionsReaped(len(dead))
		s.logger.Printf("Reaped %d dead session(s), %d remaining", len(dead), s.registry.Len())
	}
}
