// Package main runs the pump.fun token creation monitor:
// - Ingestion (continuous): logsSubscribe feed, transaction decode worker pool
// - Broadcast: WebSocket fan-out with per-client filters
// - Admin: health/metrics/status HTTP endpoints
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pumpmonitor/internal/broadcast"
	"pumpmonitor/internal/bus"
	"pumpmonitor/internal/codec"
	"pumpmonitor/internal/ingestion"
	"pumpmonitor/internal/observability"
	"pumpmonitor/internal/solana"
	"pumpmonitor/internal/storage"
	chstore "pumpmonitor/internal/storage/clickhouse"
	"pumpmonitor/internal/storage/memory"
	"pumpmonitor/internal/storage/migrations"
	pgstore "pumpmonitor/internal/storage/postgres"
)

// Server holds all components of the monitor service.
type Server struct {
	// Configuration
	program  string
	backend  string
	wsAddr   string
	httpAddr string

	// Components
	runner   *ingestion.Runner
	wsServer *broadcast.Server
	logger   *log.Logger

	// State
	started time.Time
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcURL := flag.String("rpc-url", os.Getenv("SOLANA_RPC_HTTP_URL"), "Solana JSON-RPC HTTP endpoint")
	wsURL := flag.String("ws-url", os.Getenv("SOLANA_RPC_WSS_URL"), "Solana WebSocket endpoint")
	program := flag.String("program", getEnv("PUMP_FUN_PROGRAM_ID", codec.PumpFunProgramID), "Program to monitor for token creation")
	port := flag.Int("port", getEnvInt("WEBSOCKET_SERVER_PORT", 8080), "WebSocket broadcast port")
	httpAddr := flag.String("http-addr", getEnv("HTTP_ADDR", ":8081"), "Admin HTTP address (health, metrics, status)")
	backend := flag.String("storage-backend", getEnv("STORAGE_BACKEND", "memory"), "Event store backend: memory, postgres or clickhouse")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	decodeWorkers := flag.Int("decode-workers", getEnvInt("DECODE_WORKERS", 4), "Concurrent transaction decode workers")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required configuration
	if *rpcURL == "" {
		logger.Fatal("--rpc-url is required (or SOLANA_RPC_HTTP_URL)")
	}
	if *wsURL == "" {
		logger.Fatal("--ws-url is required (or SOLANA_RPC_WSS_URL)")
	}
	if *program == "" {
		logger.Fatal("--program is required (or PUMP_FUN_PROGRAM_ID)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create event store
	store, cleanup, err := createStore(ctx, *backend, *postgresDSN, *clickhouseDSN, logger)
	if err != nil {
		logger.Fatalf("Failed to create event store: %v", err)
	}
	defer cleanup()
	logger.Printf("Event store: %s", *backend)

	// Pipeline: subscriber -> decode workers -> bus -> fan-out
	eventBus := bus.New(bus.DefaultCapacity)

	rpc := solana.NewHTTPClient(*rpcURL)
	decoder := ingestion.NewTxDecoder(rpc, *program,
		log.New(os.Stdout, "[decoder] ", log.LstdFlags|log.Lshortfile))

	wsEndpoint := *wsURL
	dial := func(ctx context.Context) (solana.WSClient, error) {
		return solana.NewWSClient(ctx, wsEndpoint, nil)
	}
	subscriber := ingestion.NewLogSubscriber(dial, *program,
		log.New(os.Stdout, "[subscriber] ", log.LstdFlags|log.Lshortfile))

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Subscriber: subscriber,
		Decoder:    decoder,
		Bus:        eventBus,
		Store:      store,
		Workers:    *decodeWorkers,
		Logger:     log.New(os.Stdout, "[ingestion] ", log.LstdFlags|log.Lshortfile),
	})

	wsServer := broadcast.NewServer(broadcast.Options{
		Bus:    eventBus,
		Logger: log.New(os.Stdout, "[broadcast] ", log.LstdFlags|log.Lshortfile),
	})

	server := &Server{
		program:  *program,
		backend:  *backend,
		wsAddr:   fmt.Sprintf(":%d", *port),
		httpAddr: *httpAddr,
		runner:   runner,
		wsServer: wsServer,
		logger:   logger,
		started:  time.Now(),
	}

	logger.Printf("Monitoring program %s", *program)

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Run the monitor
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStore creates the configured event store and its cleanup func.
func createStore(ctx context.Context, backend, postgresDSN, clickhouseDSN string, logger *log.Logger) (storage.TokenEventStore, func(), error) {
	switch backend {
	case "memory":
		return memory.NewTokenEventStore(), func() {}, nil

	case "postgres":
		if postgresDSN == "" {
			return nil, nil, fmt.Errorf("--postgres-dsn is required for the postgres backend")
		}
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Println("Postgres migrations applied")
		return pgstore.NewTokenEventStore(pool), func() { pool.Close() }, nil

	case "clickhouse":
		if clickhouseDSN == "" {
			return nil, nil, fmt.Errorf("--clickhouse-dsn is required for the clickhouse backend")
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		logger.Println("ClickHouse migrations applied")
		return chstore.NewTokenEventStore(conn), func() { conn.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q (want memory, postgres or clickhouse)", backend)
	}
}

// Run starts all components and blocks until ctx is cancelled or a fatal
// error occurs. Per-connection failures are handled inside the components;
// the WebSocket listener failing to bind is the one fatal infrastructure
// error.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting pump.fun token monitor...")

	errCh := make(chan error, 3)

	// Start ingestion pipeline in background
	go func() {
		if err := s.runner.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("ingestion: %w", err)
		}
	}()

	// Start broadcast fan-out in background
	go func() {
		if err := s.wsServer.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("broadcast: %w", err)
		}
	}()

	// Start WebSocket listener
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.wsServer.HandleWS)
		s.logger.Printf("WebSocket server listening on %s", s.wsAddr)
		if err := http.ListenAndServe(s.wsAddr, mux); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("websocket listener: %w", err)
		}
	}()

	// Start admin HTTP server
	go s.startAdminServer()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// startAdminServer starts the HTTP server for health/metrics/status.
func (s *Server) startAdminServer() {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Printf("Admin HTTP server on %s", s.httpAddr)
	if err := http.ListenAndServe(s.httpAddr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("Admin HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Service          string    `json:"service"`
	Status           string    `json:"status"`
	Started          time.Time `json:"started"`
	Uptime           string    `json:"uptime"`
	Program          string    `json:"program"`
	StorageBackend   string    `json:"storage_backend"`
	ConnectedClients int       `json:"connected_clients"`
	EventsPublished  int64     `json:"events_published"`
	EventsStored     int64     `json:"events_stored"`
	DecodeErrors     int64     `json:"decode_errors"`
	BusDropped       uint64    `json:"bus_dropped"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.runner.Stats()

	resp := StatusResponse{
		Service:          "pumpmonitor",
		Status:           "running",
		Started:          s.started,
		Uptime:           time.Since(s.started).String(),
		Program:          s.program,
		StorageBackend:   s.backend,
		ConnectedClients: s.wsServer.ClientCount(),
		EventsPublished:  stats.EventsPublished,
		EventsStored:     stats.EventsStored,
		DecodeErrors:     stats.DecodeErrors,
		BusDropped:       stats.BusDropped,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// getEnv returns the environment variable value or a fallback.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the environment variable parsed as int, or a fallback.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
