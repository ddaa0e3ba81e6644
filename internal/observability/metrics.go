// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	NotificationsReceived prometheus.Counter
	TransactionsDecoded   prometheus.Counter
	CreateEvents          prometheus.Counter
	DecodeErrors          *prometheus.CounterVec
	PDAMismatches         prometheus.Counter
	BusDroppedEvents      prometheus.Counter

	// Broadcast metrics
	ConnectedClients  prometheus.Gauge
	MessagesSent      prometheus.Counter
	FilterUpdates     prometheus.Counter
	MalformedMessages prometheus.Counter
	SessionsReaped    prometheus.Counter

	// Pipeline state
	SubscriberConnected prometheus.Gauge
	SignatureQueueDepth prometheus.Gauge
	LastEventTimestamp  prometheus.Gauge

	// Latency metrics
	DecodeDuration prometheus.Histogram
	RPCCallLatency *prometheus.HistogramVec

	// Storage metrics
	EventsStored    *prometheus.CounterVec
	StoreErrors     *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pumpmonitor"
	}

	return &Metrics{
		// Ingestion metrics
		NotificationsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "notifications_received_total",
			Help:      "Total number of logsSubscribe notifications received",
		}),
		TransactionsDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_decoded_total",
			Help:      "Total number of transactions fetched and decoded",
		}),
		CreateEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "create_events_total",
			Help:      "Total number of token creation events produced",
		}),
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_errors_total",
			Help:      "Total number of decode failures by stage",
		}, []string{"stage"}),
		PDAMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "pda_mismatches_total",
			Help:      "Total number of bonding curve addresses that failed PDA verification",
		}),
		BusDroppedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dropped_events_total",
			Help:      "Total number of events evicted from the bus under backpressure",
		}),

		// Broadcast metrics
		ConnectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "connected_clients",
			Help:      "Current number of connected WebSocket clients",
		}),
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "messages_sent_total",
			Help:      "Total number of event messages sent to clients",
		}),
		FilterUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "filter_updates_total",
			Help:      "Total number of accepted SetFilter messages",
		}),
		MalformedMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "malformed_messages_total",
			Help:      "Total number of client messages that failed to parse",
		}),
		SessionsReaped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "sessions_reaped_total",
			Help:      "Total number of dead sessions removed after fan-out",
		}),

		// Pipeline state
		SubscriberConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "subscriber_connected",
			Help:      "Whether the logsSubscribe connection is up (1) or down (0)",
		}),
		SignatureQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "signature_queue_depth",
			Help:      "Current number of signatures waiting for decode",
		}),
		LastEventTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the most recent creation event",
		}),

		// Latency metrics
		DecodeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_duration_seconds",
			Help:      "Full signature-to-event decode duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Storage metrics
		EventsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "events_stored_total",
			Help:      "Total number of events persisted by backend",
		}, []string{"backend"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "store_errors_total",
			Help:      "Total number of persistence failures by backend",
		}, []string{"backend"}),
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordNotification increments the notifications received counter.
func RecordNotification() {
	DefaultMetrics.NotificationsReceived.Inc()
}

// RecordDecoded increments the transactions decoded counter.
func RecordDecoded() {
	DefaultMetrics.TransactionsDecoded.Inc()
}

// RecordCreateEvent increments the creation event counter and stamps the
// last-event gauge.
func RecordCreateEvent(unixSeconds int64) {
	DefaultMetrics.CreateEvents.Inc()
	DefaultMetrics.LastEventTimestamp.Set(float64(unixSeconds))
}

// RecordDecodeError records a decode failure at the given stage.
func RecordDecodeError(stage string) {
	DefaultMetrics.DecodeErrors.WithLabelValues(stage).Inc()
}

// RecordPDAMismatch increments the PDA verification mismatch counter.
func RecordPDAMismatch() {
	DefaultMetrics.PDAMismatches.Inc()
}

// RecordBusDropped adds to the bus eviction counter.
func RecordBusDropped(n uint64) {
	DefaultMetrics.BusDroppedEvents.Add(float64(n))
}

// SetConnectedClients updates the connected clients gauge.
func SetConnectedClients(n int) {
	DefaultMetrics.ConnectedClients.Set(float64(n))
}

// RecordMessageSent increments the messages sent counter.
func RecordMessageSent() {
	DefaultMetrics.MessagesSent.Inc()
}

// RecordFilterUpdate increments the filter updates counter.
func RecordFilterUpdate() {
	DefaultMetrics.FilterUpdates.Inc()
}

// RecordMalformedMessage increments the malformed client message counter.
func RecordMalformedMessage() {
	DefaultMetrics.MalformedMessages.Inc()
}

// RecordSessionsReaped adds to the reaped sessions counter.
func RecordSessionsReaped(n int) {
	DefaultMetrics.SessionsReaped.Add(float64(n))
}

// SetSubscriberConnected updates the subscriber connection gauge.
func SetSubscriberConnected(connected bool) {
	if connected {
		DefaultMetrics.SubscriberConnected.Set(1)
	} else {
		DefaultMetrics.SubscriberConnected.Set(0)
	}
}

// SetSignatureQueueDepth updates the decode queue depth gauge.
func SetSignatureQueueDepth(n int) {
	DefaultMetrics.SignatureQueueDepth.Set(float64(n))
}

// ObserveDecodeDuration records a signature-to-event decode duration.
func ObserveDecodeDuration(seconds float64) {
	DefaultMetrics.DecodeDuration.Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordEventStored increments the stored events counter for a backend.
func RecordEventStored(backend string) {
	DefaultMetrics.EventsStored.WithLabelValues(backend).Inc()
}

// RecordStoreError increments the store error counter for a backend.
func RecordStoreError(backend string) {
	DefaultMetrics.StoreErrors.WithLabelValues(backend).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
}
