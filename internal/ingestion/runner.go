package ingestion

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"pumpmonitor/internal/bus"
	"pumpmonitor/internal/domain"
	"pumpmonitor/internal/observability"
	"pumpmonitor/internal/storage"
)

// Runner wires the subscriber, the decode worker pool, the event bus, and
// the optional persistence sink into one blocking pipeline.
type Runner struct {
	subscriber *LogSubscriber
	decoder    *TxDecoder
	bus        *bus.EventBus
	store      storage.TokenEventStore
	workers    int
	queueSize  int
	logger     *log.Logger

	eventsPublished atomic.Int64
	decodeErrors    atomic.Int64
	eventsStored    atomic.Int64
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Subscriber *LogSubscriber
	Decoder    *TxDecoder
	Bus        *bus.EventBus
	Store      storage.TokenEventStore // nil disables persistence
	Workers    int                     // default 4
	QueueSize  int                     // default 100
	Logger     *log.Logger
}

// NewRunner creates a new pipeline runner.
func NewRunner(opts RunnerOptions) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		subscriber: opts.Subscriber,
		decoder:    opts.Decoder,
		bus:        opts.Bus,
		store:      opts.Store,
		workers:    workers,
		queueSize:  queueSize,
		logger:     logger,
	}
}

// Run starts the pipeline and blocks until ctx is cancelled. Signatures are
// decoded by a worker pool, so events can reach the bus out of submission
// order; per-transaction failures are logged and skipped.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("starting pipeline: %d decode workers, queue %d", r.workers, r.queueSize)

	sigCh := make(chan string, r.queueSize)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.decodeLoop(ctx, sigCh)
		}()
	}

	err := r.subscriber.Run(ctx, sigCh)

	// The subscriber is the only sender; closing lets workers drain out.
	close(sigCh)
	wg.Wait()

	r.logger.Println("pipeline stopped")
	return err
}

// decodeLoop consumes signatures until the queue closes.
func (r *Runner) decodeLoop(ctx context.Context, sigCh <-chan string) {
	for sig := range sigCh {
		if ctx.Err() != nil {
			// Shutdown: drain the queue without hitting the RPC node.
			continue
		}

		observability.SetSignatureQueueDepth(len(sigCh))

		event, err := r.decoder.Decode(ctx, sig)
		if err != nil {
			r.decodeErrors.Add(1)
			r.logger.Printf("decode %s: %v", sig, err)
			continue
		}
		if event == nil {
			continue
		}

		r.logger.Printf("token created: %q (%s) mint=%s creator=%s",
			event.Token.Name, event.Token.Symbol, event.Token.MintAddress, event.Token.Creator)

		r.bus.Publish(event)
		r.eventsPublished.Add(1)

		r.persist(ctx, event)
	}
}

// persist writes the event to the archive sink. Failures are logged and
// swallowed; persistence never stalls or kills the pipeline.
func (r *Runner) persist(ctx context.Context, event *domain.TokenCreatedEvent) {
	if r.store == nil {
		return
	}

	if err := r.store.Insert(ctx, event); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return
		}
		r.logger.Printf("store event %s: %v", event.TransactionSignature, err)
		return
	}
	r.eventsStored.Add(1)
}

// RunnerStats is a point-in-time snapshot of pipeline counters.
type RunnerStats struct {
	EventsPublished int64
	DecodeErrors    int64
	EventsStored    int64
	BusDropped      uint64
}

// Stats returns current runner statistics.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		EventsPublished: r.eventsPublished.Load(),
		DecodeErrors:    r.decodeErrors.Load(),
		EventsStored:    r.eventsStored.Load(),
		BusDropped:      r.bus.Dropped(),
	}
}
