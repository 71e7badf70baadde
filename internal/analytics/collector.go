package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/kafka"
)

// Publisher is the Kafka side of the collector; *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type CollectorOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector buffers events without blocking the request path and publishes
// them in batches, whichever comes first of BatchSize events or
// FlushInterval. Events are dropped when the buffer is full or the
// collector is closed.
type Collector struct {
	publisher Publisher
	opts      CollectorOptions

	mu      sync.RWMutex
	closed  bool
	eventCh chan SearchEvent

	done      chan struct{}
	dropped   atomic.Int64
	published atomic.Int64
	logger    *slog.Logger
}

func NewCollector(publisher Publisher, opts CollectorOptions) *Collector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	return &Collector{
		publisher: publisher,
		opts:      opts,
		eventCh:   make(chan SearchEvent, opts.BufferSize),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "analytics-collector"),
	}
}

// Start runs the publish loop until Close. ctx bounds individual publishes.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started", "buffer_size", c.opts.BufferSize, "batch_size", c.opts.BatchSize)
}

func (c *Collector) Track(event SearchEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics events dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

// Close stops accepting events, flushes what is buffered and waits for the
// publish loop. It is safe to call more than once.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) Dropped() int64   { return c.dropped.Load() }
func (c *Collector) Published() int64 { return c.published.Load() }

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.opts.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("analytics batch publish failed", "events", len(batch), "error", err)
		} else {
			c.published.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				flush(flushCtx)
				cancel()
				return
			}
			batch = append(batch, kafka.Event{Key: event.Query, Value: event})
			if len(batch) >= c.opts.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}
