package skiff

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skiff-works/skiff/pkg/syncmap"
)

// CollectorFilter decides whether a collector wants an event.
type CollectorFilter func(event *FullEvent) bool

// CollectorOptions bound a collector's lifetime. A zero Timeout means no
// deadline and a zero MaxEvents means no count limit.
type CollectorOptions struct {
	Timeout   time.Duration
	MaxEvents int32
	Buffer    int
}

// Collector is a subscription for events matching a filter. Events are
// delivered on a buffered channel; a slow consumer loses events rather
// than stalling dispatch.
type Collector struct {
	id uint64

	filter CollectorFilter
	events chan *FullEvent

	expiresAt time.Time
	remaining atomic.Int32

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	registry *CollectorRegistry
}

// Events is the delivery channel. It is never closed; wait on Done to
// detect expiry.
func (c *Collector) Events() <-chan *FullEvent {
	return c.events
}

// Done is closed when the collector expires, exhausts its event budget or
// is closed explicitly.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) Close() {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return
	}

	c.closed = true
	close(c.done)

	c.mu.Unlock()

	c.registry.collectors.Delete(c.id)
}

// offer hands the event to the collector if the filter matches and the
// collector still has budget. Returns false when the collector is spent.
func (c *Collector) offer(event *FullEvent) bool {
	if !c.expiresAt.IsZero() && time.Now().After(c.expiresAt) {
		c.Close()

		return false
	}

	if !c.filter(event) {
		return true
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return false
	}

	select {
	case c.events <- event:
	default:
		// Consumer is behind; dropping beats blocking the pipeline.
	}

	c.mu.Unlock()

	if c.remaining.Load() > 0 && c.remaining.Add(-1) <= 0 {
		c.Close()

		return false
	}

	return true
}

// CollectorRegistry fans dispatched events out to active collectors.
type CollectorRegistry struct {
	collectors *syncmap.Map[uint64, *Collector]
	nextID     atomic.Uint64

	closed atomic.Bool
}

func NewCollectorRegistry() *CollectorRegistry {
	return &CollectorRegistry{
		collectors: &syncmap.Map[uint64, *Collector]{},
	}
}

// Add registers a collector. The filter runs on the dispatch goroutine,
// so it must be fast and must not block.
func (r *CollectorRegistry) Add(filter CollectorFilter, options CollectorOptions) (*Collector, error) {
	if r.closed.Load() {
		return nil, ErrCollectorClosed
	}

	if filter == nil {
		filter = func(*FullEvent) bool { return true }
	}

	buffer := options.Buffer
	if buffer <= 0 {
		buffer = 16
	}

	collector := &Collector{
		id: r.nextID.Add(1),

		filter: filter,
		events: make(chan *FullEvent, buffer),

		done: make(chan struct{}),

		registry: r,
	}

	if options.Timeout > 0 {
		collector.expiresAt = time.Now().Add(options.Timeout)
	}

	collector.remaining.Store(options.MaxEvents)

	r.collectors.Store(collector.id, collector)

	return collector, nil
}

// Offer fans an event out to every active collector, pruning the ones
// that have expired or exhausted their budget.
func (r *CollectorRegistry) Offer(event *FullEvent) {
	r.collectors.Range(func(_ uint64, collector *Collector) bool {
		collector.offer(event)

		return true
	})
}

// Close shuts the registry and every remaining collector.
func (r *CollectorRegistry) Close() {
	r.closed.Store(true)

	r.collectors.Range(func(_ uint64, collector *Collector) bool {
		collector.Close()

		return true
	})
}

// AwaitEvent blocks until one event matching the filter arrives, the
// timeout lapses or the context is cancelled.
func (r *CollectorRegistry) AwaitEvent(ctx context.Context, filter CollectorFilter, timeout time.Duration) (*FullEvent, error) {
	collector, err := r.Add(filter, CollectorOptions{
		Timeout:   timeout,
		MaxEvents: 1,
		Buffer:    1,
	})
	if err != nil {
		return nil, err
	}

	defer collector.Close()

	var deadline <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		deadline = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-deadline:
		return nil, ErrAwaitTimeout
	case event := <-collector.events:
		return event, nil
	}
}
