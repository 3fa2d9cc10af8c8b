package loom

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Collector is a Sender that buffers delivered events for batch
// export. Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	events       *queue.Queue
	eventsCh     chan Event
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closed       atomic.Bool
	syncMode     bool // Bypass channel for synchronous collection.
	logger       *zap.Logger
}

// NewCollector creates a collector with the specified name and intake
// buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:     name,
		events:   queue.New(),
		eventsCh: make(chan Event, bufferSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		logger:   zap.NewNop(),
	}
	go c.start()
	return c
}

// SetLogger routes collector diagnostics to the given logger.
func (c *Collector) SetLogger(logger *zap.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving events from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining events before shutdown.
			for {
				select {
				case ev := <-c.eventsCh:
					c.buffer(ev)
				default:
					return // Clean shutdown.
				}
			}
		case ev := <-c.eventsCh:
			c.buffer(ev)
		}
	}
}

// Send buffers an event with backpressure protection: if the intake
// channel is full, the event is dropped and counted rather than
// blocking the completing span. The event's field bag is snapshotted,
// so later mutations by the caller are not observed.
// In sync mode events are buffered directly for deterministic testing.
func (c *Collector) Send(ev *Event) {
	// Nil check to prevent panic in the delivering goroutine.
	if ev == nil {
		c.droppedCount.Inc()
		return
	}

	snapshot := Event{
		Timestamp:  ev.Timestamp,
		SampleRate: ev.SampleRate,
		fields:     ev.copyFields(),
	}

	if c.syncMode {
		if c.closed.Load() {
			c.droppedCount.Inc()
			return
		}
		c.buffer(snapshot)
		return
	}

	select {
	case c.eventsCh <- snapshot:
		// Successfully queued.
	default:
		// Channel full - drop to prevent blocking.
		c.droppedCount.Inc()
	}
}

// buffer appends an event to the ring buffer. Called from the
// collector goroutine, and from producers in sync mode.
func (c *Collector) buffer(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events.Add(ev)
}

// Export drains every buffered event. Ownership of the returned
// events transfers to the caller; the internal buffer is left empty.
func (c *Collector) Export() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.events.Length()
	if n == 0 {
		return nil
	}

	result := make([]Event, 0, n)
	for c.events.Length() > 0 {
		result = append(result, c.events.Remove().(Event))
	}
	return result
}

// Count returns the current number of buffered events.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events.Length()
}

// DroppedCount returns the total number of events dropped due to
// backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, events are buffered directly without the channel,
// which makes tests deterministic by eliminating async behavior.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode = sync
}

// Reset clears all buffered events and resets the drop counter.
// Does not affect the running goroutine - use Close for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = queue.New()
	c.droppedCount.Store(0)
}

// Close shuts the collector down, draining the intake channel first.
// Safe to call more than once.
func (c *Collector) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stopCh)
	select {
	case <-c.done:
		// Clean shutdown completed.
	case <-time.After(100 * time.Millisecond):
		c.logger.Warn("collector drain timed out", zap.String("collector", c.name))
	}
}
