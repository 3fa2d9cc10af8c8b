package loom

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/zoobzio/clockz"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrWorkerPoolEnabled is returned by EnableWorkerPool when a pool is
// already running.
var ErrWorkerPoolEnabled = errors.New("worker pool already enabled")

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Client owns the shared machinery of tracing: configuration, the
// sampling decider, id generation, the sender, and the finished-span
// handler registry.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for readability over memory
type Client struct {
	cfg    Config
	logger *zap.Logger
	clock  clockz.Clock

	decider   Decider
	decisions *decisionCache
	sender    Sender

	handlers     []handlerEntry
	panicHook    func(handlerID uint64, r interface{})
	workers      *workerPool
	handlersLock sync.RWMutex
	nextID       atomic.Uint64
	droppedTasks atomic.Uint64

	traceIDPool *IDPool
	spanIDPool  *IDPool
	idPoolOnce  sync.Once

	stats *clientStats
}

// New creates a client from cfg. Zero-value fields take defaults: a
// rate of 1, a nop logger, the real clock, and the built-in cached
// deterministic decider.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:      cfg,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		sender:   cfg.Sender,
		handlers: make([]handlerEntry, 0),
		stats:    newClientStats(),
	}

	c.decider = cfg.Decider
	if c.decider == nil {
		if cfg.DisableDecisionCache {
			c.decider = deterministicDecider
		} else if memo, err := newDecisionCache(deterministicDecider, cfg.DecisionCacheSize); err != nil {
			c.logger.Warn("decision cache unavailable, sampling without memoization", zap.Error(err))
			c.decider = deterministicDecider
		} else {
			c.decisions = memo
			c.decider = memo.decide
		}
	}

	return c, nil
}

// NewTrace starts a trace and its root span. An empty traceID
// generates one. A non-empty parentID links the root to an upstream
// span from another process; such a root reports span type "subroot".
// The root becomes the current span in the returned context.
func (c *Client) NewTrace(ctx context.Context, traceID, parentID string) (context.Context, *Trace) {
	if ctx == nil {
		ctx = context.Background()
	}

	if traceID == "" {
		c.ensureIDPools()
		traceID = c.traceIDPool.Get()
	}

	t := newTrace(c, traceID)
	root := c.newSpan(t, parentID, true)
	root.sampleHook = c.cfg.SampleHook
	root.presendHook = c.cfg.PresendHook
	root.traceAware = c.cfg.TraceAwareSampling
	t.rootID = root.spanID

	return ContextWithSpan(ctx, root), t
}

// StartSpan creates a named span and returns it with a context that
// carries it as the current span. If the context already holds a span,
// the new one is its child; otherwise a fresh trace is started and the
// new span is its root.
func (c *Client) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	if parent := SpanFromContext(ctx); parent != nil {
		childCtx, child := parent.CreateChild(ctx)
		child.AddField(FieldName, name)
		return childCtx, child
	}

	traceCtx, trace := c.NewTrace(ctx, "", "")
	root := trace.RootSpan()
	root.AddField(FieldName, name)
	return traceCtx, root
}

// OnSpanFinished registers a synchronous handler called exactly once
// for every span that finishes, whatever path it finished through.
// Returns an id for RemoveHandler.
func (c *Client) OnSpanFinished(handler SpanHandler) uint64 {
	return c.registerHandler(handler, false)
}

// OnSpanFinishedAsync registers an asynchronous finished-span handler.
// Async handlers must treat the span as read-only: a span marked via
// MarkSendByParent is reported finished before its parent completes it.
func (c *Client) OnSpanFinishedAsync(handler SpanHandler) uint64 {
	return c.registerHandler(handler, true)
}

func (c *Client) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := c.nextID.Inc()

	c.handlersLock.Lock()
	defer c.handlersLock.Unlock()

	c.handlers = append(c.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by id.
func (c *Client) RemoveHandler(id uint64) {
	c.handlersLock.Lock()
	defer c.handlersLock.Unlock()

	// Preserve order
	for i, h := range c.handlers {
		if h.id == id {
			copy(c.handlers[i:], c.handlers[i+1:])
			c.handlers = c.handlers[:len(c.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function called when a finished-span handler
// panics. Panics are always logged; the hook adds caller-side
// handling on top.
func (c *Client) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	c.panicHook = hook
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
// Without one, each async notification runs on its own goroutine.
func (c *Client) EnableWorkerPool(workers, queueSize int) error {
	if c.workers != nil {
		return ErrWorkerPoolEnabled
	}
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	c.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &c.droppedTasks,
	}

	c.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.workers.run()
	}

	return nil
}

// DroppedTasks returns the number of async notifications dropped due
// to a full worker queue.
func (c *Client) DroppedTasks() uint64 {
	return c.droppedTasks.Load()
}

// Stats returns a snapshot of the client's span counters.
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}

// Close shuts the client down: handlers stop firing, in-flight async
// tasks drain, and id generation stops. Spans already created remain
// usable. The sender is owned by the caller and is closed separately.
func (c *Client) Close() {
	c.handlersLock.Lock()
	c.handlers = nil
	c.handlersLock.Unlock()

	if c.workers != nil {
		c.workers.shutdown()
		c.workers = nil
	}

	if c.traceIDPool != nil {
		c.traceIDPool.Close()
	}
	if c.spanIDPool != nil {
		c.spanIDPool.Close()
	}

	if c.decisions != nil {
		c.decisions.close()
	}

	c.logger.Debug("client closed")
}

// newSpan constructs a span, registers it in the trace arena, and
// stamps its start time.
func (c *Client) newSpan(t *Trace, parentID string, isRoot bool) *Span {
	c.ensureIDPools()

	s := &Span{
		trace:    t,
		ev:       newEvent(c),
		spanID:   c.spanIDPool.Get(),
		parentID: parentID,
		isRoot:   isRoot,
		children: make(map[string]struct{}),
		rollup:   NewRollupFields(),
		started:  c.clock.Now(),
	}
	t.register(s)
	return s
}

// deliver hands a finalized event to the configured sender. A nil
// sender discards it.
func (c *Client) deliver(ev *Event) {
	if c.sender == nil {
		return
	}
	c.sender.Send(ev)
}

// notifySpanFinished calls every registered handler with the finished
// span.
func (c *Client) notifySpanFinished(span *Span) {
	c.handlersLock.RLock()
	if len(c.handlers) == 0 {
		c.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(c.handlers))
	copy(handlers, c.handlers)
	c.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			// Make a copy of h for closure
			entry := h
			if c.workers != nil {
				c.workers.submit(func() {
					c.safeCall(entry, span)
				})
			} else {
				go c.safeCall(entry, span)
			}
		} else {
			c.safeCall(h, span)
		}
	}
}

func (c *Client) safeCall(entry handlerEntry, span *Span) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("span handler panicked",
				zap.Uint64("handler_id", entry.id),
				zap.Any("panic", r))
			if c.panicHook != nil {
				c.panicHook(entry.id, r)
			}
		}
	}()
	entry.handler(span)
}

// ensureIDPools initializes ID pools if not already created.
func (c *Client) ensureIDPools() {
	c.idPoolOnce.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		poolSize := runtime.NumCPU() * 100

		c.traceIDPool = NewIDPool(poolSize, hexIDFactory(traceIDBytes, c.clock))
		c.spanIDPool = NewIDPool(poolSize, hexIDFactory(spanIDBytes, c.clock))
	})
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		w.dropped.Inc()
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}
