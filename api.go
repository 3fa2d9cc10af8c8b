// Package loom is the in-process tracing core of a telemetry client.
//
// loom models a trace as a tree of spans, decides per span whether its
// event should be transmitted, and coordinates the order in which parent
// and child spans are finalized. It deliberately stops at the library
// boundary: outbound events are handed to a Sender, and the wire format,
// batching, and retries belong to that collaborator.
//
// Core Components:
//   - Client: manages trace construction, sampling, and span-finished handlers.
//   - Trace: owns every span of one logical request, plus trace-wide fields
//     and the trace-wide rollup bag.
//   - Span: a timed unit of work with its own fields, rollups, and
//     send/skip state machine.
//   - Event: the field bag transmitted for a kept span.
//   - Collector: a Sender that buffers transmitted events for export.
//
// Basic Usage:
//
//	client, err := loom.New(loom.Config{ServiceName: "checkout"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Root a new trace.
//	ctx, root := client.StartSpan(ctx, "handle-request")
//	root.AddField("user.id", 123)
//
//	// Child spans parent automatically through the context.
//	ctx, child := client.StartSpan(ctx, "query-db")
//	child.AddRollupField("db.calls", 1)
//	child.Send()
//
//	root.Send() // completes any still-active children first
//
// Sampling:
//
// Every span resolves a keep/drop decision exactly once, at completion.
// The default decider is deterministic over (sample rate, trace id), so
// spans of one trace sampled at the same rate agree with each other. A
// SampleHook overrides the decision per span, and trace-aware mode makes
// a whole subtree inherit the decision of its root.
//
// Thread Safety:
//
// Client is safe for concurrent use by multiple goroutines, as are
// Collector and the handler registry. A Trace and its Spans are not
// internally synchronized: spans of one trace are expected to be created
// and completed within one request's flow of control. Applications that
// share an unfinished span across goroutines must serialize access.
//
// Resource Cleanup:
//
// Call Client.Close to stop background ID generation and the async
// handler pool. Collectors are owned by the caller and closed separately.
package loom

// Standard fields attached to every span's event during completion.
const (
	// FieldDurationMs is the span's elapsed time in milliseconds.
	FieldDurationMs = "duration_ms"

	// FieldTraceID identifies the trace a span belongs to.
	FieldTraceID = "trace.trace_id"

	// FieldSpanID identifies the span itself.
	FieldSpanID = "trace.span_id"

	// FieldParentID identifies the span's parent, when one is known.
	FieldParentID = "trace.parent_id"

	// FieldSpanType carries the derived span type tag.
	FieldSpanType = "meta.span_type"

	// FieldSentByParent marks events emitted on behalf of a still-active
	// child during its parent's completion.
	FieldSentByParent = "meta.sent_by_parent"

	// FieldServiceName carries Config.ServiceName when it is set.
	FieldServiceName = "service_name"

	// FieldName carries the operation name passed to StartSpan.
	FieldName = "name"
)

// Span type tags derived at completion time.
const (
	// SpanTypeRoot is a root span with no upstream linkage.
	SpanTypeRoot = "root"

	// SpanTypeSubroot is a root span that carries the id of an upstream
	// parent whose span object lives elsewhere.
	SpanTypeSubroot = "subroot"

	// SpanTypeLeaf is a non-root span that finished without children.
	SpanTypeLeaf = "leaf"

	// SpanTypeMid is a non-root span with children.
	SpanTypeMid = "mid"
)

// Decider reports whether a span sampled at the given rate should be
// kept. Implementations must be deterministic for a given trace id so
// that spans within one trace agree.
type Decider func(sampleRate uint, traceID string) bool

// SampleHook overrides the sampling decision for one span. It receives
// the span's accumulated field data and returns the decision plus the
// effective sample rate, which replaces the rate stored on the event.
type SampleHook func(fields map[string]interface{}) (keep bool, sampleRate uint)

// PresendHook runs just before a kept span's event is transmitted. It
// may mutate the field data in place.
type PresendHook func(fields map[string]interface{})

// SpanHandler is called when a span finishes, whether it was sent,
// skipped, or delegated to its parent. Each span is reported exactly once.
type SpanHandler func(span *Span)

// Sender receives the events of kept spans. Implementations own
// buffering, encoding, and delivery; loom never retries or re-samples.
type Sender interface {
	Send(ev *Event)
}
