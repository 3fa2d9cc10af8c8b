package loom

import "context"

// bundleKeyType is a private type for context keys to avoid collisions.
type bundleKeyType string

const (
	bundleKey bundleKeyType = "loom"
)

// contextBundle carries the client and the current span through a
// context in a single value.
type contextBundle struct {
	client *Client
	span   *Span
}

// ContextWithSpan returns a context carrying span as the current span.
// Spans started from the returned context become its children. The
// parent context is untouched, so unwinding a call restores the
// previous current span naturally.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	if span == nil {
		return ctx
	}
	bundle := &contextBundle{client: span.trace.client, span: span}
	return context.WithValue(ctx, bundleKey, bundle)
}

// SpanFromContext extracts the current span from a context.
// Returns nil if no span is present.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}

	if bundle, ok := ctx.Value(bundleKey).(*contextBundle); ok {
		return bundle.span
	}

	return nil
}

// TraceFromContext extracts the trace owning the current span.
// Returns nil if no span is present.
func TraceFromContext(ctx context.Context) *Trace {
	if span := SpanFromContext(ctx); span != nil {
		return span.trace
	}
	return nil
}
