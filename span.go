package loom

import (
	"context"
	"time"
)

// Span is a single timed unit of work within a trace. It owns an event
// field bag, a rollup bag, and the send/skip state machine that
// guarantees every span in a trace is accounted for exactly once.
//
// Spans are NOT thread-safe. A trace's spans are expected to be
// created and completed within one request's execution; see the
// package documentation.
type Span struct {
	trace *Trace
	ev    *Event

	spanID string

	// parentID is the id of the parent span. For a root span it holds
	// the legacy parent id of an upstream process, or "" when the
	// trace started here. Resolution goes through the trace registry,
	// so an upstream parent simply never resolves.
	parentID string

	isRoot bool

	// children holds the ids of still-attached child spans. A child
	// leaves the set when it finishes.
	children map[string]struct{}

	rollup RollupFields

	started time.Time

	sent      bool
	delegated bool

	sampleHook  SampleHook
	presendHook PresendHook
	traceAware  bool

	decision samplingDecision
}

// CreateChild starts a new span under this one. The child shares the
// trace, records this span as its parent, inherits the sample hook,
// presend hook, and trace-aware flag, and becomes the current span in
// the returned context.
func (s *Span) CreateChild(ctx context.Context) (context.Context, *Span) {
	child := s.trace.client.newSpan(s.trace, s.spanID, false)
	child.sampleHook = s.sampleHook
	child.presendHook = s.presendHook
	child.traceAware = s.traceAware
	s.children[child.spanID] = struct{}{}
	return ContextWithSpan(ctx, child), child
}

// AddField attaches a field to this span's event.
// No-op once the span has finished.
func (s *Span) AddField(name string, value interface{}) {
	if s.sent {
		return
	}
	s.ev.AddField(name, value)
}

// AddRollupField adds delta to the named field in this span's own
// rollup bag. The bag is written into this span's event at completion;
// it does not flow into the trace-wide bag. Use AddTraceRollupField
// for totals that must surface on the root span.
func (s *Span) AddRollupField(name string, delta float64) {
	if s.sent {
		return
	}
	s.rollup.Add(name, delta)
}

// AddTraceField attaches a trace-wide field, merged into the event of
// every span of this trace completed afterwards.
func (s *Span) AddTraceField(name string, value interface{}) {
	s.trace.AddField(name, value)
}

// AddTraceRollupField adds delta to the trace-wide rollup bag, which
// surfaces on the root span's event.
func (s *Span) AddTraceRollupField(name string, delta float64) {
	s.trace.AddRollupField(name, delta)
}

// Fields returns this span's event field bag. The map is live: hooks
// and callers may mutate it until the span completes.
func (s *Span) Fields() map[string]interface{} {
	return s.ev.Fields()
}

// SetSampleHook overrides the sampling decision for this span.
// Children created afterwards inherit the hook.
func (s *Span) SetSampleHook(hook SampleHook) {
	s.sampleHook = hook
}

// SetPresendHook installs a hook invoked with the final field bag just
// before this span's event transmits. Children created afterwards
// inherit the hook.
func (s *Span) SetPresendHook(hook PresendHook) {
	s.presendHook = hook
}

// SetTraceAwareSampling sets the descendant-exclusion flag. When on,
// this span's sampling decision covers its entire subtree: descendants
// inherit the decision instead of deciding independently. Children
// created afterwards inherit the flag.
func (s *Span) SetTraceAwareSampling(on bool) {
	s.traceAware = on
}

// ID returns the span id.
func (s *Span) ID() string {
	return s.spanID
}

// TraceID returns the owning trace's id.
func (s *Span) TraceID() string {
	return s.trace.id
}

// ParentID returns the parent span id, or the legacy upstream parent
// id for a root span resumed from another process. Empty for a root
// span that started the trace.
func (s *Span) ParentID() string {
	return s.parentID
}

// IsRoot reports whether this is the trace's root span.
func (s *Span) IsRoot() bool {
	return s.isRoot
}

// Sent reports whether the span has reached a terminal state.
func (s *Span) Sent() bool {
	return s.sent
}

// StartTime returns the span's creation timestamp.
func (s *Span) StartTime() time.Time {
	return s.started
}

// Send completes the span: standard fields are attached, the sampling
// decision is resolved, still-active children are completed on this
// span's behalf, the event transmits when the decision is keep, and
// the span is reported finished. Calling Send twice is a no-op.
func (s *Span) Send() {
	if s.sent {
		return
	}
	s.complete()
}

// sendByParent completes a still-active child during its parent's own
// completion, marking the emitted event as parent-driven.
func (s *Span) sendByParent() {
	if s.sent {
		return
	}
	s.ev.AddField(FieldSentByParent, true)
	s.complete()
}

// MarkSendByParent defers this span's completion entirely to its
// parent while reporting it finished immediately. The parent's later
// completion still transmits the event but does not report finished a
// second time. Subsequent calls are no-ops.
func (s *Span) MarkSendByParent() {
	if s.sent || s.delegated {
		return
	}
	s.delegated = true
	s.notifyFinished()
}

// SkipSending abandons the span and its entire unsent subtree without
// transmitting anything. Skipped spans are still reported finished, so
// trace accounting stays exact. This is the cancellation primitive.
func (s *Span) SkipSending() {
	if s.sent {
		return
	}
	s.skipChildren()
	s.trace.client.stats.skipped.Inc()
	s.finish()
}

// complete runs the completion sequence. The caller has already
// checked the sent guard.
func (s *Span) complete() {
	c := s.trace.client

	elapsed := c.clock.Now().Sub(s.started)
	s.ev.AddField(FieldDurationMs, float64(elapsed)/float64(time.Millisecond))
	s.ev.AddField(FieldTraceID, s.trace.id)
	s.ev.AddField(FieldSpanID, s.spanID)
	s.ev.AddField(FieldSpanType, s.spanType())
	if s.parentID != "" {
		s.ev.AddField(FieldParentID, s.parentID)
	}

	mergeRollup(s.ev, s.rollup)
	s.ev.Add(s.trace.fields)
	if s.isRoot {
		mergeRollup(s.ev, s.trace.rollup)
	}

	keep := s.shouldSend()

	// Children are always resolved as part of the parent's completion
	// so that no span is left dangling. Under descendant exclusion a
	// dropped parent takes its subtree with it; otherwise each child
	// carries its own decision.
	if s.traceAware && !keep {
		s.skipChildren()
	} else {
		s.sendChildren()
	}

	if keep {
		if s.presendHook != nil {
			s.presendHook(s.ev.Fields())
		}
		s.ev.Send()
		c.stats.sent.Inc()
	} else {
		c.stats.sampledOut.Inc()
	}

	s.finish()
}

// finish applies the terminal transition: the span becomes sent, is
// reported finished unless MarkSendByParent already reported it,
// detaches from its parent's child set, and leaves the trace's
// accounting.
func (s *Span) finish() {
	s.sent = true

	if !s.delegated {
		s.notifyFinished()
	}

	if parent := s.parent(); parent != nil {
		delete(parent.children, s.spanID)
	}

	s.trace.spanTerminal()
}

// notifyFinished reports the span finished. Callers guard against
// repeat reports.
func (s *Span) notifyFinished() {
	s.trace.spanNotified()
	s.trace.client.notifySpanFinished(s)
}

// shouldSend resolves the sampling decision, returning true to keep.
func (s *Span) shouldSend() bool {
	return s.resolveDecision() == decisionKeep
}

// resolveDecision computes the span's sampling decision exactly once.
// Later calls return the memoized outcome even if hooks or flags
// changed in between.
func (s *Span) resolveDecision() samplingDecision {
	if s.decision != decisionUndecided {
		return s.decision
	}
	s.decision = s.computeDecision()
	return s.decision
}

func (s *Span) computeDecision() samplingDecision {
	// Descendant exclusion: delegate to the parent's memoized decision
	// so the whole subtree is kept or dropped atomically. Roots, and
	// spans whose parent lives in another process, fall through and
	// decide for the subtree.
	if s.traceAware {
		if parent := s.parent(); parent != nil {
			return parent.resolveDecision()
		}
	}

	if s.sampleHook != nil {
		keep, rate := s.sampleHook(s.ev.Fields())
		s.ev.SampleRate = rate
		if keep {
			return decisionKeep
		}
		return decisionDrop
	}

	if s.trace.client.decider(s.ev.SampleRate, s.trace.id) {
		return decisionKeep
	}
	return decisionDrop
}

// spanType derives the reporting tag for this span's position in the
// tree at completion time.
func (s *Span) spanType() string {
	switch {
	case s.isRoot && s.parentID == "":
		return SpanTypeRoot
	case s.isRoot:
		return SpanTypeSubroot
	case len(s.children) == 0:
		return SpanTypeLeaf
	default:
		return SpanTypeMid
	}
}

// parent resolves the parent span through the trace registry. Root
// spans resolve to nil even when they carry a legacy parent id.
func (s *Span) parent() *Span {
	if s.isRoot || s.parentID == "" {
		return nil
	}
	return s.trace.lookup(s.parentID)
}

// sendChildren completes every still-active child on this span's
// behalf.
func (s *Span) sendChildren() {
	s.eachActiveChild(func(child *Span) {
		child.sendByParent()
	})
}

// skipChildren abandons every still-active child subtree.
func (s *Span) skipChildren() {
	s.eachActiveChild(func(child *Span) {
		child.SkipSending()
	})
}

// eachActiveChild visits the children that are registered and not yet
// sent. The child set shrinks as children finish, so the ids are
// snapshotted first and every id is re-resolved and re-checked at
// visit time.
func (s *Span) eachActiveChild(fn func(*Span)) {
	ids := make([]string, 0, len(s.children))
	for id := range s.children {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if child := s.trace.lookup(id); child != nil && !child.sent {
			fn(child)
		}
	}
}
