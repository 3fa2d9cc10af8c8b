package loom

// Trace identifies one logical request and owns every span created
// under it. Spans reference each other by id; the trace's registry
// resolves those ids for as long as the trace is live, and is emptied
// wholesale once the last span reaches a terminal state.
//
// A Trace is NOT thread-safe. Spans of one trace are expected to be
// created and completed within a single request's execution.
type Trace struct {
	client *Client
	id     string
	rootID string

	// spans is the arena owning every span of the trace, keyed by id.
	spans map[string]*Span

	registered int
	terminal   int
	notified   int

	fields map[string]interface{}
	rollup RollupFields
}

func newTrace(c *Client, traceID string) *Trace {
	return &Trace{
		client: c,
		id:     traceID,
		spans:  make(map[string]*Span),
		fields: make(map[string]interface{}),
		rollup: NewRollupFields(),
	}
}

// ID returns the trace id.
func (t *Trace) ID() string {
	return t.id
}

// RootSpan returns the root span, or nil once the trace has torn down.
func (t *Trace) RootSpan() *Span {
	return t.spans[t.rootID]
}

// AddField attaches a trace-wide field. Trace-wide fields are merged
// into the event of every span completed after this call.
func (t *Trace) AddField(name string, value interface{}) {
	t.fields[name] = value
}

// AddRollupField adds delta to the named field in the trace-wide
// rollup bag. The trace-wide bag surfaces on the root span's event
// only, summed with the root's own rollup fields on name collision.
func (t *Trace) AddRollupField(name string, delta float64) {
	t.rollup.Add(name, delta)
}

// Fields returns the trace-wide field bag. The map is live: mutations
// affect spans completed afterwards.
func (t *Trace) Fields() map[string]interface{} {
	return t.fields
}

// RollupFields returns the trace-wide rollup bag. The bag is live.
func (t *Trace) RollupFields() RollupFields {
	return t.rollup
}

// Send completes the root span, which resolves every still-active
// span in the tree. No-op once the trace has torn down.
func (t *Trace) Send() {
	if root := t.RootSpan(); root != nil {
		root.Send()
	}
}

// Outstanding reports how many spans have not yet been reported
// finished. Zero means the trace is fully accounted for.
func (t *Trace) Outstanding() int {
	return t.registered - t.notified
}

// register adds a freshly constructed span to the arena.
func (t *Trace) register(s *Span) {
	t.spans[s.spanID] = s
	t.registered++
	if t.client != nil {
		t.client.stats.started.Inc()
	}
}

// lookup resolves a span id through the arena.
func (t *Trace) lookup(id string) *Span {
	return t.spans[id]
}

// spanNotified records a span's single finished notification.
func (t *Trace) spanNotified() {
	t.notified++
}

// spanTerminal records that a span reached a terminal state, and tears
// the arena down once every registered span has.
func (t *Trace) spanTerminal() {
	t.terminal++
	if t.terminal >= t.registered {
		clear(t.spans)
	}
}
