package loom

import "time"

// Event is the field bag transmitted for one kept span. Spans fill it
// throughout their lifetime and hand it to the client's Sender during
// completion; the Sender owns everything past that point.
//
// Not safe for concurrent use; see the package thread-safety notes.
type Event struct {
	// Timestamp records when the owning span was created.
	Timestamp time.Time

	// SampleRate is the effective rate the span was sampled at. It is
	// resolved before transmission and never re-evaluated afterward.
	SampleRate uint

	fields map[string]interface{}
	client *Client
	sent   bool
}

func newEvent(c *Client) *Event {
	ev := &Event{
		SampleRate: defaultSampleRate,
		fields:     make(map[string]interface{}),
		client:     c,
	}
	if c != nil {
		ev.Timestamp = c.clock.Now()
		ev.SampleRate = c.cfg.SampleRate
		if c.cfg.ServiceName != "" {
			ev.fields[FieldServiceName] = c.cfg.ServiceName
		}
	}
	return ev
}

// AddField attaches a single field, replacing any previous value.
func (e *Event) AddField(name string, value interface{}) {
	e.fields[name] = value
}

// Add attaches every field in the given bag.
func (e *Event) Add(fields map[string]interface{}) {
	for name, value := range fields {
		e.fields[name] = value
	}
}

// Fields returns the live field bag. Hooks receive this map and may
// mutate it in place.
func (e *Event) Fields() map[string]interface{} {
	return e.fields
}

// Send hands the event to the client's Sender. The first call wins;
// later calls are no-ops.
func (e *Event) Send() {
	if e.sent {
		return
	}
	e.sent = true
	if e.client == nil {
		return
	}
	e.client.deliver(e)
}

// copyFields returns an independent copy of the field bag, used by
// senders that buffer events past the caller's mutation window.
func (e *Event) copyFields() map[string]interface{} {
	out := make(map[string]interface{}, len(e.fields))
	for name, value := range e.fields {
		out[name] = value
	}
	return out
}
