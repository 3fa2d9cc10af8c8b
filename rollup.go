package loom

// RollupFields is a bag of numeric fields with additive merge semantics.
// Each span owns one, and every trace owns a separate trace-wide bag;
// values land in event fields when the owning span completes.
//
// Not safe for concurrent use; see the package thread-safety notes.
type RollupFields map[string]float64

// NewRollupFields returns an empty bag.
func NewRollupFields() RollupFields {
	return make(RollupFields)
}

// Add adds delta to the named field, creating it at zero first.
func (r RollupFields) Add(name string, delta float64) {
	r[name] += delta
}

// Merge folds other into r, adding same-named values.
func (r RollupFields) Merge(other RollupFields) {
	for name, v := range other {
		r[name] += v
	}
}

// Clone returns an independent copy of the bag.
func (r RollupFields) Clone() RollupFields {
	out := make(RollupFields, len(r))
	for name, v := range r {
		out[name] = v
	}
	return out
}

// Len reports the number of distinct field names in the bag.
func (r RollupFields) Len() int {
	return len(r)
}

// mergeRollup folds a rollup bag into an event, summing with any
// numeric value already present under the same name.
func mergeRollup(ev *Event, bag RollupFields) {
	for name, delta := range bag {
		if prev, ok := ev.fields[name].(float64); ok {
			ev.fields[name] = prev + delta
		} else {
			ev.fields[name] = delta
		}
	}
}
