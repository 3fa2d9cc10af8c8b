package loom

import (
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
)

// samplingDecision is the memoized outcome of a span's sampling
// resolution. A span starts undecided and resolves exactly once.
type samplingDecision int8

const (
	decisionUndecided samplingDecision = iota
	decisionDrop
	decisionKeep
)

func (d samplingDecision) String() string {
	switch d {
	case decisionDrop:
		return "drop"
	case decisionKeep:
		return "keep"
	default:
		return "undecided"
	}
}

// deterministicDecider reports whether a trace sampled at the given
// rate should be kept. The answer depends only on the inputs, so every
// span of a trace, and every process handling it, resolves the same
// way. Rates of zero and one keep everything.
func deterministicDecider(sampleRate uint, traceID string) bool {
	if sampleRate <= 1 {
		return true
	}
	return xxhash.Sum64String(traceID) < math.MaxUint64/uint64(sampleRate)
}

// decisionCache memoizes decider outcomes keyed by rate and trace id.
// A miss is benign: the wrapped decider recomputes the same answer.
type decisionCache struct {
	cache   *ristretto.Cache
	decider Decider
}

// newDecisionCache wraps decider with a cache sized for roughly
// maxEntries decisions.
func newDecisionCache(decider Decider, maxEntries int64) (*decisionCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &decisionCache{cache: cache, decider: decider}, nil
}

func (dc *decisionCache) decide(sampleRate uint, traceID string) bool {
	key := decisionKey(sampleRate, traceID)
	if v, ok := dc.cache.Get(key); ok {
		if keep, ok := v.(bool); ok {
			return keep
		}
	}
	keep := dc.decider(sampleRate, traceID)
	dc.cache.Set(key, keep, 1)
	return keep
}

func (dc *decisionCache) close() {
	dc.cache.Close()
}

func decisionKey(sampleRate uint, traceID string) string {
	return strconv.FormatUint(uint64(sampleRate), 10) + ":" + traceID
}
