package loom

import (
	"fmt"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

const (
	// defaultSampleRate keeps every span.
	defaultSampleRate uint = 1

	// defaultDecisionCacheSize bounds the sampling decision cache to
	// roughly this many distinct (rate, trace id) entries.
	defaultDecisionCacheSize int64 = 10_000
)

// Config carries the knobs for a Client. The zero value is usable:
// every span is kept, events are counted and discarded until a Sender
// is configured, and logging is off.
type Config struct {
	// ServiceName, when set, is attached to every event as
	// FieldServiceName.
	ServiceName string

	// SampleRate is the default sampling rate for new traces: one event
	// kept out of every SampleRate. Zero means 1 (keep everything).
	SampleRate uint

	// Sender receives the events of kept spans. Nil discards them.
	Sender Sender

	// Decider replaces the built-in deterministic decider.
	Decider Decider

	// SampleHook seeds the sampling override on every root span.
	// Children inherit it on creation.
	SampleHook SampleHook

	// PresendHook seeds the pre-transmission mutation hook on every
	// root span. Children inherit it on creation.
	PresendHook PresendHook

	// TraceAwareSampling seeds the descendant-exclusion flag on every
	// root span: the root's decision then covers its whole tree.
	TraceAwareSampling bool

	// DecisionCacheSize bounds the sampling decision cache. Zero means
	// the default; negative is invalid. The cache only applies to the
	// built-in decider.
	DecisionCacheSize int64

	// DisableDecisionCache turns the decision cache off entirely.
	DisableDecisionCache bool

	// Logger receives client diagnostics. Nil means no logging.
	Logger *zap.Logger

	// Clock is the time source for span timestamps and durations.
	// Nil means the real clock.
	Clock clockz.Clock
}

// Validate checks the configuration for values that defaulting cannot
// repair.
func (cfg *Config) Validate() error {
	if cfg.DecisionCacheSize < 0 {
		return fmt.Errorf("decision cache size must not be negative, got %d", cfg.DecisionCacheSize)
	}
	return nil
}

// withDefaults returns a copy of cfg with zero values resolved.
func (cfg Config) withDefaults() Config {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.DecisionCacheSize == 0 {
		cfg.DecisionCacheSize = defaultDecisionCacheSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}
	return cfg
}
