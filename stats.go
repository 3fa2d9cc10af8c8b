package loom

import "go.uber.org/atomic"

// clientStats counts span outcomes over a client's lifetime.
type clientStats struct {
	started    *atomic.Int64
	sent       *atomic.Int64
	sampledOut *atomic.Int64
	skipped    *atomic.Int64
}

func newClientStats() *clientStats {
	return &clientStats{
		started:    atomic.NewInt64(0),
		sent:       atomic.NewInt64(0),
		sampledOut: atomic.NewInt64(0),
		skipped:    atomic.NewInt64(0),
	}
}

// Stats is a point-in-time snapshot of a client's span counters.
type Stats struct {
	// SpansStarted counts spans created through the client.
	SpansStarted int64

	// SpansSent counts spans whose events were handed to the sender.
	SpansSent int64

	// SpansSampledOut counts spans that completed normally but were
	// dropped by a sampling decision.
	SpansSampledOut int64

	// SpansSkipped counts spans abandoned through SkipSending.
	SpansSkipped int64
}

func (s *clientStats) snapshot() Stats {
	return Stats{
		SpansStarted:    s.started.Load(),
		SpansSent:       s.sent.Load(),
		SpansSampledOut: s.sampledOut.Load(),
		SpansSkipped:    s.skipped.Load(),
	}
}
