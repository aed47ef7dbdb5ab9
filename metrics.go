package hybridgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordRetrieve is called after each hybrid retrieval.
	// k is the requested result count, degraded reports whether a source
	// timed out and a partial result was served, err is nil on success.
	RecordRetrieve(k int, duration time.Duration, degraded bool, err error)

	// RecordSource is called after each per-source fetch.
	// source is "vector" or "graph", candidates is the number returned.
	RecordSource(source string, candidates int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRetrieve(int, time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordSource(string, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	RetrieveCount      atomic.Int64
	RetrieveErrors     atomic.Int64
	RetrieveDegraded   atomic.Int64
	RetrieveTotalNanos atomic.Int64
	VectorFetches      atomic.Int64
	VectorErrors       atomic.Int64
	GraphFetches       atomic.Int64
	GraphErrors        atomic.Int64
}

// RecordRetrieve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRetrieve(k int, duration time.Duration, degraded bool, err error) {
	b.RetrieveCount.Add(1)
	b.RetrieveTotalNanos.Add(duration.Nanoseconds())
	if degraded {
		b.RetrieveDegraded.Add(1)
	}
	if err != nil {
		b.RetrieveErrors.Add(1)
	}
}

// RecordSource implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSource(source string, candidates int, duration time.Duration, err error) {
	switch source {
	case "vector":
		b.VectorFetches.Add(1)
		if err != nil {
			b.VectorErrors.Add(1)
		}
	case "graph":
		b.GraphFetches.Add(1)
		if err != nil {
			b.GraphErrors.Add(1)
		}
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	count := b.RetrieveCount.Load()

	var avg int64
	if count > 0 {
		avg = b.RetrieveTotalNanos.Load() / count
	}

	return BasicMetricsStats{
		RetrieveCount:    count,
		RetrieveErrors:   b.RetrieveErrors.Load(),
		RetrieveDegraded: b.RetrieveDegraded.Load(),
		RetrieveAvgNanos: avg,
		VectorFetches:    b.VectorFetches.Load(),
		VectorErrors:     b.VectorErrors.Load(),
		GraphFetches:     b.GraphFetches.Load(),
		GraphErrors:      b.GraphErrors.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RetrieveCount    int64
	RetrieveErrors   int64
	RetrieveDegraded int64
	RetrieveAvgNanos int64
	VectorFetches    int64
	VectorErrors     int64
	GraphFetches     int64
	GraphErrors      int64
}
