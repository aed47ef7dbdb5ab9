package hybridgo

import (
	"log/slog"
	"time"
)

const (
	// DefaultRRFK is the rank-smoothing constant of reciprocal rank fusion.
	DefaultRRFK = 60

	// DefaultVectorWeight is the default fusion weight of the vector source.
	DefaultVectorWeight = 0.6

	// DefaultGraphWeight is the default fusion weight of the graph source.
	DefaultGraphWeight = 0.4

	// DefaultFetchFactor is the per-source over-fetch multiplier: each
	// source is asked for fetchFactor*k candidates so fusion has enough
	// overlap to work with.
	DefaultFetchFactor = 2
)

type options struct {
	rrfK             int
	vectorWeight     float64
	graphWeight      float64
	vectorTimeout    time.Duration
	graphTimeout     time.Duration
	fetchFactor      int
	useMMR           bool
	mmrLambda        float64
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Retriever construction.
type Option func(*options)

// WithRRFK overrides the reciprocal rank fusion constant. Larger values
// flatten the contribution difference between adjacent ranks.
func WithRRFK(k int) Option {
	return func(o *options) {
		o.rrfK = k
	}
}

// WithWeights sets the fusion weights of the vector and graph sources.
// Weights are normalized at fusion time, so only their ratio matters.
func WithWeights(vector, graph float64) Option {
	return func(o *options) {
		o.vectorWeight = vector
		o.graphWeight = graph
	}
}

// WithVectorTimeout bounds the vector source fetch. Zero disables the
// per-source timeout.
func WithVectorTimeout(d time.Duration) Option {
	return func(o *options) {
		o.vectorTimeout = d
	}
}

// WithGraphTimeout bounds the graph source fetch. Zero disables the
// per-source timeout.
func WithGraphTimeout(d time.Duration) Option {
	return func(o *options) {
		o.graphTimeout = d
	}
}

// WithSourceTimeout bounds both source fetches with the same timeout.
func WithSourceTimeout(d time.Duration) Option {
	return func(o *options) {
		o.vectorTimeout = d
		o.graphTimeout = d
	}
}

// WithFetchFactor sets the per-source over-fetch multiplier.
func WithFetchFactor(factor int) Option {
	return func(o *options) {
		o.fetchFactor = factor
	}
}

// WithMMR enables maximal marginal relevance reranking of the fused
// list. lambda trades relevance (1.0) against diversity (0.0).
func WithMMR(lambda float64) Option {
	return func(o *options) {
		o.useMMR = true
		o.mmrLambda = lambda
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// retrieval operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		rrfK:             DefaultRRFK,
		vectorWeight:     DefaultVectorWeight,
		graphWeight:      DefaultGraphWeight,
		fetchFactor:      DefaultFetchFactor,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
