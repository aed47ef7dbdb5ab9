package hybridgo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/hybridgo/metadata"
	"golang.org/x/sync/errgroup"
)

// Source names used for component scores and metrics.
const (
	SourceVector = "vector"
	SourceGraph  = "graph"
)

// Provenance records which sources produced a result.
type Provenance string

const (
	// ProvenanceVector marks a result found only by the vector source.
	ProvenanceVector Provenance = "vector"
	// ProvenanceGraph marks a result found only by the graph source.
	ProvenanceGraph Provenance = "graph"
	// ProvenanceHybrid marks a result found by both sources.
	ProvenanceHybrid Provenance = "hybrid"
	// ProvenancePartialVector marks results served from the vector
	// source alone because the graph source timed out.
	ProvenancePartialVector Provenance = "partial:vector"
	// ProvenancePartialGraph marks results served from the graph source
	// alone because the vector source timed out.
	ProvenancePartialGraph Provenance = "partial:graph"
)

// Query is a hybrid retrieval request. Embedding drives the vector
// source, Text drives the graph source's node scoring, At restricts
// graph traversal to edges valid at that time, and Filter restricts
// vector hits by metadata.
type Query struct {
	Embedding []float32
	Text      string
	At        *time.Time
	Filter    *metadata.FilterSet
}

// Candidate is a single ranked hit from one source.
type Candidate struct {
	ID        string
	Score     float64
	Metadata  metadata.Document
	Embedding []float32
}

// Source produces ranked candidates for a query. Implementations must
// honor ctx cancellation and deadlines.
type Source interface {
	Retrieve(ctx context.Context, query Query, limit int) ([]Candidate, error)
}

// Result is a fused retrieval hit.
type Result struct {
	ID              string
	Score           float64
	ComponentScores map[string]float64
	Provenance      Provenance
	Metadata        metadata.Document
	Embedding       []float32
}

// Retriever fans a query out to a vector source and a graph source
// concurrently, fuses the ranked lists with weighted reciprocal rank
// fusion and optionally reranks with maximal marginal relevance.
//
// Per-source timeouts degrade gracefully: if one source times out while
// the other responds, the responding source's results are served with a
// partial provenance. Only when every configured source times out does
// Retrieve fail with ErrTimeout.
type Retriever struct {
	vector Source
	graph  Source
	opts   options

	weightMu     sync.RWMutex
	vectorWeight float64
	graphWeight  float64
}

// New creates a hybrid retriever. Either source may be nil, but not both.
func New(vector, graph Source, optFns ...Option) (*Retriever, error) {
	opts := applyOptions(optFns)

	if vector == nil && graph == nil {
		return nil, ErrNoSources
	}
	if err := validateWeights(opts.vectorWeight, opts.graphWeight); err != nil {
		return nil, err
	}
	if opts.useMMR && (opts.mmrLambda < 0 || opts.mmrLambda > 1) {
		return nil, ErrInvalidLambda
	}
	if opts.fetchFactor < 1 {
		opts.fetchFactor = 1
	}
	if opts.rrfK < 1 {
		opts.rrfK = DefaultRRFK
	}

	return &Retriever{
		vector:       vector,
		graph:        graph,
		opts:         opts,
		vectorWeight: opts.vectorWeight,
		graphWeight:  opts.graphWeight,
	}, nil
}

func validateWeights(vector, graph float64) error {
	if vector < 0 || graph < 0 || vector+graph <= 0 {
		return ErrInvalidWeights
	}
	return nil
}

// SetWeights adjusts the fusion weights for subsequent retrievals.
func (r *Retriever) SetWeights(vector, graph float64) error {
	if err := validateWeights(vector, graph); err != nil {
		return err
	}

	r.weightMu.Lock()
	r.vectorWeight = vector
	r.graphWeight = graph
	r.weightMu.Unlock()

	r.opts.logger.LogSetWeights(context.Background(), vector, graph)
	return nil
}

// Weights returns the current fusion weights.
func (r *Retriever) Weights() (vector, graph float64) {
	r.weightMu.RLock()
	defer r.weightMu.RUnlock()
	return r.vectorWeight, r.graphWeight
}

// sourceOutcome is the result of one source leg of the fan-out.
type sourceOutcome struct {
	candidates []Candidate
	err        error
}

// timedOut reports whether the leg failed due to its per-source deadline.
func (o *sourceOutcome) timedOut() bool {
	return errors.Is(o.err, context.DeadlineExceeded)
}

// Retrieve runs the hybrid retrieval and returns at most k fused results.
func (r *Retriever) Retrieve(ctx context.Context, query Query, k int) ([]Result, error) {
	start := time.Now()

	results, degraded, err := r.retrieve(ctx, query, k)

	r.opts.metricsCollector.RecordRetrieve(k, time.Since(start), degraded, err)
	return results, err
}

func (r *Retriever) retrieve(ctx context.Context, query Query, k int) ([]Result, bool, error) {
	if k <= 0 {
		return nil, false, ErrInvalidK
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	fetchK := k * r.opts.fetchFactor

	var vec, gra sourceOutcome

	// The group is used purely as a join point: each leg stores its own
	// outcome so one source's timeout cannot cancel the other.
	var group errgroup.Group
	if r.vector != nil {
		group.Go(func() error {
			vec.candidates, vec.err = r.fetch(ctx, r.vector, SourceVector, r.opts.vectorTimeout, query, fetchK)
			return nil
		})
	}
	if r.graph != nil {
		group.Go(func() error {
			gra.candidates, gra.err = r.fetch(ctx, r.graph, SourceGraph, r.opts.graphTimeout, query, fetchK)
			return nil
		})
	}
	_ = group.Wait()

	// Parent cancellation or deadline preempts source-level handling.
	if err := ctx.Err(); err != nil {
		r.opts.logger.LogRetrieve(ctx, k, 0, 0, 0, "", err)
		return nil, false, err
	}

	if vec.err != nil && !vec.timedOut() {
		err := fmt.Errorf("vector source: %w", vec.err)
		r.opts.logger.LogRetrieve(ctx, k, 0, 0, 0, "", err)
		return nil, false, err
	}
	if gra.err != nil && !gra.timedOut() {
		err := fmt.Errorf("graph source: %w", gra.err)
		r.opts.logger.LogRetrieve(ctx, k, 0, 0, 0, "", err)
		return nil, false, err
	}

	vectorOK := r.vector != nil && vec.err == nil
	graphOK := r.graph != nil && gra.err == nil

	if !vectorOK && !graphOK {
		r.opts.logger.LogRetrieve(ctx, k, 0, 0, 0, "", ErrTimeout)
		return nil, false, ErrTimeout
	}

	vectorWeight, graphWeight := r.Weights()
	results := fuse(vec.candidates, gra.candidates, vectorWeight, graphWeight, r.opts.rrfK)

	// Degraded: one configured source timed out, the other answered.
	degraded := (r.vector != nil && !vectorOK) || (r.graph != nil && !graphOK)
	if degraded {
		provenance := ProvenancePartialVector
		source := SourceGraph
		if !vectorOK {
			provenance = ProvenancePartialGraph
			source = SourceVector
		}
		r.opts.logger.LogSourceTimeout(ctx, source)
		for i := range results {
			results[i].Provenance = provenance
		}
	}

	if r.opts.useMMR {
		results = mmrRerank(results, k, r.opts.mmrLambda)
	} else if len(results) > k {
		results = results[:k]
	}

	provenance := ""
	if len(results) > 0 {
		provenance = string(results[0].Provenance)
	}
	r.opts.logger.LogRetrieve(ctx, k, len(vec.candidates), len(gra.candidates), len(results), provenance, nil)

	return results, degraded, nil
}

// fetch runs one source leg under its optional per-source timeout.
func (r *Retriever) fetch(ctx context.Context, source Source, name string, timeout time.Duration, query Query, limit int) ([]Candidate, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	candidates, err := source.Retrieve(ctx, query, limit)
	r.opts.metricsCollector.RecordSource(name, len(candidates), time.Since(start), err)

	return candidates, err
}
