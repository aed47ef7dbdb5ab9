package hybridgo

import (
	"context"
	"sort"
	"strings"

	"github.com/hupe1980/hybridgo/graph"
	"github.com/hupe1980/hybridgo/index"
)

// IndexSource adapts an index.Index to the Source interface.
type IndexSource struct {
	index *index.Index
}

// NewIndexSource creates a vector source backed by idx.
func NewIndexSource(idx *index.Index) *IndexSource {
	return &IndexSource{index: idx}
}

// Retrieve implements Source. A query without an embedding yields no
// candidates.
func (s *IndexSource) Retrieve(ctx context.Context, query Query, limit int) ([]Candidate, error) {
	if len(query.Embedding) == 0 {
		return nil, nil
	}

	hits, err := s.index.Search(ctx, query.Embedding, limit, index.WithFilter(query.Filter))
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, Candidate{
			ID:        hit.ID,
			Score:     float64(hit.Score),
			Metadata:  hit.Metadata,
			Embedding: hit.Embedding,
		})
	}
	return candidates, nil
}

// NodeScorer scores a graph node's relevance to a query in [0, 1].
type NodeScorer func(node graph.Node, query Query) float64

// GraphSourceOptions contains configuration options for a GraphSource.
type GraphSourceOptions struct {
	// Labels restricts candidate nodes to the given labels. Empty scans
	// all labels.
	Labels []graph.Label

	// Scorer ranks candidate nodes. Defaults to Jaccard token overlap
	// between the query text and common text properties.
	Scorer NodeScorer

	// AnchorID restricts candidates to the neighborhood of one node,
	// traversed in both directions. Combined with Query.At this turns
	// the leg into a time-travel lookup: only edges valid at that time
	// contribute neighbors.
	AnchorID string

	// Relation restricts anchor traversal to one relation type.
	Relation graph.Relation
}

// DefaultGraphSourceOptions contains the default configuration options
// for a GraphSource.
var DefaultGraphSourceOptions = GraphSourceOptions{
	Scorer: JaccardScorer("content", "name", "title"),
}

// GraphSource adapts a graph.Store to the Source interface. Nodes are
// scored against the query text; edges only steer candidate selection
// when an anchor is configured.
type GraphSource struct {
	store *graph.Store
	opts  GraphSourceOptions
}

// NewGraphSource creates a graph source backed by store.
func NewGraphSource(store *graph.Store, optFns ...func(o *GraphSourceOptions)) *GraphSource {
	opts := DefaultGraphSourceOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Scorer == nil {
		opts.Scorer = DefaultGraphSourceOptions.Scorer
	}

	return &GraphSource{store: store, opts: opts}
}

// Retrieve implements Source.
func (s *GraphSource) Retrieve(ctx context.Context, query Query, limit int) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var nodes []graph.Node
	if s.opts.AnchorID != "" {
		var err error
		nodes, err = s.store.Neighbors(s.opts.AnchorID, s.opts.Relation, graph.Both, query.At)
		if err != nil {
			return nil, err
		}
		nodes = s.filterLabels(nodes)
	} else {
		nodes = s.store.Nodes(s.opts.Labels...)
	}

	candidates := make([]Candidate, 0, len(nodes))
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if query.Filter != nil && !query.Filter.Matches(node.Properties) {
			continue
		}

		score := s.opts.Scorer(node, query)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:       node.ID,
			Score:    score,
			Metadata: node.Properties,
		})
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}
		return candidates[a].ID < candidates[b].ID
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *GraphSource) filterLabels(nodes []graph.Node) []graph.Node {
	if len(s.opts.Labels) == 0 {
		return nodes
	}

	wanted := make(map[graph.Label]struct{}, len(s.opts.Labels))
	for _, l := range s.opts.Labels {
		wanted[l] = struct{}{}
	}

	filtered := nodes[:0]
	for _, node := range nodes {
		if _, ok := wanted[node.Label]; ok {
			filtered = append(filtered, node)
		}
	}
	return filtered
}

// JaccardScorer scores nodes by Jaccard token overlap between the query
// text and the node's values for the given string properties. An empty
// query text scores every node 0.
func JaccardScorer(properties ...string) NodeScorer {
	return func(node graph.Node, query Query) float64 {
		queryTokens := tokenize(query.Text)
		if len(queryTokens) == 0 {
			return 0
		}

		nodeTokens := make(map[string]struct{})
		for _, prop := range properties {
			if value, ok := node.Properties[prop].AsString(); ok {
				for token := range tokenize(value) {
					nodeTokens[token] = struct{}{}
				}
			}
		}
		if len(nodeTokens) == 0 {
			return 0
		}

		intersection := 0
		for token := range queryTokens {
			if _, ok := nodeTokens[token]; ok {
				intersection++
			}
		}
		union := len(queryTokens) + len(nodeTokens) - intersection

		return float64(intersection) / float64(union)
	}
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		token := strings.Trim(field, ".,;:!?\"'()[]{}")
		if token != "" {
			tokens[token] = struct{}{}
		}
	}
	return tokens
}
