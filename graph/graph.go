// Package graph provides an in-memory bitemporal property graph with a
// closed, versioned schema.
//
// Edges carry a validity interval [ValidFrom, ValidUntil): inclusive at
// ValidFrom, exclusive at ValidUntil. A nil ValidUntil means the edge is
// still open. Nodes and edges carry optimistic versions; updates must
// present the version they read, and fail with *ErrConcurrentModification
// when it no longer matches.
package graph

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/hybridgo/metadata"
)

// Node is a labelled vertex with typed properties.
type Node struct {
	ID         string            `json:"id"`
	Label      Label             `json:"label"`
	Properties metadata.Document `json:"properties,omitempty"`
	Version    uint64            `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Edge is a directed, bitemporal relationship between two nodes.
type Edge struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Relation   Relation          `json:"relation"`
	Properties metadata.Document `json:"properties,omitempty"`
	ValidFrom  time.Time         `json:"valid_from"`
	ValidUntil *time.Time        `json:"valid_until,omitempty"` // nil = open
	Version    uint64            `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ValidAt reports whether the edge validity interval contains at:
// ValidFrom <= at < ValidUntil.
func (e *Edge) ValidAt(at time.Time) bool {
	if at.Before(e.ValidFrom) {
		return false
	}
	if e.ValidUntil != nil && !at.Before(*e.ValidUntil) {
		return false
	}
	return true
}

// Direction selects which incident edges to traverse.
type Direction int

const (
	// Outgoing follows edges where the node is the source.
	Outgoing Direction = iota
	// Incoming follows edges where the node is the target.
	Incoming
	// Both follows edges in either direction.
	Both
)

// Options contains configuration options for the store.
type Options struct {
	// Clock supplies timestamps for CreatedAt/UpdatedAt and defaulted
	// ValidFrom values. Overridable for tests.
	Clock func() time.Time

	// IDGenerator supplies IDs for elements created without an explicit ID.
	IDGenerator func() string
}

// DefaultOptions contains the default configuration options for the store.
var DefaultOptions = Options{
	Clock:       time.Now,
	IDGenerator: uuid.NewString,
}

// Store is an in-memory bitemporal property graph.
//
// All exported methods are safe for concurrent use. Returned nodes and
// edges are copies; mutating them does not affect the store.
type Store struct {
	mu     sync.RWMutex
	schema *Schema
	opts   Options

	nodes    map[string]*Node
	edges    map[string]*Edge
	outgoing map[string]map[string]struct{} // source node ID -> edge IDs
	incoming map[string]map[string]struct{} // target node ID -> edge IDs
}

// NewStore creates a store bound to the given schema. A nil schema uses
// DefaultSchema. The schema is validated here and cannot be changed
// after construction.
func NewStore(schema *Schema, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if schema == nil {
		schema = DefaultSchema()
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	return &Store{
		schema:   schema,
		opts:     opts,
		nodes:    make(map[string]*Node),
		edges:    make(map[string]*Edge),
		outgoing: make(map[string]map[string]struct{}),
		incoming: make(map[string]map[string]struct{}),
	}, nil
}

// Schema returns the schema supplied at construction.
func (s *Store) Schema() *Schema { return s.schema }

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges, including closed ones.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// CreateNode creates a node with a generated ID.
func (s *Store) CreateNode(label Label, props metadata.Document) (Node, error) {
	return s.CreateNodeWithID(s.opts.IDGenerator(), label, props)
}

// CreateNodeWithID creates a node with an explicit ID.
func (s *Store) CreateNodeWithID(id string, label Label, props metadata.Document) (Node, error) {
	if err := s.schema.ValidateNode(label, props); err != nil {
		return Node{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[id]; exists {
		return Node{}, &ErrDuplicateID{ID: id}
	}

	now := s.opts.Clock()
	node := &Node{
		ID:         id,
		Label:      label,
		Properties: metadata.CloneIfNeeded(props),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.nodes[id] = node

	return copyNode(node), nil
}

// GetNode returns a node by ID.
func (s *Store) GetNode(id string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return Node{}, &ErrNodeNotFound{ID: id}
	}
	return copyNode(node), nil
}

// Nodes returns all nodes, optionally restricted to the given labels,
// sorted by ID.
func (s *Store) Nodes(labels ...Label) []Node {
	wanted := make(map[Label]struct{}, len(labels))
	for _, l := range labels {
		wanted[l] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		if len(wanted) > 0 {
			if _, ok := wanted[node.Label]; !ok {
				continue
			}
		}
		result = append(result, copyNode(node))
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].ID < result[b].ID
	})
	return result
}

// FindNodes returns nodes matching label (empty = any) and filter (nil =
// all), sorted by ID. A positive limit caps the result.
func (s *Store) FindNodes(label Label, filter *metadata.FilterSet, limit int) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		if label != "" && node.Label != label {
			continue
		}
		if filter != nil && !filter.Matches(node.Properties) {
			continue
		}
		result = append(result, copyNode(node))
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].ID < result[b].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// UpdateNode merges patch into the node's properties. version must match
// the node's current version; on success the version is incremented and
// the updated node is returned.
func (s *Store) UpdateNode(id string, version uint64, patch metadata.Document) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return Node{}, &ErrNodeNotFound{ID: id}
	}
	if node.Version != version {
		return Node{}, &ErrConcurrentModification{ID: id, Expected: version, Actual: node.Version}
	}

	merged := node.Properties.Merge(patch)
	if err := s.schema.ValidateNode(node.Label, merged); err != nil {
		return Node{}, err
	}

	node.Properties = merged
	node.Version++
	node.UpdatedAt = s.opts.Clock()

	return copyNode(node), nil
}

// DeleteNode removes a node. With cascade false the delete fails with
// *ErrHasDependentEdges if any edges touch the node; with cascade true
// all incident edges are removed first.
func (s *Store) DeleteNode(id string, cascade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return &ErrNodeNotFound{ID: id}
	}

	incident := make(map[string]struct{})
	for edgeID := range s.outgoing[id] {
		incident[edgeID] = struct{}{}
	}
	for edgeID := range s.incoming[id] {
		incident[edgeID] = struct{}{}
	}

	if len(incident) > 0 && !cascade {
		return &ErrHasDependentEdges{NodeID: id, EdgeCount: len(incident)}
	}

	for edgeID := range incident {
		s.removeEdgeLocked(edgeID)
	}

	delete(s.nodes, id)
	delete(s.outgoing, id)
	delete(s.incoming, id)
	return nil
}

// CreateEdge creates an edge with a generated ID. A zero validFrom
// defaults to the current clock time; a non-nil validUntil must be after
// validFrom.
func (s *Store) CreateEdge(sourceID, targetID string, relation Relation, props metadata.Document, validFrom time.Time, validUntil *time.Time) (Edge, error) {
	return s.CreateEdgeWithID(s.opts.IDGenerator(), sourceID, targetID, relation, props, validFrom, validUntil)
}

// CreateEdgeWithID creates an edge with an explicit ID.
func (s *Store) CreateEdgeWithID(id, sourceID, targetID string, relation Relation, props metadata.Document, validFrom time.Time, validUntil *time.Time) (Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.edges[id]; exists {
		return Edge{}, &ErrDuplicateID{ID: id}
	}

	source, ok := s.nodes[sourceID]
	if !ok {
		return Edge{}, &ErrReferentialIntegrity{NodeID: sourceID}
	}
	target, ok := s.nodes[targetID]
	if !ok {
		return Edge{}, &ErrReferentialIntegrity{NodeID: targetID}
	}

	if err := s.schema.ValidateEdge(relation, source.Label, target.Label); err != nil {
		return Edge{}, err
	}

	now := s.opts.Clock()
	if validFrom.IsZero() {
		validFrom = now
	}
	if validUntil != nil {
		if !validUntil.After(validFrom) {
			return Edge{}, &ErrInvalidTimeRange{From: validFrom, Until: *validUntil}
		}
		until := *validUntil
		validUntil = &until
	}

	edge := &Edge{
		ID:         id,
		SourceID:   sourceID,
		TargetID:   targetID,
		Relation:   relation,
		Properties: metadata.CloneIfNeeded(props),
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.edges[id] = edge
	s.link(s.outgoing, sourceID, id)
	s.link(s.incoming, targetID, id)

	return copyEdge(edge), nil
}

// GetEdge returns an edge by ID.
func (s *Store) GetEdge(id string) (Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.edges[id]
	if !ok {
		return Edge{}, &ErrEdgeNotFound{ID: id}
	}
	return copyEdge(edge), nil
}

// UpdateEdge merges patch into the edge's properties under an optimistic
// version check.
func (s *Store) UpdateEdge(id string, version uint64, patch metadata.Document) (Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, ok := s.edges[id]
	if !ok {
		return Edge{}, &ErrEdgeNotFound{ID: id}
	}
	if edge.Version != version {
		return Edge{}, &ErrConcurrentModification{ID: id, Expected: version, Actual: edge.Version}
	}

	edge.Properties = edge.Properties.Merge(patch)
	edge.Version++
	edge.UpdatedAt = s.opts.Clock()

	return copyEdge(edge), nil
}

// CloseEdge ends an edge's validity at until (exclusive). until must be
// after ValidFrom. Closing is how relationships end without losing
// history: the edge stays queryable for times inside its interval.
func (s *Store) CloseEdge(id string, version uint64, until time.Time) (Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, ok := s.edges[id]
	if !ok {
		return Edge{}, &ErrEdgeNotFound{ID: id}
	}
	if edge.Version != version {
		return Edge{}, &ErrConcurrentModification{ID: id, Expected: version, Actual: edge.Version}
	}
	if !until.After(edge.ValidFrom) {
		return Edge{}, &ErrInvalidTimeRange{From: edge.ValidFrom, Until: until}
	}

	u := until
	edge.ValidUntil = &u
	edge.Version++
	edge.UpdatedAt = s.opts.Clock()

	return copyEdge(edge), nil
}

// DeleteEdge removes an edge entirely. Deleting a missing edge is a no-op.
// Prefer CloseEdge to end a relationship while keeping its history.
func (s *Store) DeleteEdge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeEdgeLocked(id)
	return nil
}

// FindValidEdgesAt returns edges incident to the node (either direction)
// whose validity interval contains at. An empty relation matches any
// relation type. Results are sorted by edge ID.
func (s *Store) FindValidEdgesAt(nodeID string, relation Relation, at time.Time) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[nodeID]; !ok {
		return nil, &ErrNodeNotFound{ID: nodeID}
	}

	seen := make(map[string]struct{})
	var result []Edge

	collect := func(edgeIDs map[string]struct{}) {
		for edgeID := range edgeIDs {
			if _, dup := seen[edgeID]; dup {
				continue
			}
			seen[edgeID] = struct{}{}

			edge := s.edges[edgeID]
			if relation != "" && edge.Relation != relation {
				continue
			}
			if !edge.ValidAt(at) {
				continue
			}
			result = append(result, copyEdge(edge))
		}
	}
	collect(s.outgoing[nodeID])
	collect(s.incoming[nodeID])

	sort.Slice(result, func(a, b int) bool {
		return result[a].ID < result[b].ID
	})
	return result, nil
}

// EdgesBetween returns all edges from sourceID to targetID, including
// closed ones, sorted by edge ID.
func (s *Store) EdgesBetween(sourceID, targetID string) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[sourceID]; !ok {
		return nil, &ErrNodeNotFound{ID: sourceID}
	}
	if _, ok := s.nodes[targetID]; !ok {
		return nil, &ErrNodeNotFound{ID: targetID}
	}

	var result []Edge
	for edgeID := range s.outgoing[sourceID] {
		edge := s.edges[edgeID]
		if edge.TargetID == targetID {
			result = append(result, copyEdge(edge))
		}
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].ID < result[b].ID
	})
	return result, nil
}

// Neighbors returns the distinct nodes connected to nodeID through edges
// matching relation (empty = any) and direction. A non-nil at restricts
// traversal to edges valid at that time; nil traverses all edges,
// including closed ones. Results are sorted by node ID.
func (s *Store) Neighbors(nodeID string, relation Relation, dir Direction, at *time.Time) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[nodeID]; !ok {
		return nil, &ErrNodeNotFound{ID: nodeID}
	}

	neighborIDs := make(map[string]struct{})

	visit := func(edgeIDs map[string]struct{}, pick func(*Edge) string) {
		for edgeID := range edgeIDs {
			edge := s.edges[edgeID]
			if relation != "" && edge.Relation != relation {
				continue
			}
			if at != nil && !edge.ValidAt(*at) {
				continue
			}
			neighborIDs[pick(edge)] = struct{}{}
		}
	}

	if dir == Outgoing || dir == Both {
		visit(s.outgoing[nodeID], func(e *Edge) string { return e.TargetID })
	}
	if dir == Incoming || dir == Both {
		visit(s.incoming[nodeID], func(e *Edge) string { return e.SourceID })
	}

	result := make([]Node, 0, len(neighborIDs))
	for id := range neighborIDs {
		if node, ok := s.nodes[id]; ok {
			result = append(result, copyNode(node))
		}
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].ID < result[b].ID
	})
	return result, nil
}

func (s *Store) link(adjacency map[string]map[string]struct{}, nodeID, edgeID string) {
	set, ok := adjacency[nodeID]
	if !ok {
		set = make(map[string]struct{})
		adjacency[nodeID] = set
	}
	set[edgeID] = struct{}{}
}

// removeEdgeLocked unlinks and deletes an edge. Must be called with the
// write lock held.
func (s *Store) removeEdgeLocked(edgeID string) {
	edge, ok := s.edges[edgeID]
	if !ok {
		return
	}

	delete(s.outgoing[edge.SourceID], edgeID)
	delete(s.incoming[edge.TargetID], edgeID)
	delete(s.edges, edgeID)
}

func copyNode(n *Node) Node {
	c := *n
	c.Properties = n.Properties.Clone()
	return c
}

func copyEdge(e *Edge) Edge {
	c := *e
	c.Properties = e.Properties.Clone()
	if e.ValidUntil != nil {
		until := *e.ValidUntil
		c.ValidUntil = &until
	}
	return c
}
