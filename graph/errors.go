package graph

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSchemaViolation is the sentinel wrapped by all schema validation
// errors, so callers can match the whole class with errors.Is.
var ErrSchemaViolation = errors.New("schema violation")

// ErrUnknownLabel indicates a node label outside the closed schema.
type ErrUnknownLabel struct {
	Label Label
}

func (e *ErrUnknownLabel) Error() string {
	return fmt.Sprintf("schema violation: unknown node label %q", e.Label)
}

func (e *ErrUnknownLabel) Unwrap() error { return ErrSchemaViolation }

// ErrUnknownRelation indicates a relation type outside the closed schema.
type ErrUnknownRelation struct {
	Relation Relation
}

func (e *ErrUnknownRelation) Error() string {
	return fmt.Sprintf("schema violation: unknown relation type %q", e.Relation)
}

func (e *ErrUnknownRelation) Unwrap() error { return ErrSchemaViolation }

// ErrMissingProperties indicates required node properties are absent.
type ErrMissingProperties struct {
	Label      Label
	Properties []string
}

func (e *ErrMissingProperties) Error() string {
	return fmt.Sprintf("schema violation: node label %q requires properties: %s",
		e.Label, strings.Join(e.Properties, ", "))
}

func (e *ErrMissingProperties) Unwrap() error { return ErrSchemaViolation }

// ErrEndpointNotAllowed indicates a relation between label pairs the
// schema does not permit.
type ErrEndpointNotAllowed struct {
	Relation Relation
	Source   Label
	Target   Label
}

func (e *ErrEndpointNotAllowed) Error() string {
	return fmt.Sprintf("schema violation: relation %q not allowed from %q to %q",
		e.Relation, e.Source, e.Target)
}

func (e *ErrEndpointNotAllowed) Unwrap() error { return ErrSchemaViolation }

// ErrNodeNotFound indicates the requested node does not exist.
type ErrNodeNotFound struct {
	ID string
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node not found: %q", e.ID)
}

// ErrEdgeNotFound indicates the requested edge does not exist.
type ErrEdgeNotFound struct {
	ID string
}

func (e *ErrEdgeNotFound) Error() string {
	return fmt.Sprintf("edge not found: %q", e.ID)
}

// ErrDuplicateID indicates an explicit ID that is already in use.
type ErrDuplicateID struct {
	ID string
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %q", e.ID)
}

// ErrReferentialIntegrity indicates an edge endpoint that does not exist.
type ErrReferentialIntegrity struct {
	NodeID string
}

func (e *ErrReferentialIntegrity) Error() string {
	return fmt.Sprintf("referential integrity: node %q does not exist", e.NodeID)
}

// ErrInvalidTimeRange indicates a validity interval that ends at or
// before it starts.
type ErrInvalidTimeRange struct {
	From  time.Time
	Until time.Time
}

func (e *ErrInvalidTimeRange) Error() string {
	return fmt.Sprintf("invalid time range: valid_until %s must be after valid_from %s",
		e.Until.Format(time.RFC3339), e.From.Format(time.RFC3339))
}

// ErrHasDependentEdges indicates a node delete blocked by incident edges.
type ErrHasDependentEdges struct {
	NodeID    string
	EdgeCount int
}

func (e *ErrHasDependentEdges) Error() string {
	return fmt.Sprintf("node %q has %d dependent edges", e.NodeID, e.EdgeCount)
}

// ErrConcurrentModification indicates an optimistic version check failed:
// the element changed since the caller read it.
type ErrConcurrentModification struct {
	ID       string
	Expected uint64
	Actual   uint64
}

func (e *ErrConcurrentModification) Error() string {
	return fmt.Sprintf("concurrent modification of %q: expected version %d, found %d",
		e.ID, e.Expected, e.Actual)
}
