package index

import (
	"errors"
	"fmt"

	"github.com/hupe1980/hybridgo/metric"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrInvalidMetric indicates an unsupported similarity metric.
type ErrInvalidMetric struct {
	Metric metric.Metric
}

func (e *ErrInvalidMetric) Error() string {
	return fmt.Sprintf("invalid metric: %s", e.Metric)
}

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrDuplicateID indicates an insert with an ID that is already present.
// Soft-deleted entries still occupy their ID until the next rebuild.
type ErrDuplicateID struct {
	ID string
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %q", e.ID)
}

// ErrNotFound indicates the requested entry does not exist or has been
// soft-deleted.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("not found: %q", e.ID)
}

// ErrPersistence indicates a failed snapshot save or load.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrPersistence struct {
	Path   string
	Reason string
	cause  error
}

func (e *ErrPersistence) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("persistence: %s", e.Reason)
	}
	return fmt.Sprintf("persistence: %s: %s", e.Path, e.Reason)
}

func (e *ErrPersistence) Unwrap() error { return e.cause }

func persistenceError(path, reason string, cause error) *ErrPersistence {
	return &ErrPersistence{Path: path, Reason: reason, cause: cause}
}
