package hybridgo

import (
	"errors"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrNoSources is returned when a retriever is constructed without
	// any source.
	ErrNoSources = errors.New("at least one retrieval source is required")

	// ErrInvalidWeights is returned when fusion weights are negative or
	// sum to zero.
	ErrInvalidWeights = errors.New("weights must be non-negative and sum to a positive value")

	// ErrInvalidLambda is returned when the MMR lambda is outside [0, 1].
	ErrInvalidLambda = errors.New("lambda must be between 0 and 1")

	// ErrTimeout is returned when every configured source timed out and
	// no partial result could be served.
	ErrTimeout = errors.New("all retrieval sources timed out")
)
