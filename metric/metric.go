// Package metric provides the similarity metrics used by the vector index.
//
// All metrics are expressed as similarities: higher scores mean closer
// vectors. Euclidean distance is mapped into similarity space via
// 1 / (1 + distance) so that both metrics sort the same way.
package metric

import (
	"errors"
	"fmt"
	"math"
)

// ErrSizeMismatch is returned when two vectors have different lengths.
var ErrSizeMismatch = errors.New("vector sizes do not match")

// Metric identifies a similarity metric.
type Metric uint8

const (
	// Cosine is cosine similarity in [-1, 1].
	Cosine Metric = iota
	// Euclidean is L2 distance mapped to similarity via 1/(1+d).
	Euclidean
)

// String implements fmt.Stringer.
func (m Metric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case Euclidean:
		return "euclidean"
	default:
		return fmt.Sprintf("metric(%d)", uint8(m))
	}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == Cosine || m == Euclidean
}

// Dot calculates the dot product of two float32 slices.
// The slices must have equal length.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Magnitude calculates the magnitude (length) of a float32 slice.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// CosineSimilarity calculates the cosine similarity between two float32 slices.
// Zero-magnitude vectors yield a similarity of 0.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrSizeMismatch
	}

	dotProduct := Dot(a, b)
	magnitudeA := Magnitude(a)
	magnitudeB := Magnitude(b)

	// Avoid division by zero
	if magnitudeA == 0 || magnitudeB == 0 {
		return 0, nil
	}

	return dotProduct / (magnitudeA * magnitudeB), nil
}

// SquaredL2 calculates the squared L2 distance between two float32 slices.
func SquaredL2(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrSizeMismatch
	}

	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum, nil
}

// EuclideanSimilarity calculates 1 / (1 + L2(a, b)).
// The result is in (0, 1], with 1 for identical vectors.
func EuclideanSimilarity(a, b []float32) (float32, error) {
	sq, err := SquaredL2(a, b)
	if err != nil {
		return 0, err
	}
	return 1 / (1 + float32(math.Sqrt(float64(sq)))), nil
}

// Similarity calculates the similarity between a and b under metric m.
func Similarity(m Metric, a, b []float32) (float32, error) {
	switch m {
	case Cosine:
		return CosineSimilarity(a, b)
	case Euclidean:
		return EuclideanSimilarity(a, b)
	default:
		return 0, fmt.Errorf("unknown metric: %d", uint8(m))
	}
}
