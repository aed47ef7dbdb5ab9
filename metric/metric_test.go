package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		got, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got, 1e-6)
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		got, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0.0, got, 1e-6)
	})

	t.Run("opposite vectors", func(t *testing.T) {
		got, err := CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
		require.NoError(t, err)
		assert.InDelta(t, -1.0, got, 1e-6)
	})

	t.Run("near neighbor", func(t *testing.T) {
		got, err := CosineSimilarity([]float32{1, 0, 0, 0}, []float32{0.9, 0.1, 0, 0})
		require.NoError(t, err)
		assert.InDelta(t, 0.994, got, 1e-3)
	})

	t.Run("zero vector", func(t *testing.T) {
		got, err := CosineSimilarity([]float32{0, 0}, []float32{1, 2})
		require.NoError(t, err)
		assert.Equal(t, float32(0), got)
	})

	t.Run("size mismatch", func(t *testing.T) {
		_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})
}

func TestEuclideanSimilarity(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		got, err := EuclideanSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got, 1e-6)
	})

	t.Run("unit distance", func(t *testing.T) {
		got, err := EuclideanSimilarity([]float32{0, 0}, []float32{1, 0})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, got, 1e-6)
	})

	t.Run("size mismatch", func(t *testing.T) {
		_, err := EuclideanSimilarity([]float32{1}, []float32{1, 2})
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})
}

func TestSquaredL2(t *testing.T) {
	got, err := SquaredL2([]float32{1, 2}, []float32{4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, got, 1e-6)
}

func TestSimilarityDispatch(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	cos, err := Similarity(Cosine, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, cos, 1e-6)

	euc, err := Similarity(Euclidean, a, b)
	require.NoError(t, err)
	assert.Greater(t, euc, float32(0))

	_, err = Similarity(Metric(99), a, b)
	assert.Error(t, err)
}

func TestMetricString(t *testing.T) {
	assert.Equal(t, "cosine", Cosine.String())
	assert.Equal(t, "euclidean", Euclidean.String())
	assert.True(t, Cosine.Valid())
	assert.False(t, Metric(7).Valid())
}
