package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/hybridgo/metadata"
	"github.com/hupe1980/hybridgo/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		idx, err := New(4)
		require.NoError(t, err)
		assert.Equal(t, 4, idx.Dimension())
		assert.Equal(t, metric.Cosine, idx.Metric())
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("invalid dimension", func(t *testing.T) {
		_, err := New(0)
		var id *ErrInvalidDimension
		require.ErrorAs(t, err, &id)
		assert.Equal(t, 0, id.Dimension)
	})

	t.Run("invalid metric", func(t *testing.T) {
		_, err := New(4, func(o *Options) {
			o.Metric = metric.Metric(42)
		})
		var im *ErrInvalidMetric
		assert.ErrorAs(t, err, &im)
	})
}

func TestAdd(t *testing.T) {
	t.Run("dimension mismatch", func(t *testing.T) {
		idx, err := New(4)
		require.NoError(t, err)

		err = idx.Add("a", []float32{1, 0}, nil)
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 4, dm.Expected)
		assert.Equal(t, 2, dm.Actual)
	})

	t.Run("duplicate id", func(t *testing.T) {
		idx, err := New(2)
		require.NoError(t, err)

		require.NoError(t, idx.Add("a", []float32{1, 0}, nil))
		err = idx.Add("a", []float32{0, 1}, nil)

		var dup *ErrDuplicateID
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "a", dup.ID)
	})

	t.Run("duplicate of soft-deleted id", func(t *testing.T) {
		idx, err := New(2, func(o *Options) {
			o.CompactionThreshold = 2 // never auto-compact
		})
		require.NoError(t, err)

		require.NoError(t, idx.Add("a", []float32{1, 0}, nil))
		require.NoError(t, idx.Delete("a"))

		// The tombstone still occupies the id until compaction.
		err = idx.Add("a", []float32{0, 1}, nil)
		var dup *ErrDuplicateID
		assert.ErrorAs(t, err, &dup)

		_, err = idx.Rebuild(context.Background())
		require.NoError(t, err)
		assert.NoError(t, idx.Add("a", []float32{0, 1}, nil))
	})

	t.Run("caller cannot mutate stored data", func(t *testing.T) {
		idx, err := New(2)
		require.NoError(t, err)

		vec := []float32{1, 0}
		md := metadata.Document{"k": metadata.String("v")}
		require.NoError(t, idx.Add("a", vec, md))

		vec[0] = 99
		md["k"] = metadata.String("changed")

		got, ok := idx.Get("a")
		require.True(t, ok)
		assert.Equal(t, float32(1), got.Embedding[0])
		assert.Equal(t, "v", got.Metadata["k"].StringValue())
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	newIndex := func(t *testing.T) *Index {
		idx, err := New(4)
		require.NoError(t, err)
		require.NoError(t, idx.Add("v1", []float32{1, 0, 0, 0}, metadata.Document{"category": metadata.String("a")}))
		require.NoError(t, idx.Add("v2", []float32{0.9, 0.1, 0, 0}, metadata.Document{"category": metadata.String("b")}))
		require.NoError(t, idx.Add("v3", []float32{0, 1, 0, 0}, metadata.Document{"category": metadata.String("a")}))
		return idx
	}

	t.Run("cosine top-k ordering", func(t *testing.T) {
		idx := newIndex(t)

		results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "v1", results[0].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)

		assert.Equal(t, "v2", results[1].ID)
		assert.InDelta(t, 0.994, results[1].Score, 1e-3)
	})

	t.Run("k larger than index", func(t *testing.T) {
		idx := newIndex(t)

		results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("metadata filter", func(t *testing.T) {
		idx := newIndex(t)

		results, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 10,
			WithFilter(metadata.NewFilterSet(metadata.Eq("category", metadata.String("a")))))
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "v1", results[0].ID)
		assert.Equal(t, "v3", results[1].ID)
	})

	t.Run("tie break by insertion order", func(t *testing.T) {
		idx, err := New(2)
		require.NoError(t, err)
		require.NoError(t, idx.Add("late", []float32{1, 0}, nil))
		require.NoError(t, idx.Delete("late"))
		_, err = idx.Rebuild(ctx)
		require.NoError(t, err)

		require.NoError(t, idx.Add("first", []float32{1, 0}, nil))
		require.NoError(t, idx.Add("second", []float32{1, 0}, nil))

		results, err := idx.Search(ctx, []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "first", results[0].ID)
		assert.Equal(t, "second", results[1].ID)
	})

	t.Run("euclidean", func(t *testing.T) {
		idx, err := New(2, func(o *Options) {
			o.Metric = metric.Euclidean
		})
		require.NoError(t, err)
		require.NoError(t, idx.Add("exact", []float32{1, 1}, nil))
		require.NoError(t, idx.Add("far", []float32{5, 5}, nil))

		results, err := idx.Search(ctx, []float32{1, 1}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "exact", results[0].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.Less(t, results[1].Score, results[0].Score)
	})

	t.Run("invalid k", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 0)
		assert.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Search(ctx, []float32{1, 0}, 2)
		var dm *ErrDimensionMismatch
		assert.ErrorAs(t, err, &dm)
	})

	t.Run("cancelled context", func(t *testing.T) {
		idx := newIndex(t)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := idx.Search(cancelled, []float32{1, 0, 0, 0}, 2)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("empty index", func(t *testing.T) {
		idx, err := New(2)
		require.NoError(t, err)

		results, err := idx.Search(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("replace embedding", func(t *testing.T) {
		idx, err := New(2)
		require.NoError(t, err)
		require.NoError(t, idx.Add("a", []float32{1, 0}, nil))

		require.NoError(t, idx.Update("a", []float32{0, 1}, nil))

		results, err := idx.Search(ctx, []float32{0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	})

	t.Run("merge metadata keeps embedding", func(t *testing.T) {
		idx, err := New(2)
		require.NoError(t, err)
		require.NoError(t, idx.Add("a", []float32{1, 0}, metadata.Document{
			"keep":    metadata.String("original"),
			"replace": metadata.Int(1),
		}))

		require.NoError(t, idx.Update("a", nil, metadata.Document{
			"replace": metadata.Int(2),
			"new":     metadata.Bool(true),
		}))

		got, ok := idx.Get("a")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 0}, got.Embedding)
		assert.Equal(t, "original", got.Metadata["keep"].StringValue())
		assert.Equal(t, int64(2), got.Metadata["replace"].I64)
		assert.True(t, got.Metadata["new"].B)
	})

	t.Run("not found", func(t *testing.T) {
		idx, err := New(2)
		require.NoError(t, err)

		err = idx.Update("missing", []float32{1, 0}, nil)
		var nf *ErrNotFound
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("soft-deleted entry behaves as missing", func(t *testing.T) {
		idx, err := New(2, func(o *Options) {
			o.CompactionThreshold = 2
		})
		require.NoError(t, err)
		require.NoError(t, idx.Add("a", []float32{1, 0}, nil))
		require.NoError(t, idx.Delete("a"))

		err = idx.Update("a", []float32{0, 1}, nil)
		var nf *ErrNotFound
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		idx, err := New(2)
		require.NoError(t, err)
		require.NoError(t, idx.Add("a", []float32{1, 0}, nil))

		err = idx.Update("a", []float32{1, 0, 0}, nil)
		var dm *ErrDimensionMismatch
		assert.ErrorAs(t, err, &dm)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("excluded from search", func(t *testing.T) {
		idx, err := New(2, func(o *Options) {
			o.CompactionThreshold = 2
		})
		require.NoError(t, err)
		require.NoError(t, idx.Add("a", []float32{1, 0}, nil))
		require.NoError(t, idx.Add("b", []float32{0, 1}, nil))

		require.NoError(t, idx.Delete("a"))

		results, err := idx.Search(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].ID)
		assert.Equal(t, 1, idx.Len())
	})

	t.Run("idempotent", func(t *testing.T) {
		idx, err := New(2, func(o *Options) {
			o.CompactionThreshold = 2
		})
		require.NoError(t, err)
		require.NoError(t, idx.Add("a", []float32{1, 0}, nil))

		require.NoError(t, idx.Delete("a"))
		require.NoError(t, idx.Delete("a"))
		require.NoError(t, idx.Delete("never-existed"))

		assert.Equal(t, 1, idx.Stats().Tombstones)
	})
}

func TestAutoCompaction(t *testing.T) {
	idx, err := New(2) // default threshold 0.2
	require.NoError(t, err)

	for n := range 5 {
		require.NoError(t, idx.Add(fmt.Sprintf("v%d", n), []float32{float32(n), 1}, nil))
	}

	// 1 of 5 deleted hits the 0.2 threshold exactly.
	require.NoError(t, idx.Delete("v2"))

	stats := idx.Stats()
	assert.Equal(t, 4, stats.Live)
	assert.Equal(t, 0, stats.Tombstones)
	assert.Equal(t, 0.0, stats.TombstoneRatio)

	// The compacted id is free for reuse.
	assert.NoError(t, idx.Add("v2", []float32{9, 9}, nil))
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()

	idx, err := New(2, func(o *Options) {
		o.CompactionThreshold = 2
	})
	require.NoError(t, err)

	for n := range 10 {
		require.NoError(t, idx.Add(fmt.Sprintf("v%d", n), []float32{float32(n), 1}, nil))
	}
	require.NoError(t, idx.Delete("v3"))
	require.NoError(t, idx.Delete("v7"))

	before, err := idx.Search(ctx, []float32{5, 1}, 5)
	require.NoError(t, err)

	live, err := idx.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, live)
	assert.Equal(t, 8, idx.Stats().Live)
	assert.Equal(t, 0, idx.Stats().Tombstones)

	after, err := idx.Search(ctx, []float32{5, 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	t.Run("noop when clean", func(t *testing.T) {
		live, err := idx.Rebuild(ctx)
		require.NoError(t, err)
		assert.Equal(t, 8, live)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := idx.Rebuild(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	ctx := context.Background()

	idx, err := New(2)
	require.NoError(t, err)
	for n := range 50 {
		require.NoError(t, idx.Add(fmt.Sprintf("seed%d", n), []float32{float32(n), 1}, nil))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range 50 {
				id := fmt.Sprintf("w%d-%d", w, n)
				if err := idx.Add(id, []float32{float32(n), 2}, nil); err != nil {
					errs <- err
					return
				}
				if err := idx.Delete(id); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if _, err := idx.Search(ctx, []float32{1, 1}, 10); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	// All writer entries were deleted again.
	assert.Equal(t, 50, idx.Len())
}

func TestStats(t *testing.T) {
	idx, err := New(3, func(o *Options) {
		o.Metric = metric.Euclidean
		o.CompactionThreshold = 2
	})
	require.NoError(t, err)

	require.NoError(t, idx.Add("a", []float32{1, 0, 0}, nil))
	require.NoError(t, idx.Add("b", []float32{0, 1, 0}, nil))
	require.NoError(t, idx.Delete("a"))

	stats := idx.Stats()
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, metric.Euclidean, stats.Metric)
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 1, stats.Tombstones)
	assert.InDelta(t, 0.5, stats.TombstoneRatio, 1e-9)
}

func TestErrorsAreComparable(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add("a", []float32{1, 0}, nil))

	err = idx.Add("a", []float32{1, 0}, nil)
	assert.True(t, errors.As(err, new(*ErrDuplicateID)))
}
