package index

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/hybridgo/blobstore"
	"github.com/hupe1980/hybridgo/metadata"
	"github.com/hupe1980/hybridgo/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// awkwardFloats are values that expose lossy float handling: subnormals,
// negative zero, values with no short decimal representation.
var awkwardFloats = []float32{
	0.1,
	float32(math.Copysign(0, -1)),
	math.SmallestNonzeroFloat32,
	1e-7,
	math.MaxFloat32,
	-3.1415927,
}

func buildTestIndex(t *testing.T, optFns ...func(o *Options)) *Index {
	t.Helper()

	idx, err := New(6, optFns...)
	require.NoError(t, err)

	require.NoError(t, idx.Add("a", awkwardFloats, metadata.Document{
		"name":  metadata.String("alpha"),
		"score": metadata.Float(0.1),
	}))
	require.NoError(t, idx.Add("b", []float32{1, 2, 3, 4, 5, 6}, nil))
	require.NoError(t, idx.Add("c", []float32{0, 0, 0, 1, 0, 0}, metadata.Document{
		"tags": metadata.Array(metadata.String("x"), metadata.Int(-5)),
	}))
	return idx
}

func assertBitExact(t *testing.T, want, got []float32) {
	t.Helper()
	require.Len(t, got, len(want))
	for d := range want {
		assert.Equal(t, math.Float32bits(want[d]), math.Float32bits(got[d]), "component %d", d)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()

	codecs := map[string]Compression{
		"none": CompressionNone,
		"s2":   CompressionS2,
		"lz4":  CompressionLZ4,
	}

	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			idx := buildTestIndex(t, func(o *Options) {
				o.Compression = codec
			})

			path := filepath.Join(t.TempDir(), "snap.bin")
			require.NoError(t, idx.Save(ctx, path))

			loaded, err := New(6, func(o *Options) {
				o.Compression = codec
			})
			require.NoError(t, err)
			require.NoError(t, loaded.Load(ctx, path))

			assert.Equal(t, idx.Len(), loaded.Len())

			got, ok := loaded.Get("a")
			require.True(t, ok)
			assertBitExact(t, awkwardFloats, got.Embedding)
			assert.Equal(t, "alpha", got.Metadata["name"].StringValue())
			assert.Equal(t, 0.1, got.Metadata["score"].F64)

			tagged, ok := loaded.Get("c")
			require.True(t, ok)
			items, isArray := tagged.Metadata["tags"].AsArray()
			require.True(t, isArray)
			require.Len(t, items, 2)
			assert.Equal(t, int64(-5), items[1].I64)
		})
	}
}

func TestSaveLoadPreservesTombstones(t *testing.T) {
	ctx := context.Background()

	idx := buildTestIndex(t, func(o *Options) {
		o.CompactionThreshold = 2
	})
	require.NoError(t, idx.Delete("b"))

	path := filepath.Join(t.TempDir(), "snap.bin")
	require.NoError(t, idx.Save(ctx, path))

	loaded, err := New(6)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(ctx, path))

	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, 1, loaded.Stats().Tombstones)

	_, ok := loaded.Get("b")
	assert.False(t, ok)

	// The tombstone still blocks id reuse after load.
	var dup *ErrDuplicateID
	assert.ErrorAs(t, loaded.Add("b", []float32{9, 9, 9, 9, 9, 9}, nil), &dup)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	idx := buildTestIndex(t, func(o *Options) {
		o.Metric = metric.Euclidean
	})
	path := filepath.Join(t.TempDir(), "snap.bin")
	require.NoError(t, idx.Save(ctx, path))

	opened, err := Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 6, opened.Dimension())
	assert.Equal(t, metric.Euclidean, opened.Metric())
	assert.Equal(t, 3, opened.Len())
}

func TestLoadRejectsIncompatibleIndex(t *testing.T) {
	ctx := context.Background()

	idx := buildTestIndex(t)
	path := filepath.Join(t.TempDir(), "snap.bin")
	require.NoError(t, idx.Save(ctx, path))

	t.Run("dimension mismatch", func(t *testing.T) {
		other, err := New(3)
		require.NoError(t, err)

		err = other.Load(ctx, path)
		var pe *ErrPersistence
		require.ErrorAs(t, err, &pe)

		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 3, dm.Expected)
		assert.Equal(t, 6, dm.Actual)
	})

	t.Run("metric mismatch", func(t *testing.T) {
		other, err := New(6, func(o *Options) {
			o.Metric = metric.Euclidean
		})
		require.NoError(t, err)

		err = other.Load(ctx, path)
		var pe *ErrPersistence
		assert.ErrorAs(t, err, &pe)
	})
}

func TestLoadRejectsCorruptSnapshots(t *testing.T) {
	ctx := context.Background()

	idx := buildTestIndex(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.bin")
	require.NoError(t, idx.Save(ctx, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	loadBytes := func(t *testing.T, b []byte) error {
		corrupt := filepath.Join(dir, "corrupt.bin")
		require.NoError(t, os.WriteFile(corrupt, b, 0o644))

		fresh, err := New(6)
		require.NoError(t, err)
		return fresh.Load(ctx, corrupt)
	}

	t.Run("flipped payload byte", func(t *testing.T) {
		mutated := append([]byte(nil), data...)
		mutated[len(mutated)/2] ^= 0xFF

		err := loadBytes(t, mutated)
		var pe *ErrPersistence
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("truncated", func(t *testing.T) {
		err := loadBytes(t, data[:len(data)-5])
		var pe *ErrPersistence
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("bad magic", func(t *testing.T) {
		mutated := append([]byte(nil), data...)
		mutated[0] ^= 0xFF

		err := loadBytes(t, mutated)
		var pe *ErrPersistence
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("empty file", func(t *testing.T) {
		err := loadBytes(t, nil)
		var pe *ErrPersistence
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("missing file", func(t *testing.T) {
		fresh, err := New(6)
		require.NoError(t, err)

		err = fresh.Load(ctx, filepath.Join(dir, "does-not-exist.bin"))
		var pe *ErrPersistence
		assert.ErrorAs(t, err, &pe)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestBlobStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	idx := buildTestIndex(t)
	require.NoError(t, idx.SaveToStore(ctx, store, "snapshots/idx.bin"))

	names, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/idx.bin"}, names)

	t.Run("load into existing index", func(t *testing.T) {
		loaded, err := New(6)
		require.NoError(t, err)
		require.NoError(t, loaded.LoadFromStore(ctx, store, "snapshots/idx.bin"))
		assert.Equal(t, 3, loaded.Len())
	})

	t.Run("open from store", func(t *testing.T) {
		opened, err := OpenFromStore(ctx, store, "snapshots/idx.bin")
		require.NoError(t, err)
		assert.Equal(t, 6, opened.Dimension())
	})

	t.Run("missing blob", func(t *testing.T) {
		fresh, err := New(6)
		require.NoError(t, err)

		err = fresh.LoadFromStore(ctx, store, "snapshots/nope.bin")
		var pe *ErrPersistence
		assert.ErrorAs(t, err, &pe)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}

func TestThrottledSave(t *testing.T) {
	ctx := context.Background()

	idx, err := New(4, func(o *Options) {
		o.SaveBytesPerSecond = 10 * 1024 * 1024
	})
	require.NoError(t, err)
	for n := range 100 {
		require.NoError(t, idx.Add(fmt.Sprintf("v%d", n), []float32{float32(n), 1, 2, 3}, nil))
	}

	path := filepath.Join(t.TempDir(), "snap.bin")
	require.NoError(t, idx.Save(ctx, path))

	loaded, err := Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 100, loaded.Len())
}

func TestSearchAfterLoadMatchesOriginal(t *testing.T) {
	ctx := context.Background()

	idx := buildTestIndex(t)
	path := filepath.Join(t.TempDir(), "snap.bin")
	require.NoError(t, idx.Save(ctx, path))

	loaded, err := Open(ctx, path)
	require.NoError(t, err)

	query := []float32{0.1, 0, 0, 0.5, 0, 0}
	want, err := idx.Search(ctx, query, 3)
	require.NoError(t, err)
	got, err := loaded.Search(ctx, query, 3)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for r := range want {
		assert.Equal(t, want[r].ID, got[r].ID)
		assert.Equal(t, math.Float32bits(want[r].Score), math.Float32bits(got[r].Score))
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	idx := buildTestIndex(t)

	var buf bytes.Buffer
	require.NoError(t, idx.SaveToWriter(&buf))

	restored, err := New(6)
	require.NoError(t, err)
	require.NoError(t, restored.LoadFromReader(&buf))

	assert.Equal(t, idx.Len(), restored.Len())
	got, ok := restored.Get("a")
	require.True(t, ok)
	assertBitExact(t, awkwardFloats, got.Embedding)
}
