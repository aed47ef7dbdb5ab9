package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStores(t *testing.T) {
	ctx := context.Background()

	stores := map[string]func(t *testing.T) BlobStore{
		"memory": func(t *testing.T) BlobStore {
			return NewMemoryStore()
		},
		"local": func(t *testing.T) BlobStore {
			s, err := NewLocalStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("put get round trip", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.Put(ctx, "snap.bin", []byte("hello")))

				got, err := s.Get(ctx, "snap.bin")
				require.NoError(t, err)
				assert.Equal(t, []byte("hello"), got)
			})

			t.Run("put overwrites", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.Put(ctx, "snap.bin", []byte("v1")))
				require.NoError(t, s.Put(ctx, "snap.bin", []byte("v2")))

				got, err := s.Get(ctx, "snap.bin")
				require.NoError(t, err)
				assert.Equal(t, []byte("v2"), got)
			})

			t.Run("get missing", func(t *testing.T) {
				s := newStore(t)
				_, err := s.Get(ctx, "missing.bin")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.Put(ctx, "snap.bin", []byte("x")))
				require.NoError(t, s.Delete(ctx, "snap.bin"))
				require.NoError(t, s.Delete(ctx, "snap.bin"))

				_, err := s.Get(ctx, "snap.bin")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("list with prefix", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.Put(ctx, "a/one.bin", []byte("1")))
				require.NoError(t, s.Put(ctx, "a/two.bin", []byte("2")))
				require.NoError(t, s.Put(ctx, "b/three.bin", []byte("3")))

				names, err := s.List(ctx, "a/")
				require.NoError(t, err)
				assert.Equal(t, []string{"a/one.bin", "a/two.bin"}, names)

				all, err := s.List(ctx, "")
				require.NoError(t, err)
				assert.Len(t, all, 3)
			})
		})
	}
}

func TestMemoryStoreCopySemantics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("original")
	require.NoError(t, s.Put(ctx, "blob", data))
	data[0] = 'X'

	got, err := s.Get(ctx, "blob")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := s.Get(ctx, "blob")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestLocalStoreNoTempLeftovers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "snap.bin", []byte("data")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snap.bin", entries[0].Name())

	// A leftover temp file from a crashed write must not show up in List.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-blob-123"), []byte("junk"), 0o644))
	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"snap.bin"}, names)
}
