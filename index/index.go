// Package index provides an in-memory vector index with soft deletes,
// automatic compaction and binary snapshot persistence.
//
// The index uses a copy-on-write pattern: readers load an immutable state
// snapshot lock-free, while a single mutex serializes writers. Deletes are
// soft (tombstones); once the tombstone ratio crosses the compaction
// threshold the index rebuilds itself into a dense state.
package index

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/hybridgo/metadata"
	"github.com/hupe1980/hybridgo/metric"
)

// record is a stored entry. Records are immutable after publication;
// updates replace the pointer in a cloned state.
type record struct {
	id        string
	embedding []float32
	metadata  metadata.Document
}

// indexState holds the immutable state of the index for lock-free reads.
// rows is in insertion order; tombstones marks soft-deleted row positions.
type indexState struct {
	rows       []*record
	ids        map[string]uint32
	tombstones *roaring.Bitmap
}

func newIndexState() *indexState {
	return &indexState{
		rows:       make([]*record, 0),
		ids:        make(map[string]uint32),
		tombstones: roaring.New(),
	}
}

// Index is a fixed-dimension vector index.
// It uses a copy-on-write pattern for lock-free concurrent reads.
type Index struct {
	state     atomic.Value // holds *indexState for lock-free reads
	writeMu   sync.Mutex   // Serializes writes only
	dimension int
	opts      Options
}

// New creates a new index with the given fixed dimension.
func New(dimension int, optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if dimension <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dimension}
	}
	if !opts.Metric.Valid() {
		return nil, &ErrInvalidMetric{Metric: opts.Metric}
	}

	i := &Index{
		dimension: dimension,
		opts:      opts,
	}
	i.state.Store(newIndexState())

	return i, nil
}

// getState returns the current immutable state (lock-free read).
func (i *Index) getState() *indexState {
	return i.state.Load().(*indexState)
}

// cloneState creates a shallow copy of the current state for copy-on-write.
// Records themselves are immutable and shared between states.
func (i *Index) cloneState(st *indexState) *indexState {
	newRows := make([]*record, len(st.rows))
	copy(newRows, st.rows)

	newIDs := make(map[string]uint32, len(st.ids))
	for id, row := range st.ids {
		newIDs[id] = row
	}

	return &indexState{
		rows:       newRows,
		ids:        newIDs,
		tombstones: st.tombstones.Clone(),
	}
}

// Dimension returns the fixed vector dimension.
func (i *Index) Dimension() int { return i.dimension }

// Metric returns the similarity metric.
func (i *Index) Metric() metric.Metric { return i.opts.Metric }

// Len returns the number of live (non-deleted) entries.
func (i *Index) Len() int {
	st := i.getState()
	return len(st.rows) - int(st.tombstones.GetCardinality())
}

// Add inserts a new entry. It fails with *ErrDuplicateID if the ID is
// already present, including soft-deleted entries that have not been
// compacted away yet, and with *ErrDimensionMismatch if the embedding
// has the wrong length.
func (i *Index) Add(id string, embedding []float32, md metadata.Document) error {
	if len(embedding) != i.dimension {
		return &ErrDimensionMismatch{Expected: i.dimension, Actual: len(embedding)}
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	oldState := i.getState()
	if _, exists := oldState.ids[id]; exists {
		return &ErrDuplicateID{ID: id}
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	newState := i.cloneState(oldState)
	row := uint32(len(newState.rows))
	newState.rows = append(newState.rows, &record{
		id:        id,
		embedding: vec,
		metadata:  metadata.CloneIfNeeded(md),
	})
	newState.ids[id] = row

	i.state.Store(newState)
	return nil
}

// Update modifies an existing entry. A nil embedding keeps the stored
// vector; a non-nil patch is merged into the stored metadata, with patch
// keys replacing existing ones. Soft-deleted entries cannot be updated.
func (i *Index) Update(id string, embedding []float32, patch metadata.Document) error {
	if embedding != nil && len(embedding) != i.dimension {
		return &ErrDimensionMismatch{Expected: i.dimension, Actual: len(embedding)}
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	oldState := i.getState()
	row, exists := oldState.ids[id]
	if !exists || oldState.tombstones.Contains(row) {
		return &ErrNotFound{ID: id}
	}

	old := oldState.rows[row]
	updated := &record{
		id:        old.id,
		embedding: old.embedding,
		metadata:  old.metadata,
	}
	if embedding != nil {
		vec := make([]float32, len(embedding))
		copy(vec, embedding)
		updated.embedding = vec
	}
	if patch != nil {
		updated.metadata = old.metadata.Merge(patch)
	}

	newState := i.cloneState(oldState)
	newState.rows[row] = updated

	i.state.Store(newState)
	return nil
}

// Delete soft-deletes an entry. Deleting a missing or already deleted
// entry is a no-op. When the tombstone ratio reaches the compaction
// threshold, the index is rebuilt before the call returns.
func (i *Index) Delete(id string) error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	oldState := i.getState()
	row, exists := oldState.ids[id]
	if !exists || oldState.tombstones.Contains(row) {
		return nil
	}

	newState := i.cloneState(oldState)
	newState.tombstones.Add(row)

	newState = i.maybeCompact(newState)

	i.state.Store(newState)
	return nil
}

// maybeCompact rebuilds st into a dense state if the tombstone ratio has
// reached the configured threshold. Must be called with writeMu held.
func (i *Index) maybeCompact(st *indexState) *indexState {
	total := len(st.rows)
	if total == 0 || i.opts.CompactionThreshold <= 0 {
		return st
	}

	deleted := int(st.tombstones.GetCardinality())
	ratio := float64(deleted) / float64(total)
	if ratio < i.opts.CompactionThreshold {
		return st
	}

	compacted := compactState(st)
	if i.opts.Logger != nil {
		i.opts.Logger.Debug("index compacted",
			"removed", deleted,
			"live", len(compacted.rows),
		)
	}
	return compacted
}

// compactState returns a dense state containing only live records, in
// their original insertion order.
func compactState(st *indexState) *indexState {
	live := len(st.rows) - int(st.tombstones.GetCardinality())

	newState := &indexState{
		rows:       make([]*record, 0, live),
		ids:        make(map[string]uint32, live),
		tombstones: roaring.New(),
	}
	for row, rec := range st.rows {
		if st.tombstones.Contains(uint32(row)) {
			continue
		}
		newState.ids[rec.id] = uint32(len(newState.rows))
		newState.rows = append(newState.rows, rec)
	}
	return newState
}

// Rebuild compacts the index immediately, regardless of the tombstone
// ratio. It returns the live entry count of the compacted index.
func (i *Index) Rebuild(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	oldState := i.getState()
	if oldState.tombstones.IsEmpty() {
		return len(oldState.rows), nil
	}

	compacted := compactState(oldState)
	i.state.Store(compacted)
	return len(compacted.rows), nil
}

// SearchResult is a single search hit.
type SearchResult struct {
	ID        string
	Score     float32
	Metadata  metadata.Document
	Embedding []float32
}

// Search returns the top k entries by similarity to query, most similar
// first. Ties are broken by insertion order (earlier entries first).
// Soft-deleted entries never appear in results.
func (i *Index) Search(ctx context.Context, query []float32, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != i.dimension {
		return nil, &ErrDimensionMismatch{Expected: i.dimension, Actual: len(query)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	st := i.getState()

	type scored struct {
		row   uint32
		score float32
	}

	candidates := make([]scored, 0, len(st.rows))
	for row, rec := range st.rows {
		if st.tombstones.Contains(uint32(row)) {
			continue
		}
		if opts.Filter != nil && !opts.Filter.Matches(rec.metadata) {
			continue
		}

		score, err := metric.Similarity(i.opts.Metric, query, rec.embedding)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, scored{row: uint32(row), score: score})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		return candidates[a].row < candidates[b].row
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		rec := st.rows[c.row]
		emb := make([]float32, len(rec.embedding))
		copy(emb, rec.embedding)

		results = append(results, SearchResult{
			ID:        rec.id,
			Score:     c.score,
			Metadata:  rec.metadata.Clone(),
			Embedding: emb,
		})
	}
	return results, nil
}

// Get returns a live entry by ID.
func (i *Index) Get(id string) (SearchResult, bool) {
	st := i.getState()

	row, exists := st.ids[id]
	if !exists || st.tombstones.Contains(row) {
		return SearchResult{}, false
	}

	rec := st.rows[row]
	emb := make([]float32, len(rec.embedding))
	copy(emb, rec.embedding)

	return SearchResult{
		ID:        rec.id,
		Metadata:  rec.metadata.Clone(),
		Embedding: emb,
	}, true
}

// Stats is a point-in-time snapshot of index occupancy.
type Stats struct {
	Dimension      int
	Metric         metric.Metric
	Live           int
	Tombstones     int
	TombstoneRatio float64
}

// Stats returns current occupancy statistics.
func (i *Index) Stats() Stats {
	st := i.getState()

	total := len(st.rows)
	deleted := int(st.tombstones.GetCardinality())

	var ratio float64
	if total > 0 {
		ratio = float64(deleted) / float64(total)
	}

	return Stats{
		Dimension:      i.dimension,
		Metric:         i.opts.Metric,
		Live:           total - deleted,
		Tombstones:     deleted,
		TombstoneRatio: ratio,
	}
}
