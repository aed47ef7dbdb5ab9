package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/hybridgo/blobstore"
	"github.com/hupe1980/hybridgo/metadata"
	"github.com/hupe1980/hybridgo/metric"
	"github.com/klauspost/compress/s2"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/time/rate"
)

// Snapshot layout:
//
//	header (32 bytes, little-endian)
//	payload: uvarint rawLen, uvarint storedLen, storedLen bytes
//	crc32c (4 bytes) over header + payload
//
// The payload holds one record per row in insertion order, including
// soft-deleted rows, so a load restores the exact pre-save state.
// Embeddings are stored as raw IEEE-754 bits for exact round-trips.
const (
	// MagicNumber identifies snapshot files ("HYB1").
	MagicNumber uint32 = 0x48594231

	// FormatVersion is the current snapshot format version.
	FormatVersion uint32 = 1

	headerSize = 32
)

// Compression selects the snapshot payload compression codec.
type Compression uint8

const (
	// CompressionNone stores the payload uncompressed.
	CompressionNone Compression = iota
	// CompressionS2 compresses the payload with S2 (Snappy-compatible).
	CompressionS2
	// CompressionLZ4 compresses the payload with LZ4 block compression.
	CompressionLZ4
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

type snapshotHeader struct {
	Magic          uint32
	Version        uint32
	Metric         metric.Metric
	Compression    Compression
	Dimension      uint32
	RowCount       uint64
	TombstoneCount uint64
}

func (h *snapshotHeader) append(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.Magic)
	dst = binary.LittleEndian.AppendUint32(dst, h.Version)
	dst = append(dst, byte(h.Metric), byte(h.Compression), 0, 0)
	dst = binary.LittleEndian.AppendUint32(dst, h.Dimension)
	dst = binary.LittleEndian.AppendUint64(dst, h.RowCount)
	dst = binary.LittleEndian.AppendUint64(dst, h.TombstoneCount)
	return dst
}

func decodeHeader(data []byte) (snapshotHeader, error) {
	if len(data) < headerSize {
		return snapshotHeader{}, fmt.Errorf("short header: %d bytes", len(data))
	}

	h := snapshotHeader{
		Magic:          binary.LittleEndian.Uint32(data[0:]),
		Version:        binary.LittleEndian.Uint32(data[4:]),
		Metric:         metric.Metric(data[8]),
		Compression:    Compression(data[9]),
		Dimension:      binary.LittleEndian.Uint32(data[12:]),
		RowCount:       binary.LittleEndian.Uint64(data[16:]),
		TombstoneCount: binary.LittleEndian.Uint64(data[24:]),
	}

	if h.Magic != MagicNumber {
		return snapshotHeader{}, fmt.Errorf("invalid magic number: 0x%08x", h.Magic)
	}
	if h.Version != FormatVersion {
		return snapshotHeader{}, fmt.Errorf("unsupported format version: %d", h.Version)
	}
	if !h.Metric.Valid() {
		return snapshotHeader{}, fmt.Errorf("invalid metric: %d", uint8(h.Metric))
	}
	return h, nil
}

// encodeSnapshot serializes the given state into the snapshot format.
func (i *Index) encodeSnapshot(st *indexState) ([]byte, error) {
	raw := make([]byte, 0, len(st.rows)*(i.dimension*4+16))
	for row, rec := range st.rows {
		raw = binary.AppendUvarint(raw, uint64(len(rec.id)))
		raw = append(raw, rec.id...)

		if st.tombstones.Contains(uint32(row)) {
			raw = append(raw, 1)
		} else {
			raw = append(raw, 0)
		}

		for _, f := range rec.embedding {
			raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(f))
		}

		raw = metadata.AppendBinary(raw, rec.metadata)
	}

	stored, err := compressPayload(i.opts.Compression, raw)
	if err != nil {
		return nil, err
	}

	header := snapshotHeader{
		Magic:          MagicNumber,
		Version:        FormatVersion,
		Metric:         i.opts.Metric,
		Compression:    i.opts.Compression,
		Dimension:      uint32(i.dimension),
		RowCount:       uint64(len(st.rows)),
		TombstoneCount: st.tombstones.GetCardinality(),
	}

	buf := header.append(make([]byte, 0, headerSize+len(stored)+20))
	buf = binary.AppendUvarint(buf, uint64(len(raw)))
	buf = binary.AppendUvarint(buf, uint64(len(stored)))
	buf = append(buf, stored...)
	buf = binary.LittleEndian.AppendUint32(buf, crc32.Checksum(buf, crc32cTable))
	return buf, nil
}

// compressPayload compresses raw with the given codec. If compression
// does not shrink the payload, raw is stored as-is; the decoder detects
// this via storedLen == rawLen.
func compressPayload(c Compression, raw []byte) ([]byte, error) {
	var compressed []byte

	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionS2:
		compressed = s2.Encode(nil, raw)
	case CompressionLZ4:
		compressed = make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, compressed, nil)
		if err != nil {
			return nil, err
		}
		compressed = compressed[:n]
		if n == 0 {
			// Incompressible input.
			return raw, nil
		}
	default:
		return nil, fmt.Errorf("unknown compression codec: %d", uint8(c))
	}

	if len(compressed) >= len(raw) {
		return raw, nil
	}
	return compressed, nil
}

func decompressPayload(c Compression, stored []byte, rawLen int) ([]byte, error) {
	if len(stored) == rawLen {
		return stored, nil
	}

	switch c {
	case CompressionNone:
		return nil, fmt.Errorf("payload length mismatch: stored %d, expected %d", len(stored), rawLen)
	case CompressionS2:
		return s2.Decode(nil, stored)
	case CompressionLZ4:
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, raw)
		if err != nil {
			return nil, err
		}
		return raw[:n], nil
	default:
		return nil, fmt.Errorf("unknown compression codec: %d", uint8(c))
	}
}

// decodeSnapshot verifies and decodes a snapshot into a header and state.
func decodeSnapshot(data []byte) (snapshotHeader, *indexState, error) {
	if len(data) < headerSize+4 {
		return snapshotHeader{}, nil, fmt.Errorf("snapshot too short: %d bytes", len(data))
	}

	body := data[:len(data)-4]
	want := binary.LittleEndian.Uint32(data[len(data)-4:])
	if got := crc32.Checksum(body, crc32cTable); got != want {
		return snapshotHeader{}, nil, fmt.Errorf("checksum mismatch: got 0x%08x, want 0x%08x", got, want)
	}

	header, err := decodeHeader(body)
	if err != nil {
		return snapshotHeader{}, nil, err
	}

	rest := body[headerSize:]
	rawLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return snapshotHeader{}, nil, fmt.Errorf("truncated payload length")
	}
	rest = rest[n:]
	storedLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return snapshotHeader{}, nil, fmt.Errorf("truncated payload length")
	}
	rest = rest[n:]
	if uint64(len(rest)) != storedLen {
		return snapshotHeader{}, nil, fmt.Errorf("payload length mismatch: have %d, want %d", len(rest), storedLen)
	}

	raw, err := decompressPayload(header.Compression, rest, int(rawLen))
	if err != nil {
		return snapshotHeader{}, nil, fmt.Errorf("decompress payload: %w", err)
	}

	st := &indexState{
		rows:       make([]*record, 0, header.RowCount),
		ids:        make(map[string]uint32, header.RowCount),
		tombstones: roaring.New(),
	}

	dim := int(header.Dimension)
	for row := uint64(0); row < header.RowCount; row++ {
		idLen, n := binary.Uvarint(raw)
		if n <= 0 || uint64(len(raw)-n) < idLen {
			return snapshotHeader{}, nil, fmt.Errorf("truncated record %d", row)
		}
		id := string(raw[n : n+int(idLen)])
		raw = raw[n+int(idLen):]

		if len(raw) < 1+dim*4 {
			return snapshotHeader{}, nil, fmt.Errorf("truncated record %d", row)
		}
		deleted := raw[0] == 1
		raw = raw[1:]

		embedding := make([]float32, dim)
		for d := range embedding {
			embedding[d] = math.Float32frombits(binary.LittleEndian.Uint32(raw[d*4:]))
		}
		raw = raw[dim*4:]

		md, consumed, err := metadata.DecodeBinary(raw)
		if err != nil {
			return snapshotHeader{}, nil, fmt.Errorf("record %d metadata: %w", row, err)
		}
		raw = raw[consumed:]

		pos := uint32(len(st.rows))
		st.rows = append(st.rows, &record{id: id, embedding: embedding, metadata: md})
		st.ids[id] = pos
		if deleted {
			st.tombstones.Add(pos)
		}
	}

	if len(raw) != 0 {
		return snapshotHeader{}, nil, fmt.Errorf("trailing payload bytes: %d", len(raw))
	}
	if st.tombstones.GetCardinality() != header.TombstoneCount {
		return snapshotHeader{}, nil, fmt.Errorf("tombstone count mismatch: have %d, want %d",
			st.tombstones.GetCardinality(), header.TombstoneCount)
	}

	return header, st, nil
}

// Save writes a snapshot to path atomically (temp file + rename).
// Writes are throttled when SaveBytesPerSecond is configured.
func (i *Index) Save(ctx context.Context, path string) error {
	data, err := i.encodeSnapshot(i.getState())
	if err != nil {
		return persistenceError(path, "encode snapshot", err)
	}

	if err := i.writeFileAtomic(ctx, path, data); err != nil {
		return persistenceError(path, "write snapshot", err)
	}
	return nil
}

// SaveToWriter writes a snapshot to w.
func (i *Index) SaveToWriter(w io.Writer) error {
	data, err := i.encodeSnapshot(i.getState())
	if err != nil {
		return persistenceError("", "encode snapshot", err)
	}

	if _, err := w.Write(data); err != nil {
		return persistenceError("", "write snapshot", err)
	}
	return nil
}

// SaveToStore writes a snapshot to a blob store.
func (i *Index) SaveToStore(ctx context.Context, store blobstore.BlobStore, name string) error {
	data, err := i.encodeSnapshot(i.getState())
	if err != nil {
		return persistenceError(name, "encode snapshot", err)
	}

	if err := store.Put(ctx, name, data); err != nil {
		return persistenceError(name, "put snapshot", err)
	}
	return nil
}

// Load replaces the index contents with the snapshot at path. The
// snapshot must have been written with the same dimension and metric.
func (i *Index) Load(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return persistenceError(path, "read snapshot", err)
	}
	return i.loadSnapshot(path, data)
}

// LoadFromReader replaces the index contents with a snapshot read from r.
func (i *Index) LoadFromReader(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return persistenceError("", "read snapshot", err)
	}
	return i.loadSnapshot("", data)
}

// LoadFromStore replaces the index contents with a snapshot from a blob store.
func (i *Index) LoadFromStore(ctx context.Context, store blobstore.BlobStore, name string) error {
	data, err := store.Get(ctx, name)
	if err != nil {
		return persistenceError(name, "get snapshot", err)
	}
	return i.loadSnapshot(name, data)
}

func (i *Index) loadSnapshot(path string, data []byte) error {
	header, st, err := decodeSnapshot(data)
	if err != nil {
		return persistenceError(path, "decode snapshot", err)
	}

	if int(header.Dimension) != i.dimension {
		return persistenceError(path, "incompatible snapshot",
			&ErrDimensionMismatch{Expected: i.dimension, Actual: int(header.Dimension)})
	}
	if header.Metric != i.opts.Metric {
		return persistenceError(path, fmt.Sprintf("metric mismatch: index %s, snapshot %s",
			i.opts.Metric, header.Metric), nil)
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	i.state.Store(st)
	return nil
}

// Open creates an index from a snapshot file, taking dimension and
// metric from the snapshot header.
func Open(ctx context.Context, path string, optFns ...func(o *Options)) (*Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, persistenceError(path, "read snapshot", err)
	}
	return openSnapshot(path, data, optFns)
}

// OpenFromStore creates an index from a snapshot blob.
func OpenFromStore(ctx context.Context, store blobstore.BlobStore, name string, optFns ...func(o *Options)) (*Index, error) {
	data, err := store.Get(ctx, name)
	if err != nil {
		return nil, persistenceError(name, "get snapshot", err)
	}
	return openSnapshot(name, data, optFns)
}

func openSnapshot(path string, data []byte, optFns []func(o *Options)) (*Index, error) {
	header, st, err := decodeSnapshot(data)
	if err != nil {
		return nil, persistenceError(path, "decode snapshot", err)
	}

	idx, err := New(int(header.Dimension), func(o *Options) {
		for _, fn := range optFns {
			fn(o)
		}
		o.Metric = header.Metric
	})
	if err != nil {
		return nil, err
	}

	idx.state.Store(st)
	return idx, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path after a successful fsync.
func (i *Index) writeFileAtomic(ctx context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-snapshot-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := i.writeThrottled(ctx, tmp, data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// writeThrottled writes data, pacing writes with the configured byte
// rate. A zero rate writes in one call.
func (i *Index) writeThrottled(ctx context.Context, f *os.File, data []byte) error {
	bps := i.opts.SaveBytesPerSecond
	if bps <= 0 {
		_, err := f.Write(data)
		return err
	}

	limiter := rate.NewLimiter(rate.Limit(bps), bps)
	chunkSize := min(64*1024, bps)

	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		if err := limiter.WaitN(ctx, end-off); err != nil {
			return err
		}
		if _, err := f.Write(data[off:end]); err != nil {
			return err
		}
	}
	return nil
}
