package index

import (
	"log/slog"

	"github.com/hupe1980/hybridgo/metadata"
	"github.com/hupe1980/hybridgo/metric"
)

// Options contains configuration options for the index.
type Options struct {
	// Metric is the similarity metric used for search.
	Metric metric.Metric

	// CompactionThreshold is the tombstone ratio (deleted / total) at
	// which a rebuild is triggered automatically after a mutation.
	// Set to a value > 1 to disable automatic compaction.
	CompactionThreshold float64

	// Compression selects the snapshot payload compression.
	Compression Compression

	// SaveBytesPerSecond throttles snapshot writes to local files.
	// Zero means unthrottled.
	SaveBytesPerSecond int

	// Logger receives structured debug events (e.g. automatic compaction).
	// Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions contains the default configuration options for the index.
var DefaultOptions = Options{
	Metric:              metric.Cosine,
	CompactionThreshold: 0.2,
	Compression:         CompressionS2,
}

// SearchOptions contains per-search configuration.
type SearchOptions struct {
	// Filter restricts results to entries whose metadata matches.
	// Nil means no filtering.
	Filter *metadata.FilterSet
}

// WithFilter restricts a search to entries matching the filter set.
func WithFilter(fs *metadata.FilterSet) func(o *SearchOptions) {
	return func(o *SearchOptions) {
		o.Filter = fs
	}
}
