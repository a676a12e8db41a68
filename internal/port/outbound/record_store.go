package outbound

import (
	"context"

	"embedfill/internal/domain/entity"
	"embedfill/internal/domain/valueobject"
)

// RecordFetcher selects records that still need an embedding.
type RecordFetcher interface {
	// FetchUnprocessed returns up to limit unprocessed records in a stable order,
	// skipping any id listed in exclude. An empty result means nothing is left.
	FetchUnprocessed(ctx context.Context, limit int, exclude []int64) ([]entity.Record, error)
}

// RecordMarker stores an embedding and flips the processed flag in one write.
type RecordMarker interface {
	// MarkProcessed atomically sets the embedding and the processed flag for id.
	// On failure the record is left unprocessed.
	MarkProcessed(ctx context.Context, id int64, embedding valueobject.Embedding) error
}

// RecordStore is the storage capability the backfill loop drives.
type RecordStore interface {
	RecordFetcher
	RecordMarker
}

// ScoredRecord is a processed record with its cosine similarity to a query.
type ScoredRecord struct {
	Record entity.Record
	Score  float64
}

// RecordSearcher finds processed records whose embeddings are nearest to a query.
type RecordSearcher interface {
	// FindNearest returns at most k processed records, most similar first.
	FindNearest(ctx context.Context, query valueobject.Embedding, k int) ([]ScoredRecord, error)
}

// RecordCounts summarizes the backfill state of the table.
type RecordCounts struct {
	Total       int64 `json:"total" yaml:"total"`
	Processed   int64 `json:"processed" yaml:"processed"`
	Unprocessed int64 `json:"unprocessed" yaml:"unprocessed"`
	// MissingContent counts unprocessed rows whose content is NULL; they are never fetched.
	MissingContent int64 `json:"missing_content" yaml:"missing_content"`
}

// RecordInspector exposes read-only diagnostics over the record table.
type RecordInspector interface {
	CountRecords(ctx context.Context) (RecordCounts, error)
	VerifySchema(ctx context.Context) error
}
