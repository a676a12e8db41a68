package entity

import (
	"fmt"

	"embedfill/internal/domain/valueobject"
)

// Batch is an ordered group of records fetched together in one loop iteration.
type Batch struct {
	records []Record
}

// NewBatch wraps fetched records, preserving their order.
func NewBatch(records []Record) Batch {
	return Batch{records: records}
}

// Len returns the number of records in the batch.
func (b Batch) Len() int { return len(b.records) }

// IsEmpty reports whether the batch holds no records.
func (b Batch) IsEmpty() bool { return len(b.records) == 0 }

// Records returns the records in fetch order.
func (b Batch) Records() []Record { return b.records }

// IDs returns the record identifiers in fetch order.
func (b Batch) IDs() []int64 {
	ids := make([]int64, len(b.records))
	for i, r := range b.records {
		ids[i] = r.id
	}
	return ids
}

// Contents returns the record payloads in fetch order, parallel to IDs.
func (b Batch) Contents() []string {
	contents := make([]string, len(b.records))
	for i, r := range b.records {
		contents[i] = r.content
	}
	return contents
}

// WithEmbeddings pairs embeddings[i] with the i-th record and returns the
// processed records in fetch order. Pairing is positional, so the lengths must match.
func (b Batch) WithEmbeddings(embeddings []valueobject.Embedding) ([]Record, error) {
	if len(embeddings) != len(b.records) {
		return nil, fmt.Errorf("got %d embeddings for %d records", len(embeddings), len(b.records))
	}
	paired := make([]Record, len(b.records))
	for i, r := range b.records {
		paired[i] = r.WithEmbedding(embeddings[i])
	}
	return paired, nil
}
