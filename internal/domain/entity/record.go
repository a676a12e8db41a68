package entity

import (
	"embedfill/internal/domain/valueobject"
)

// Record is one row of text awaiting an embedding.
// Records are created by an external producer; this system only reads them and
// marks them processed.
type Record struct {
	id        int64
	content   string
	processed bool
	embedding valueobject.Embedding
}

// NewUnprocessedRecord restores a record selected for backfill.
func NewUnprocessedRecord(id int64, content string) Record {
	return Record{id: id, content: content}
}

// RestoreRecord creates a Record from stored data.
func RestoreRecord(id int64, content string, processed bool, embedding valueobject.Embedding) Record {
	return Record{
		id:        id,
		content:   content,
		processed: processed,
		embedding: embedding,
	}
}

// ID returns the record identifier.
func (r Record) ID() int64 { return r.id }

// Content returns the text payload.
func (r Record) Content() string { return r.content }

// Processed reports whether an embedding has been stored for the record.
func (r Record) Processed() bool { return r.processed }

// Embedding returns the stored embedding; it is zero while the record is unprocessed.
func (r Record) Embedding() valueobject.Embedding { return r.embedding }

// WithEmbedding returns a processed copy of the record holding the given embedding.
func (r Record) WithEmbedding(embedding valueobject.Embedding) Record {
	r.embedding = embedding
	r.processed = !embedding.IsZero()
	return r
}
