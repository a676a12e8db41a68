package valueobject

import (
	"errors"
	"fmt"
	"math"

	"github.com/pgvector/pgvector-go"
)

// Embedding is a fixed-length numeric vector computed for a record's content.
type Embedding struct {
	values []float32
}

// NewEmbedding creates an Embedding from raw values.
// The slice is copied so later mutation by the caller cannot change a stored vector.
func NewEmbedding(values []float32) (Embedding, error) {
	if len(values) == 0 {
		return Embedding{}, errors.New("embedding cannot be empty")
	}
	for i, v := range values {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Embedding{}, fmt.Errorf("embedding value at index %d is not finite", i)
		}
	}
	cp := make([]float32, len(values))
	copy(cp, values)
	return Embedding{values: cp}, nil
}

// Dimensions returns the vector length.
func (e Embedding) Dimensions() int {
	return len(e.values)
}

// IsZero reports whether the embedding holds no vector.
func (e Embedding) IsZero() bool {
	return len(e.values) == 0
}

// Slice returns a copy of the vector values.
func (e Embedding) Slice() []float32 {
	cp := make([]float32, len(e.values))
	copy(cp, e.values)
	return cp
}

// Vector returns the pgvector representation used for query parameter binding.
func (e Embedding) Vector() pgvector.Vector {
	return pgvector.NewVector(e.Slice())
}

// Equal reports whether two embeddings hold the same values.
func (e Embedding) Equal(other Embedding) bool {
	if len(e.values) != len(other.values) {
		return false
	}
	for i := range e.values {
		if e.values[i] != other.values[i] {
			return false
		}
	}
	return true
}
