package outbound

import (
	"context"

	"embedfill/internal/domain/valueobject"
)

// EmbeddingProvider turns texts into embeddings in bulk.
//
// Encode returns exactly one embedding per input text, in input order, or an
// error and no embeddings at all. Callers never pass an empty slice.
// Implementations are not assumed to be safe for concurrent use.
type EmbeddingProvider interface {
	Encode(ctx context.Context, texts []string) ([]valueobject.Embedding, error)
}

// ModelInfo describes the backend behind a provider.
type ModelInfo struct {
	Backend    string `json:"backend"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// DescribedProvider is implemented by providers that can report their model.
type DescribedProvider interface {
	EmbeddingProvider
	ModelInfo() ModelInfo
}
