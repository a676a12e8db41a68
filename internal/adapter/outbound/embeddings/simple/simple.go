package simple

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"

	"embedfill/internal/domain/valueobject"
	"embedfill/internal/port/outbound"
)

// DefaultDimensions matches the 1024-d output of e5-large-v2.
const DefaultDimensions = 1024

const modelName = "simple-deterministic"

// Generator is a deterministic, offline EmbeddingProvider.
// Each vector is seeded by the SHA256 of its input text, so equal texts always
// map to equal embeddings. It avoids network calls while exercising the loop.
type Generator struct {
	dims int
}

// New creates a generator producing vectors of the given size.
// A non-positive size selects DefaultDimensions.
func New(dims int) *Generator {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Generator{dims: dims}
}

// Encode returns one L2-normalized vector per text, in input order.
func (g *Generator) Encode(ctx context.Context, texts []string) ([]valueobject.Embedding, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to encode")
	}

	out := make([]valueobject.Embedding, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := valueobject.NewEmbedding(g.vector(text))
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

// ModelInfo reports the generator's fixed model name and size.
func (g *Generator) ModelInfo() outbound.ModelInfo {
	return outbound.ModelInfo{Backend: "simple", Model: modelName, Dimensions: g.dims}
}

func (g *Generator) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))

	// Xorshift64* seeded from the first 8 hash bytes; zero seeds are remapped.
	x := binary.LittleEndian.Uint64(sum[:8])
	if x == 0 {
		x = 0x9e3779b97f4a7c15
	}

	raw := make([]float64, g.dims)
	var norm float64
	for i := range raw {
		x ^= x >> 12
		x ^= x << 25
		x ^= x >> 27
		x *= 0x2545F4914F6CDD1D

		// upper 53 bits -> [0,1) -> [-1,1)
		f := float64(x>>11) / float64(1<<53)
		raw[i] = 2.0*f - 1.0
		norm += raw[i] * raw[i]
	}

	norm = math.Sqrt(norm)
	out := make([]float32, g.dims)
	for i, v := range raw {
		if norm > 0 {
			v /= norm
		}
		out[i] = float32(v)
	}
	return out
}
