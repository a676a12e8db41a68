// Package langchain adapts tmc/langchaingo embedding clients to the
// EmbeddingProvider port.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"embedfill/internal/domain/valueobject"
	"embedfill/internal/port/outbound"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"

	// noToken is sent to OpenAI-compatible servers that don't authenticate.
	noToken = "none"
)

// Config selects and parameterizes a langchaingo backend.
type Config struct {
	Backend    string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
	// BatchSize caps texts per backend request; 0 keeps the langchaingo default.
	BatchSize int
}

// Embedder implements outbound.DescribedProvider on top of a langchaingo embedder.
type Embedder struct {
	embedder embeddings.Embedder
	info     outbound.ModelInfo
	timeout  time.Duration
}

// New builds the client for cfg.Backend and wraps it.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch cfg.Backend {
	case BackendOpenAI:
		client, err = newOpenAIClient(cfg)
	case BackendOllama:
		client, err = newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported langchain backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Backend, err)
	}

	return NewWithClient(client, cfg)
}

// NewWithClient wraps an existing langchaingo client.
func NewWithClient(client embeddings.EmbedderClient, cfg Config) (*Embedder, error) {
	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}

	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &Embedder{
		embedder: embedder,
		info:     outbound.ModelInfo{Backend: cfg.Backend, Model: cfg.Model, Dimensions: cfg.Dimensions},
		timeout:  cfg.Timeout,
	}, nil
}

func newOpenAIClient(cfg Config) (*openai.LLM, error) {
	token := cfg.APIKey
	if token == "" {
		token = noToken
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

func newOllamaClient(cfg Config) (*ollama.LLM, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	return ollama.New(opts...)
}

// Encode sends all texts to the backend and converts the result.
// Any backend error or malformed vector fails the whole call.
func (e *Embedder) Encode(ctx context.Context, texts []string) ([]valueobject.Embedding, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s embed documents: %w", e.info.Backend, err)
	}

	out := make([]valueobject.Embedding, len(vectors))
	for i, v := range vectors {
		emb, err := valueobject.NewEmbedding(v)
		if err != nil {
			return nil, fmt.Errorf("%s returned invalid vector %d: %w", e.info.Backend, i, err)
		}
		out[i] = emb
	}
	return out, nil
}

func (e *Embedder) ModelInfo() outbound.ModelInfo {
	return e.info
}
