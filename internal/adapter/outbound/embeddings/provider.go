// Package embeddings builds the EmbeddingProvider used by the backfill loop.
//
// NewProvider resolves the backend once from configuration and wraps it so that
// output shape is validated, request rate is optionally capped, and no two Encode
// calls are ever in flight on the same provider.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"embedfill/internal/adapter/outbound/embeddings/langchain"
	"embedfill/internal/adapter/outbound/embeddings/simple"
	"embedfill/internal/domain/valueobject"
	"embedfill/internal/port/outbound"

	"golang.org/x/time/rate"
)

const BackendSimple = "simple"

var (
	// ErrCountMismatch means a backend returned a different number of vectors than texts.
	ErrCountMismatch = errors.New("embedding count does not match input count")
	// ErrDimensionMismatch means a backend returned a vector of the wrong size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Config selects and parameterizes the provider.
type Config struct {
	Backend    string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
	// RateLimit caps Encode calls per second; 0 disables limiting.
	RateLimit float64
	// BatchSize caps texts per remote request; 0 keeps the backend default.
	BatchSize int
}

// Provider is the fully decorated provider returned by NewProvider.
type Provider struct {
	outbound.EmbeddingProvider
	info    outbound.ModelInfo
	backend any
}

// NewProvider builds the backend named by cfg.Backend and decorates it.
func NewProvider(cfg Config) (*Provider, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendSimple
	}

	var base outbound.DescribedProvider
	switch backend {
	case BackendSimple:
		base = simple.New(cfg.Dimensions)
	case langchain.BackendOpenAI, langchain.BackendOllama:
		e, err := langchain.New(langchainConfig(backend, cfg))
		if err != nil {
			return nil, err
		}
		base = e
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}

	return Wrap(base, cfg.Dimensions, cfg.RateLimit), nil
}

func langchainConfig(backend string, cfg Config) langchain.Config {
	return langchain.Config{
		Backend:    backend,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Dimensions: cfg.Dimensions,
		Timeout:    cfg.Timeout,
		BatchSize:  cfg.BatchSize,
	}
}

// Wrap applies Validated, RateLimited (when rps > 0) and Exclusive to base.
func Wrap(base outbound.DescribedProvider, dims int, rps float64) *Provider {
	var p outbound.EmbeddingProvider = Validated(base, dims)
	if rps > 0 {
		p = RateLimited(p, rps)
	}
	return &Provider{
		EmbeddingProvider: Exclusive(p),
		info:              base.ModelInfo(),
		backend:           base,
	}
}

func (p *Provider) ModelInfo() outbound.ModelInfo {
	return p.info
}

// Close releases the backend handle, if it holds one.
func (p *Provider) Close() error {
	if c, ok := p.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type validatedProvider struct {
	next outbound.EmbeddingProvider
	dims int
}

// Validated rejects any result whose length differs from the input's or, when
// dims > 0, that contains a vector of a different dimension.
func Validated(next outbound.EmbeddingProvider, dims int) outbound.EmbeddingProvider {
	return &validatedProvider{next: next, dims: dims}
}

func (v *validatedProvider) Encode(ctx context.Context, texts []string) ([]valueobject.Embedding, error) {
	out, err := v.next.Encode(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(out), len(texts))
	}
	for i, emb := range out {
		if emb.IsZero() {
			return nil, fmt.Errorf("%w: embedding %d is empty", ErrDimensionMismatch, i)
		}
		if v.dims > 0 && emb.Dimensions() != v.dims {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, want %d",
				ErrDimensionMismatch, i, emb.Dimensions(), v.dims)
		}
	}
	return out, nil
}

type rateLimitedProvider struct {
	next    outbound.EmbeddingProvider
	limiter *rate.Limiter
}

// RateLimited waits for a token before each Encode call.
func RateLimited(next outbound.EmbeddingProvider, rps float64) outbound.EmbeddingProvider {
	return &rateLimitedProvider{next: next, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (r *rateLimitedProvider) Encode(ctx context.Context, texts []string) ([]valueobject.Embedding, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return r.next.Encode(ctx, texts)
}

type exclusiveProvider struct {
	mu   sync.Mutex
	next outbound.EmbeddingProvider
}

// Exclusive serializes Encode calls.
func Exclusive(next outbound.EmbeddingProvider) outbound.EmbeddingProvider {
	return &exclusiveProvider{next: next}
}

func (e *exclusiveProvider) Encode(ctx context.Context, texts []string) ([]valueobject.Embedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next.Encode(ctx, texts)
}
