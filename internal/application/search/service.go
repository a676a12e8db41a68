// Package search answers nearest-neighbour queries over records the backfill
// has already embedded.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"embedfill/internal/application/common/slogger"
	"embedfill/internal/port/outbound"
)

// DefaultLimit is the number of hits returned when a request sets none.
const DefaultLimit = 5

// ErrEmptyQuery is returned for a blank query string.
var ErrEmptyQuery = errors.New("search query cannot be empty")

// Request describes one similarity query.
type Request struct {
	Query    string
	Limit    int
	MinScore float64 // hits scoring below this are dropped; 0 keeps everything
}

// Hit is one search result.
type Hit struct {
	ID      int64   `json:"id" yaml:"id"`
	Score   float64 `json:"score" yaml:"score"`
	Content string  `json:"content" yaml:"content"`
}

// Service encodes the query with the same provider the backfill used and asks
// the store for the nearest processed records.
type Service struct {
	searcher    outbound.RecordSearcher
	provider    outbound.EmbeddingProvider
	queryPrefix string
}

// NewService creates a Service. queryPrefix is prepended to every query before
// encoding, for models trained with asymmetric prefixes.
func NewService(searcher outbound.RecordSearcher, provider outbound.EmbeddingProvider, queryPrefix string) *Service {
	return &Service{searcher: searcher, provider: provider, queryPrefix: queryPrefix}
}

// Search returns the records closest to req.Query, most similar first.
func (s *Service) Search(ctx context.Context, req Request) ([]Hit, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	vectors, err := s.provider.Encode(ctx, []string{s.queryPrefix + query})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to generate embedding for query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("provider returned %d embeddings for one query", len(vectors))
	}

	scored, err := s.searcher.FindNearest(ctx, vectors[0], limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]Hit, 0, len(scored))
	for _, sr := range scored {
		if sr.Score < req.MinScore {
			continue
		}
		hits = append(hits, Hit{ID: sr.Record.ID(), Score: sr.Score, Content: sr.Record.Content()})
	}

	slogger.Debug(ctx, "Search completed", slogger.Fields{
		"limit":      limit,
		"candidates": len(scored),
		"hits":       len(hits),
	})
	return hits, nil
}
