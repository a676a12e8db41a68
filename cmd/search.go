package cmd

import (
	"context"
	"fmt"
	"strings"

	"embedfill/internal/adapter/outbound/embeddings"
	"embedfill/internal/application/common/slogger"
	"embedfill/internal/application/search"
	"embedfill/internal/config"

	"github.com/spf13/cobra"
)

// SearchReport is printed by the search command.
type SearchReport struct {
	Query string       `json:"query" yaml:"query"`
	Hits  []search.Hit `json:"hits" yaml:"hits"`
}

// newSearchCmd creates and returns the search command.
func newSearchCmd() *cobra.Command {
	var (
		output   string
		minScore float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the records whose embeddings are closest to a query",
		Long: `Encode the query with the configured embedding backend and list the
processed records nearest to it by cosine distance. Records the backfill has
not reached yet are not searchable.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := GetConfig()
			if err != nil {
				return err
			}
			req := search.Request{
				Query:    strings.Join(args, " "),
				Limit:    cfg.Search.Limit,
				MinScore: minScore,
			}
			hits, err := runSearch(cmd.Context(), cfg, req)
			if err != nil {
				return err
			}
			return writeStructured(cmd.OutOrStdout(), output, SearchReport{Query: req.Query, Hits: hits})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml, json)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Drop hits with a lower cosine similarity")
	cmd.Flags().IntP("limit", "k", search.DefaultLimit, "Maximum number of hits")
	cmd.Flags().String("query-prefix", "", "Text prepended to the query before encoding")

	bindFlag("search.limit", cmd, "limit")
	bindFlag("search.query_prefix", cmd, "query-prefix")
	return cmd
}

func runSearch(ctx context.Context, cfg *config.Config, req search.Request) ([]search.Hit, error) {
	pool, repo, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	provider, err := embeddings.NewProvider(embeddingConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			slogger.Warn(ctx, "Failed to close embedding provider", slogger.Field("error", err.Error()))
		}
	}()

	return search.NewService(repo, provider, cfg.Search.QueryPrefix).Search(ctx, req)
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newSearchCmd())
}
