package cmd

import (
	"context"
	"fmt"

	"embedfill/internal/config"
	"embedfill/internal/port/outbound"

	"github.com/spf13/cobra"
)

// StatusReport is printed by the status command.
type StatusReport struct {
	Table  string                `json:"table" yaml:"table"`
	Counts outbound.RecordCounts `json:"counts" yaml:"counts"`
}

// newStatusCmd creates and returns the status command.
func newStatusCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show processed and unprocessed record counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := GetConfig()
			if err != nil {
				return err
			}
			report, err := loadStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return writeStructured(cmd.OutOrStdout(), output, report)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml, json)")
	return cmd
}

func loadStatus(ctx context.Context, cfg *config.Config) (StatusReport, error) {
	pool, repo, err := openStore(ctx, cfg)
	if err != nil {
		return StatusReport{}, err
	}
	defer pool.Close()

	counts, err := repo.CountRecords(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("count records: %w", err)
	}
	return StatusReport{Table: cfg.Backfill.Table, Counts: counts}, nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newStatusCmd())
}
