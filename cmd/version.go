package cmd

import (
	"embedfill/internal/version"

	"github.com/spf13/cobra"
)

// Version information variables that will be set via ldflags during build.
//
//nolint:gochecknoglobals // Required for build-time injection via ldflags.
var (
	Version   string
	Commit    string
	BuildTime string
)

// newVersionCmd creates and returns the version command.
func newVersionCmd() *cobra.Command {
	var (
		short  bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if Version != "" || Commit != "" || BuildTime != "" {
				version.SetBuildVars(Version, Commit, BuildTime)
			}
			info := version.GetVersion()
			if output != "" {
				return writeStructured(cmd.OutOrStdout(), output, info)
			}
			return info.Write(cmd.OutOrStdout(), short)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Show only version number")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Structured output format (yaml, json)")
	return cmd
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newVersionCmd())
}
