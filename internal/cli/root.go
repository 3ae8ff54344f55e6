// Package cli provides the statcube command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openstats-labs/statcube/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var cfgFile string

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "statcube",
		Short: "statcube - bilingual statistics cube engine",
		Long: `statcube assembles publication cubes from uploaded fact tables:
date and period reference generation, lookup and reference-data dimension
resolution, coverage validation, and bilingual preview views.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			var err error
			cfg, err = config.Load(cfgFile, cmd.Root().PersistentFlags())
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go and DuckDB
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./statcube.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Path to the buffer data directory")
	rootCmd.PersistentFlags().String("state", "", "Path to the metadata database")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	cfgFn := func() *config.Config { return cfg }
	rootCmd.AddCommand(newServeCommand(cfgFn))
	rootCmd.AddCommand(newBuildCommand(cfgFn))
	rootCmd.AddCommand(newPreviewCommand(cfgFn))
	rootCmd.AddCommand(newDateRefCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("statcube %s (built %s, commit %s)\n", Version, BuildDate, GitCommit)
		},
	}
}
