// Package cmd provides CLI command implementations
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:   "idfilter",
		Short: "IDFilter - protein identification filtering tool",
		Long: `IDFilter imports peptide-spectrum match evidence into a SQLite database and
filters it into a protein-level view.

A filter run applies q-value and per-protein count thresholds, removes proteins
that add too few peptides beyond better-supported proteins (parsimony), and
groups proteins sharing spectra into clusters. The unfiltered evidence is kept
as a baseline so thresholds can be changed and re-applied at any time.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	pf.StringVarP(&flags.dbPath, "db", "d", "", "Evidence database path (overrides [store] path)")
	pf.StringVar(&flags.driver, "driver", "", "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	pf.IntVar(&flags.threads, "threads", -1, "Worker threads for parsimony and clustering (0 = all CPUs)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: console or json")

	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newFilterCommand(ctx))
	rootCmd.AddCommand(newResetCommand(ctx))
	rootCmd.AddCommand(newSummarizeCommand(ctx))
	rootCmd.AddCommand(newProteinsCommand(ctx))
	rootCmd.AddCommand(newPSMsCommand(ctx))
	rootCmd.AddCommand(newCriteriaCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
