package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/IDFilter/pkg/filter"
	"github.com/ChrisMcGann/IDFilter/pkg/view"
)

func newFilterCommand(ctx *commandContext) *cobra.Command {
	var (
		maxQValue     float64
		minDistinct   int
		minSpectra    int
		minAdditional int
		force         bool
	)

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Filter the evidence into a protein-level view",
		Long: `Apply q-value and per-protein thresholds, parsimony and clustering, and
publish the result as the database's canonical view.

Every run starts from the unfiltered baseline, so thresholds may be loosened
as well as tightened. Flags override the [filter] section of the config file.

Examples:
  idfilter filter --db evidence.db
  idfilter filter --db evidence.db --max-qvalue 0.01 --min-distinct-peptides 2
  idfilter filter --db evidence.db --min-additional-peptides 0 --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			fc := cfg.FilterConfig()
			fs := cmd.Flags()
			if fs.Changed("max-qvalue") {
				fc.MaximumQValue = maxQValue
			}
			if fs.Changed("min-distinct-peptides") {
				fc.MinimumDistinctPeptidesPerProtein = minDistinct
			}
			if fs.Changed("min-spectra") {
				fc.MinimumSpectraPerProtein = minSpectra
			}
			if fs.Changed("min-additional-peptides") {
				fc.MinimumAdditionalPeptidesPerProtein = minAdditional
			}
			if err := fc.Validate(); err != nil {
				return err
			}

			st, err := ctx.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if !force {
				current, err := st.Criteria(cmd.Context())
				if err != nil {
					return err
				}
				if fc.Matches(current) {
					fmt.Fprintf(out, "Already filtered with these criteria %s; use --force to re-run.\n",
						humanize.Time(current.FilteredAt))
					return nil
				}
			}

			publisher := view.NewPublisher(st, view.Options{
				Threads: cfg.Runtime.Threads,
				Logger:  logger,
			})
			res, err := publisher.Publish(cmd.Context(), fc)
			if errors.Is(err, view.ErrFilterInProgress) {
				return fmt.Errorf("%w; wait for it to finish and retry", err)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Criteria: %s\n", res.Config.String())
			fmt.Fprintln(out, renderFilterResult(res))
			return nil
		},
	}

	defaults := filter.Default()
	cmd.Flags().Float64Var(&maxQValue, "max-qvalue", defaults.MaximumQValue, "Maximum PSM q-value")
	cmd.Flags().IntVar(&minDistinct, "min-distinct-peptides", defaults.MinimumDistinctPeptidesPerProtein, "Minimum distinct peptides per protein")
	cmd.Flags().IntVar(&minSpectra, "min-spectra", defaults.MinimumSpectraPerProtein, "Minimum spectra per protein")
	cmd.Flags().IntVar(&minAdditional, "min-additional-peptides", defaults.MinimumAdditionalPeptidesPerProtein, "Minimum additional peptides per protein (0 disables parsimony)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-run even when the stored criteria already match")
	return cmd
}

func renderFilterResult(res *view.Result) string {
	pairs := [][2]string{
		{"Run", res.RunID},
		{"Candidate proteins", humanize.Comma(int64(res.Candidates))},
		{"Retained proteins", humanize.Comma(int64(res.Retained))},
		{"Dropped by parsimony", humanize.Comma(int64(len(res.Dropped)))},
		{"Removed rows", res.Cascade.String()},
		{"Explained PSMs", humanize.Comma(int64(res.ExplainedPSMs))},
		{"Clusters", strconv.Itoa(res.Clusters)},
		{"Elapsed", res.Elapsed.Round(time.Millisecond).String()},
	}
	return renderKeyValues("Result", "Value", pairs)
}
