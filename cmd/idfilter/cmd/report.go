package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
	"github.com/ChrisMcGann/IDFilter/pkg/store/sqlite"
)

func newSummarizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize",
		Short: "Summarize database contents",
		Long:  `Print row counts of the current view and, when filtered, of the unfiltered baseline, with the criteria of the last filter run.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer st.Close()

			sum, err := st.Summary(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			size := "unknown"
			if info, err := os.Stat(st.Path()); err == nil {
				size = humanize.Bytes(uint64(info.Size()))
			}
			fmt.Fprintf(out, "Database: %s (%s, driver %s)\n", st.Path(), size, st.Driver())
			fmt.Fprintln(out, renderSummary(sum))
			if sum.Criteria != nil {
				fmt.Fprintln(out, renderCriteria(sum.Criteria))
			} else {
				fmt.Fprintln(out, "Not filtered.")
			}
			return nil
		},
	}
}

func renderSummary(sum *sqlite.Summary) string {
	headers := []string{"Rows", "Current"}
	if sum.Filtered {
		headers = append(headers, "Unfiltered")
	}
	line := func(label string, current, unfiltered int64) []string {
		row := []string{label, humanize.Comma(current)}
		if sum.Filtered {
			row = append(row, humanize.Comma(unfiltered))
		}
		return row
	}
	c, u := sum.Canonical, sum.Unfiltered
	rows := [][]string{
		line("Proteins", c.Proteins, u.Proteins),
		line("Peptide instances", c.PeptideInstances, u.PeptideInstances),
		line("Peptides", c.Peptides, u.Peptides),
		line("PSMs", c.PSMs, u.PSMs),
		line("Spectra", c.Spectra, u.Spectra),
	}
	if sum.Filtered {
		rows = append(rows, []string{"Clusters", humanize.Comma(sum.Clusters), ""})
	}
	return renderTable(headers, rows, text.AlignLeft, text.AlignRight, text.AlignRight)
}

func renderCriteria(c *store.FilteringCriteria) string {
	pairs := [][2]string{
		{"Maximum q-value", strconv.FormatFloat(c.MaximumQValue, 'g', -1, 64)},
		{"Min. distinct peptides per protein", strconv.Itoa(c.MinimumDistinctPeptidesPerProtein)},
		{"Min. spectra per protein", strconv.Itoa(c.MinimumSpectraPerProtein)},
		{"Min. additional peptides per protein", strconv.Itoa(c.MinimumAdditionalPeptidesPerProtein)},
		{"Run", c.RunID},
		{"Filtered", fmt.Sprintf("%s (%s)", c.FilteredAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(c.FilteredAt))},
	}
	return renderKeyValues("Criterion", "Value", pairs)
}

func newCriteriaCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "criteria",
		Short: "Show the criteria of the last filter run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer st.Close()

			crit, err := st.Criteria(cmd.Context())
			if err != nil {
				return err
			}
			if crit == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not filtered.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderCriteria(crit))
			return nil
		},
	}
}

func newProteinsCommand(ctx *commandContext) *cobra.Command {
	var scope scopeFlags

	cmd := &cobra.Command{
		Use:   "proteins",
		Short: "List proteins of the current view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scope.scope(cmd)
			if err != nil {
				return err
			}
			st, err := ctx.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer st.Close()

			proteins, err := st.Proteins(cmd.Context(), s)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(proteins))
			for _, p := range proteins {
				cluster := ""
				if p.Cluster > 0 {
					cluster = strconv.FormatInt(p.Cluster, 10)
				}
				rows = append(rows, []string{
					strconv.FormatInt(p.ID, 10),
					p.Accession,
					cluster,
					strconv.Itoa(p.DistinctPeptides),
					strconv.Itoa(p.Spectra),
					strconv.Itoa(p.AdditionalMatches),
					p.ProteinGroup,
					p.Description,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Id", "Accession", "Cluster", "Peptides", "Spectra", "Additional", "Group", "Description"},
				rows,
				text.AlignRight, text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignRight, text.AlignRight))
			fmt.Fprintf(out, "%s proteins\n", humanize.Comma(int64(len(proteins))))
			return nil
		},
	}
	scope.register(cmd)
	return cmd
}

func newPSMsCommand(ctx *commandContext) *cobra.Command {
	var scope scopeFlags

	cmd := &cobra.Command{
		Use:   "psms",
		Short: "List peptide-spectrum matches of the current view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scope.scope(cmd)
			if err != nil {
				return err
			}
			st, err := ctx.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer st.Close()

			psms, err := st.PSMs(cmd.Context(), s)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(psms))
			for _, p := range psms {
				rows = append(rows, []string{
					strconv.FormatInt(p.ID, 10),
					p.Source,
					p.NativeID,
					p.Sequence,
					strconv.Itoa(p.Charge),
					strconv.FormatFloat(p.QValue, 'g', 4, 64),
					strconv.FormatFloat(p.MassError, 'f', 4, 64),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Id", "Source", "Native id", "Sequence", "Charge", "Q-value", "Mass error"},
				rows,
				text.AlignRight, text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignRight))
			fmt.Fprintf(out, "%s PSMs\n", humanize.Comma(int64(len(psms))))
			return nil
		},
	}
	scope.register(cmd)
	return cmd
}
