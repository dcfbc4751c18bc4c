package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/IDFilter/pkg/core"
	"github.com/ChrisMcGann/IDFilter/pkg/reader/evidence"
	"github.com/ChrisMcGann/IDFilter/pkg/store/sqlite"
)

const progressInterval = 10000

func newImportCommand(ctx *commandContext) *cobra.Command {
	var modsCSV string
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import PSM evidence into the database",
		Long: `Import tab-separated PSM evidence exports into the unfiltered baseline.

Proteins, peptides, spectra and sources are deduplicated by name, so several
exports may be imported into the same database. Importing into a database that
has been filtered is refused; run "idfilter reset" first.

Examples:
  idfilter import --db evidence.db run1.tsv run2.tsv
  idfilter import --db evidence.db --mods unimod_custom.csv run1.tsv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("chunk-size") {
				chunkSize = cfg.Runtime.ChunkSize
			}

			modDB := core.DefaultModDatabase()
			if modsCSV != "" {
				f, err := os.Open(modsCSV)
				if err != nil {
					return fmt.Errorf("failed to open modification file: %w", err)
				}
				err = modDB.LoadFromCSV(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("failed to load modification file: %w", err)
				}
				logger.Info("loaded modifications", "path", modsCSV, "count", modDB.Len())
			}

			st, err := ctx.openStore(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer st.Close()

			im, err := st.NewImporter(cmd.Context(), chunkSize)
			if err != nil {
				return err
			}
			defer im.Close()

			out := cmd.OutOrStdout()
			var skipped int64
			for _, path := range args {
				n, err := importFile(path, modDB, im, func(line int, err error) {
					skipped++
					logger.Warn("skipping invalid record", "path", path, "line", line, "error", err)
				}, func(count int64) {
					fmt.Fprintf(out, "Processed %s records...\n", humanize.Comma(count))
				})
				if err != nil {
					return err
				}
				logger.Info("imported evidence file", "path", path, "records", n)
			}

			if err := im.Finalize(); err != nil {
				return fmt.Errorf("failed to finalize import: %w", err)
			}

			stats := im.Stats()
			fmt.Fprintf(out, "\nImport complete!\n")
			fmt.Fprintln(out, renderImportStats(stats))
			if skipped > 0 {
				fmt.Fprintf(out, "Skipped: %s records (validation errors)\n", humanize.Comma(skipped))
			}
			fmt.Fprintf(out, "Output: %s\n", st.Path())
			return nil
		},
	}

	cmd.Flags().StringVar(&modsCSV, "mods", "", "CSV of additional modifications (name,mono,avg)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", sqlite.DefaultChunkSize, "Records committed per transaction")
	return cmd
}

// importFile streams one export into im. Records failing validation are
// reported through skip and not written.
func importFile(path string, modDB *core.ModDatabase, im *sqlite.Importer, skip func(int, error), progress func(int64)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	reader := evidence.NewReader(f, modDB)
	var count int64
	for reader.Next() {
		rec := reader.Record()
		if err := rec.Validate(); err != nil {
			skip(rec.Line, err)
			continue
		}
		if err := im.Write(rec); err != nil {
			return count, fmt.Errorf("%s line %d: failed to write %s: %w", path, rec.Line, rec.Name(), err)
		}
		count++
		if stats := im.Stats(); stats.Records%progressInterval == 0 {
			progress(stats.Records)
		}
	}
	if err := reader.Err(); err != nil {
		return count, fmt.Errorf("error reading %s: %w", path, err)
	}
	return count, nil
}

func renderImportStats(s sqlite.ImportStats) string {
	pairs := [][2]string{
		{"Records", humanize.Comma(s.Records)},
		{"Proteins", humanize.Comma(s.Proteins)},
		{"Peptides", humanize.Comma(s.Peptides)},
		{"Peptide instances", humanize.Comma(s.PeptideInstances)},
		{"PSMs", humanize.Comma(s.PSMs)},
		{"Spectra", humanize.Comma(s.Spectra)},
		{"Sources", humanize.Comma(s.Sources)},
		{"Source groups", humanize.Comma(s.SourceGroups)},
		{"Modifications", humanize.Comma(s.Modifications)},
	}
	return renderKeyValues("Imported", "Count", pairs)
}
