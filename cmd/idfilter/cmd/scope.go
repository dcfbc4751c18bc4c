package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// scopeFlags binds the read scope predicates of the proteins and psms commands.
type scopeFlags struct {
	cluster       int64
	protein       int64
	peptide       int64
	spectrum      int64
	source        int64
	sourceGroup   int64
	modifications []int64
	site          string
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Int64Var(&f.cluster, "cluster", 0, "Restrict to a protein cluster id")
	fs.Int64Var(&f.protein, "protein", 0, "Restrict to a protein id")
	fs.Int64Var(&f.peptide, "peptide", 0, "Restrict to a peptide id")
	fs.Int64Var(&f.spectrum, "spectrum", 0, "Restrict to a spectrum id")
	fs.Int64Var(&f.source, "source", 0, "Restrict to a spectrum source id")
	fs.Int64Var(&f.sourceGroup, "source-group", 0, "Restrict to a spectrum source group id")
	fs.Int64SliceVar(&f.modifications, "modification", nil, "Restrict to PSMs carrying these modification ids")
	fs.StringVar(&f.site, "site", "", "Restrict to modifications at this residue ('(' N-term, ')' C-term)")
}

func (f *scopeFlags) scope(cmd *cobra.Command) (store.Scope, error) {
	var s store.Scope
	fs := cmd.Flags()
	if fs.Changed("cluster") {
		s.Cluster = store.ID(f.cluster)
	}
	if fs.Changed("protein") {
		s.Protein = store.ID(f.protein)
	}
	if fs.Changed("peptide") {
		s.Peptide = store.ID(f.peptide)
	}
	if fs.Changed("spectrum") {
		s.Spectrum = store.ID(f.spectrum)
	}
	if fs.Changed("source") {
		s.SpectrumSource = store.ID(f.source)
	}
	if fs.Changed("source-group") {
		s.SpectrumSourceGroup = store.ID(f.sourceGroup)
	}
	s.Modifications = f.modifications
	switch len(f.site) {
	case 0:
	case 1:
		s.ModifiedSite = f.site[0]
	default:
		return s, fmt.Errorf("--site expects a single residue, got %q", f.site)
	}
	return s, nil
}
