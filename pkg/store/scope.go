package store

// DistinctPeptideKey identifies one peptide interpretation: a peptide at a
// specific modified mass.
type DistinctPeptideKey struct {
	Peptide          int64
	MonoisotopicMass float64
	Sequence         string // display form, e.g. "PEPT[80]IDE"
}

// Scope narrows evidence queries to a cluster, protein, peptide, modification
// site, spectrum or provenance group. A zero Scope selects everything.
type Scope struct {
	Cluster             *int64
	Protein             *int64
	Peptide             *int64
	DistinctPeptide     *DistinctPeptideKey
	Modifications       []int64
	ModifiedSite        byte
	Spectrum            *int64
	SpectrumSource      *int64
	SpectrumSourceGroup *int64
}

// IsEmpty reports whether no predicate is set.
func (s Scope) IsEmpty() bool {
	return s.Cluster == nil && s.Protein == nil && s.Peptide == nil &&
		s.DistinctPeptide == nil && len(s.Modifications) == 0 && s.ModifiedSite == 0 &&
		s.Spectrum == nil && s.SpectrumSource == nil && s.SpectrumSourceGroup == nil
}

// ID is a convenience for building scope predicates from literals.
func ID(v int64) *int64 {
	return &v
}
