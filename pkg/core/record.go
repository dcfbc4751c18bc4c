package core

import (
	"fmt"
	"math"
	"strings"
)

// ProteinOccurrence describes where a record's peptide occurs in one protein.
type ProteinOccurrence struct {
	Accession           string
	Description         string
	Sequence            string // optional; empty when the search database was not supplied
	Offset              int
	NTerminusIsSpecific bool
	CTerminusIsSpecific bool
	MissedCleavages     int
}

// EvidenceRecord is one scored PSM as it arrives from a search engine export,
// before it is normalized into Protein/Peptide/PSM rows.
type EvidenceRecord struct {
	SourceGroup   string // e.g. "/" or "/tissue/A"
	Source        string // spectrum file name
	NativeID      string
	SpectrumIndex int
	PrecursorMZ   float64
	Charge        int
	Rank          int
	QValue        float64
	Sequence      string
	Modifications []PeptideModification
	Proteins      []ProteinOccurrence

	// Line is the 1-based input line the record was read from, for diagnostics.
	Line int
}

// Validate checks that a record meets all requirements for import.
func (r *EvidenceRecord) Validate() error {
	var errs []string

	if r.Source == "" {
		errs = append(errs, "source is required")
	}
	if r.NativeID == "" {
		errs = append(errs, "native id is required")
	}
	if r.Sequence == "" {
		errs = append(errs, "sequence is required")
	}
	for i, aa := range r.Sequence {
		if _, ok := AminoAcidMasses[aa]; !ok {
			errs = append(errs, fmt.Sprintf("unknown residue %q at %d", aa, i))
			break
		}
	}
	if r.Charge <= 0 {
		errs = append(errs, "charge must be positive")
	}
	if r.Rank <= 0 {
		errs = append(errs, "rank must be positive")
	}
	if math.IsNaN(r.QValue) || r.QValue < 0 || r.QValue > 1 {
		errs = append(errs, "q-value must be within [0,1]")
	}
	if len(r.Proteins) == 0 {
		errs = append(errs, "at least one protein is required")
	}
	for i, p := range r.Proteins {
		if p.Accession == "" {
			errs = append(errs, fmt.Sprintf("protein %d has no accession", i))
		}
		if p.Offset < 0 {
			errs = append(errs, fmt.Sprintf("protein %d offset must be non-negative", i))
		}
	}
	for i, mod := range r.Modifications {
		if mod.Offset < -1 || mod.Offset > len(r.Sequence) {
			errs = append(errs, fmt.Sprintf("modification %d offset %d outside peptide", i, mod.Offset))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "EvidenceRecord",
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// Name returns the record name in format "Sequence/Charge"
func (r *EvidenceRecord) Name() string {
	return fmt.Sprintf("%s/%d", r.Sequence, r.Charge)
}
