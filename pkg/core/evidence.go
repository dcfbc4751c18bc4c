// Package core provides the evidence data model (proteins, peptides, peptide-spectrum
// matches and their provenance) and validation logic used by IDFilter.
package core

import (
	"fmt"
	"math"
	"strings"
)

// Protein is a candidate protein sequence from the search database.
type Protein struct {
	ID          int64
	Accession   string
	Description string
	Sequence    string
}

// Length returns the protein sequence length in residues.
func (p *Protein) Length() int {
	return len(p.Sequence)
}

// Peptide is a distinct peptide sequence; it may occur in several proteins.
type Peptide struct {
	ID               int64
	Sequence         string
	MonoisotopicMass float64
	MolecularWeight  float64
}

// PeptideInstance is one physical occurrence of a peptide inside a protein.
type PeptideInstance struct {
	ID                  int64
	Protein             int64
	Peptide             int64
	Offset              int // 0-based offset into the protein sequence
	Length              int
	NTerminusIsSpecific bool
	CTerminusIsSpecific bool
	MissedCleavages     int
}

// PeptideSpectrumMatch links a spectrum to a peptide with an already computed q-value.
type PeptideSpectrumMatch struct {
	ID                    int64
	Spectrum              int64
	Analysis              int64
	Peptide               int64
	QValue                float64
	MonoisotopicMass      float64
	MolecularWeight       float64
	MonoisotopicMassError float64
	MolecularWeightError  float64
	Rank                  int
	Charge                int
	Modifications         []PeptideModification
}

// Modification is a mass shift definition shared by every PSM carrying it.
type Modification struct {
	ID            int64
	Name          string
	MonoMassDelta float64
	AvgMassDelta  float64
}

// PeptideModification places a Modification at an offset of a PSM's peptide.
type PeptideModification struct {
	ID           int64
	Modification Modification
	Offset       int  // 0-based; -1 for N-term, len(seq) for C-term
	Site         byte // residue letter, '(' for N-term, ')' for C-term
}

// Spectrum is one observed MS/MS scan.
type Spectrum struct {
	ID          int64
	Source      int64
	Index       int
	NativeID    string
	PrecursorMZ float64
}

// SpectrumSource is the file (or run) spectra were read from.
type SpectrumSource struct {
	ID    int64
	Name  string
	URL   string
	Group int64
}

// SpectrumSourceGroup groups sources hierarchically, e.g. "/", "/tissue/A".
type SpectrumSourceGroup struct {
	ID   int64
	Name string
}

// ValidationError represents an error found during evidence validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Validate checks that a PSM can be stored as evidence.
func (m *PeptideSpectrumMatch) Validate() error {
	var errs []string

	if math.IsNaN(m.QValue) || m.QValue < 0 || m.QValue > 1 {
		errs = append(errs, "q-value must be within [0,1]")
	}
	if m.Charge <= 0 {
		errs = append(errs, "charge must be positive")
	}
	if m.Rank <= 0 {
		errs = append(errs, "rank must be positive")
	}
	if math.IsNaN(m.MonoisotopicMass) || math.IsInf(m.MonoisotopicMass, 0) {
		errs = append(errs, "monoisotopic mass is invalid")
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "PeptideSpectrumMatch",
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// Validate checks that a peptide instance fits inside its protein.
func (pi *PeptideInstance) Validate(protein *Protein) error {
	var errs []string

	if pi.Offset < 0 {
		errs = append(errs, "offset must be non-negative")
	}
	if pi.Length <= 0 {
		errs = append(errs, "length must be positive")
	}
	if pi.MissedCleavages < 0 {
		errs = append(errs, "missed cleavages must be non-negative")
	}
	if protein != nil && protein.Sequence != "" && pi.Offset+pi.Length > protein.Length() {
		errs = append(errs, fmt.Sprintf("instance [%d,%d) exceeds protein length %d",
			pi.Offset, pi.Offset+pi.Length, protein.Length()))
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "PeptideInstance",
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// ModString returns modifications in the format "mass@pos;mass@pos;..."
func (m *PeptideSpectrumMatch) ModString() string {
	if len(m.Modifications) == 0 {
		return ""
	}

	var parts []string
	for _, mod := range m.Modifications {
		parts = append(parts, fmt.Sprintf("%.6f@%d", mod.Modification.MonoMassDelta, mod.Offset))
	}
	return strings.Join(parts, ";")
}
