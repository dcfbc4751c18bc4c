package core

import (
	"errors"
	"math"
	"testing"
)

func validRecord() *EvidenceRecord {
	return &EvidenceRecord{
		SourceGroup: "/",
		Source:      "run01.mzML",
		NativeID:    "scan=100",
		Charge:      2,
		Rank:        1,
		QValue:      0.01,
		Sequence:    "PEPTIDE",
		Proteins: []ProteinOccurrence{
			{Accession: "PRO1", Offset: 10},
		},
	}
}

func TestEvidenceRecordValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *EvidenceRecord)
		wantErr bool
	}{
		{
			name:    "valid record",
			mutate:  func(r *EvidenceRecord) {},
			wantErr: false,
		},
		{
			name:    "missing sequence",
			mutate:  func(r *EvidenceRecord) { r.Sequence = "" },
			wantErr: true,
		},
		{
			name:    "unknown residue",
			mutate:  func(r *EvidenceRecord) { r.Sequence = "PEPXIDE" },
			wantErr: true,
		},
		{
			name:    "zero charge",
			mutate:  func(r *EvidenceRecord) { r.Charge = 0 },
			wantErr: true,
		},
		{
			name:    "q-value above one",
			mutate:  func(r *EvidenceRecord) { r.QValue = 1.5 },
			wantErr: true,
		},
		{
			name:    "NaN q-value",
			mutate:  func(r *EvidenceRecord) { r.QValue = math.NaN() },
			wantErr: true,
		},
		{
			name:    "q-value exactly one",
			mutate:  func(r *EvidenceRecord) { r.QValue = 1 },
			wantErr: false,
		},
		{
			name:    "no proteins",
			mutate:  func(r *EvidenceRecord) { r.Proteins = nil },
			wantErr: true,
		},
		{
			name: "modification beyond C-term",
			mutate: func(r *EvidenceRecord) {
				r.Modifications = []PeptideModification{{Offset: 9}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestPeptideInstanceValidation(t *testing.T) {
	protein := &Protein{ID: 1, Accession: "PRO1", Sequence: "MKPEPTIDER"}

	ok := &PeptideInstance{Protein: 1, Peptide: 1, Offset: 2, Length: 7}
	if err := ok.Validate(protein); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	tooLong := &PeptideInstance{Protein: 1, Peptide: 1, Offset: 5, Length: 7}
	if err := tooLong.Validate(protein); err == nil {
		t.Error("expected error for instance past protein end")
	}

	// no sequence known: only structural checks apply
	if err := tooLong.Validate(&Protein{ID: 1}); err != nil {
		t.Errorf("unexpected error without protein sequence: %v", err)
	}
}

func TestPSMValidation(t *testing.T) {
	psm := &PeptideSpectrumMatch{QValue: 0.02, Charge: 3, Rank: 1, MonoisotopicMass: 800.4}
	if err := psm.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	psm.Rank = 0
	psm.QValue = -0.1
	if err := psm.Validate(); err == nil {
		t.Error("expected error for bad rank and q-value")
	}
}

func TestModString(t *testing.T) {
	psm := &PeptideSpectrumMatch{
		Modifications: []PeptideModification{
			{Modification: Modification{MonoMassDelta: 57.021464}, Offset: 3},
			{Modification: Modification{MonoMassDelta: 15.994915}, Offset: 7},
		},
	}

	want := "57.021464@3;15.994915@7"
	if got := psm.ModString(); got != want {
		t.Errorf("ModString() = %q, want %q", got, want)
	}
}

func TestRecordName(t *testing.T) {
	r := validRecord()
	if got := r.Name(); got != "PEPTIDE/2" {
		t.Errorf("Name() = %s, want PEPTIDE/2", got)
	}
}
