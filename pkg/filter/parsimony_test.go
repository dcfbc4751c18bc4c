package filter

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// psmEv builds PSM evidence where each protein is its own group.
func psmEv(protein int64, psms ...int64) []store.PSMEvidence {
	var rows []store.PSMEvidence
	for _, psm := range psms {
		rows = append(rows, store.PSMEvidence{
			ProteinID:    protein,
			SpectrumID:   psm,
			PSMID:        psm,
			PeptideID:    psm,
			ProteinGroup: "g" + string(rune('A'+protein)),
		})
	}
	return rows
}

func concat(parts ...[]store.PSMEvidence) []store.PSMEvidence {
	var out []store.PSMEvidence
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestAdditionalPeptidesScenario(t *testing.T) {
	// P1 explains {1,2,3}, P2 {2,3,4}, P3 {5}
	rows := concat(psmEv(1, 1, 2, 3), psmEv(2, 2, 3, 4), psmEv(3, 5))

	got, err := CalculateAdditionalPeptides(context.Background(), []int64{1, 2, 3}, store.NewSliceRows(rows, nil), 2)
	if err != nil {
		t.Fatalf("CalculateAdditionalPeptides: %v", err)
	}

	wantAdditional := map[int64]int{1: 3, 2: 1, 3: 1}
	if diff := cmp.Diff(wantAdditional, got.Additional); diff != "" {
		t.Errorf("additional mismatch (-want +got):\n%s", diff)
	}

	var order []int64
	for _, g := range got.Order {
		order = append(order, g.Proteins...)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, order); diff != "" {
		t.Errorf("selection order mismatch (-want +got):\n%s", diff)
	}
	if got.Explained != 5 {
		t.Errorf("Explained = %d, want 5", got.Explained)
	}

	tests := []struct {
		minimum int
		dropped []int64
	}{
		{minimum: 0, dropped: nil},
		{minimum: 1, dropped: nil},
		{minimum: 2, dropped: []int64{2, 3}},
		{minimum: 4, dropped: []int64{1, 2, 3}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.dropped, got.Dropped(tt.minimum)); diff != "" {
			t.Errorf("Dropped(%d) mismatch (-want +got):\n%s", tt.minimum, diff)
		}
	}
}

func TestAdditionalPeptidesTieBreak(t *testing.T) {
	// equal coverage: the lowest protein id wins, then the other gets nothing new
	rows := concat(psmEv(7, 1, 2), psmEv(4, 1, 2), psmEv(9, 3))

	got, err := CalculateAdditionalPeptides(context.Background(), []int64{9, 7, 4}, store.NewSliceRows(rows, nil), 1)
	if err != nil {
		t.Fatalf("CalculateAdditionalPeptides: %v", err)
	}

	want := map[int64]int{4: 2, 9: 1, 7: 0}
	if diff := cmp.Diff(want, got.Additional); diff != "" {
		t.Errorf("additional mismatch (-want +got):\n%s", diff)
	}
	if got.Order[0].Proteins[0] != 4 || got.Order[len(got.Order)-1].Proteins[0] != 7 {
		t.Errorf("unexpected order: %+v", got.Order)
	}
}

func TestAdditionalPeptidesProteinGroups(t *testing.T) {
	// proteins 1 and 2 are indistinguishable and share a group
	rows := []store.PSMEvidence{
		{ProteinID: 1, PSMID: 10, ProteinGroup: "5,6"},
		{ProteinID: 1, PSMID: 11, ProteinGroup: "5,6"},
		{ProteinID: 2, PSMID: 10, ProteinGroup: "5,6"},
		{ProteinID: 2, PSMID: 11, ProteinGroup: "5,6"},
		{ProteinID: 3, PSMID: 11, ProteinGroup: "6"},
	}

	got, err := CalculateAdditionalPeptides(context.Background(), []int64{1, 2, 3}, store.NewSliceRows(rows, nil), 0)
	if err != nil {
		t.Fatalf("CalculateAdditionalPeptides: %v", err)
	}
	want := map[int64]int{1: 2, 2: 2, 3: 0}
	if diff := cmp.Diff(want, got.Additional); diff != "" {
		t.Errorf("additional mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1, 2}, got.Order[0].Proteins); diff != "" {
		t.Errorf("group members mismatch (-want +got):\n%s", diff)
	}
}

func TestAdditionalPeptidesInvariants(t *testing.T) {
	tests := []struct {
		name       string
		candidates []int64
		rows       []store.PSMEvidence
		wantKind   InvariantKind
		wantID     int64
	}{
		{
			name:       "candidate without evidence",
			candidates: []int64{1, 2},
			rows:       psmEv(1, 1),
			wantKind:   EmptyCoverage,
			wantID:     2,
		},
		{
			name:       "evidence outside scope",
			candidates: []int64{1},
			rows:       concat(psmEv(1, 1), psmEv(5, 2)),
			wantKind:   OutsideScope,
			wantID:     5,
		},
		{
			name:       "group members disagree",
			candidates: []int64{1, 2},
			rows: []store.PSMEvidence{
				{ProteinID: 1, PSMID: 1, ProteinGroup: "x"},
				{ProteinID: 2, PSMID: 2, ProteinGroup: "x"},
			},
			wantKind: GroupMismatch,
			wantID:   2,
		},
		{
			name:       "protein in two groups",
			candidates: []int64{1},
			rows: []store.PSMEvidence{
				{ProteinID: 1, PSMID: 1, ProteinGroup: "x"},
				{ProteinID: 1, PSMID: 2, ProteinGroup: "y"},
			},
			wantKind: GroupMismatch,
			wantID:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CalculateAdditionalPeptides(context.Background(), tt.candidates, store.NewSliceRows(tt.rows, nil), 1)
			if !errors.Is(err, ErrInvariant) {
				t.Fatalf("expected invariant error, got %v", err)
			}
			var inv *InvariantError
			if !errors.As(err, &inv) {
				t.Fatalf("expected *InvariantError, got %T", err)
			}
			if inv.Kind != tt.wantKind || inv.ProteinID != tt.wantID {
				t.Errorf("got %v for protein %d, want %v for protein %d", inv.Kind, inv.ProteinID, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestAdditionalPeptidesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows := concat(psmEv(1, 1), psmEv(2, 2))
	_, err := CalculateAdditionalPeptides(ctx, []int64{1, 2}, store.NewSliceRows(rows, nil), 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestProteinGroupKeys(t *testing.T) {
	pairs := []store.InstancePair{
		{Protein: 1, Peptide: 12}, {Protein: 1, Peptide: 3}, {Protein: 1, Peptide: 12},
		{Protein: 2, Peptide: 3}, {Protein: 2, Peptide: 12},
		{Protein: 3, Peptide: 3},
	}
	want := map[int64]string{1: "3,12", 2: "3,12", 3: "3"}
	if diff := cmp.Diff(want, ProteinGroupKeys(pairs)); diff != "" {
		t.Errorf("group key mismatch (-want +got):\n%s", diff)
	}
}

// randomEvidence generates a reproducible evidence baseline: each peptide maps
// to one to three proteins and each PSM to one peptide.
func randomEvidence(seed int64, proteins, peptides, psms int) []store.EvidenceRow {
	rng := rand.New(rand.NewSource(seed))

	proteinsOf := make([][]int64, peptides+1)
	for pep := 1; pep <= peptides; pep++ {
		n := 1 + rng.Intn(3)
		for i := 0; i < n; i++ {
			p := int64(1 + rng.Intn(proteins))
			if !slices.Contains(proteinsOf[pep], p) {
				proteinsOf[pep] = append(proteinsOf[pep], p)
			}
		}
	}

	var rows []store.EvidenceRow
	spectra := psms * 2 / 3
	for psm := 1; psm <= psms; psm++ {
		pep := int64(1 + rng.Intn(peptides))
		spectrum := int64(1 + rng.Intn(spectra))
		q := rng.Float64() * 0.1
		for _, protein := range proteinsOf[pep] {
			rows = append(rows, ev(protein, pep, spectrum, int64(psm), q))
		}
	}
	return rows
}

// toPSMEvidence derives group keys from the rows the way the publisher does.
func toPSMEvidence(rows []store.EvidenceRow) ([]int64, []store.PSMEvidence) {
	var pairs []store.InstancePair
	for _, r := range rows {
		pairs = append(pairs, store.InstancePair{Protein: r.ProteinID, Peptide: r.PeptideID})
	}
	keys := ProteinGroupKeys(pairs)

	var out []store.PSMEvidence
	for _, r := range rows {
		out = append(out, store.PSMEvidence{
			ProteinID:    r.ProteinID,
			SpectrumID:   r.SpectrumID,
			PSMID:        r.PSMID,
			PeptideID:    r.PeptideID,
			ProteinGroup: keys[r.ProteinID],
		})
	}
	var candidates []int64
	for id := range keys {
		candidates = append(candidates, id)
	}
	return candidates, out
}

// naiveAdditional re-scans every round, using the same tie-break.
func naiveAdditional(rows []store.PSMEvidence) map[int64]int {
	sets := make(map[string]map[int64]bool)
	members := make(map[string][]int64)
	for _, r := range rows {
		if sets[r.ProteinGroup] == nil {
			sets[r.ProteinGroup] = make(map[int64]bool)
		}
		sets[r.ProteinGroup][r.PSMID] = true
		if !slices.Contains(members[r.ProteinGroup], r.ProteinID) {
			members[r.ProteinGroup] = append(members[r.ProteinGroup], r.ProteinID)
		}
	}
	minID := func(key string) int64 { return slices.Min(members[key]) }

	out := make(map[int64]int)
	for len(sets) > 0 {
		best := ""
		for key, set := range sets {
			if best == "" || len(set) > len(sets[best]) ||
				(len(set) == len(sets[best]) && minID(key) < minID(best)) {
				best = key
			}
		}
		n := len(sets[best])
		for _, id := range members[best] {
			out[id] = n
		}
		chosen := sets[best]
		delete(sets, best)
		for _, set := range sets {
			for psm := range chosen {
				delete(set, psm)
			}
		}
	}
	return out
}

func TestAdditionalPeptidesMatchesNaiveGreedy(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		candidates, rows := toPSMEvidence(randomEvidence(seed, 80, 300, 900))

		got, err := CalculateAdditionalPeptides(context.Background(), candidates, store.NewSliceRows(rows, nil), 4)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if diff := cmp.Diff(naiveAdditional(rows), got.Additional); diff != "" {
			t.Errorf("seed %d: mismatch against naive greedy (-want +got):\n%s", seed, diff)
		}

		// no PSM is counted twice
		distinct := make(map[int64]bool)
		for _, r := range rows {
			distinct[r.PSMID] = true
		}
		if got.Explained != len(distinct) {
			t.Errorf("seed %d: explained %d, want %d distinct PSMs", seed, got.Explained, len(distinct))
		}

		// every selected group before the zero tail adds evidence, in non-increasing order
		for i := 1; i < len(got.Order); i++ {
			if got.Order[i].Additional > got.Order[i-1].Additional {
				t.Errorf("seed %d: order not non-increasing at %d", seed, i)
			}
		}

		again, err := CalculateAdditionalPeptides(context.Background(), candidates, store.NewSliceRows(rows, nil), 1)
		if err != nil {
			t.Fatalf("seed %d rerun: %v", seed, err)
		}
		if diff := cmp.Diff(got.Additional, again.Additional); diff != "" {
			t.Errorf("seed %d: rerun not idempotent (-first +second):\n%s", seed, diff)
		}
	}
}
