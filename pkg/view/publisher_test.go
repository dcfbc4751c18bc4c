package view

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/IDFilter/pkg/core"
	"github.com/ChrisMcGann/IDFilter/pkg/filter"
	"github.com/ChrisMcGann/IDFilter/pkg/store"
	"github.com/ChrisMcGann/IDFilter/pkg/store/sqlite"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func rec(scan int, sequence string, q float64, accessions ...string) *core.EvidenceRecord {
	r := &core.EvidenceRecord{
		SourceGroup: "/",
		Source:      "run1.mzML",
		NativeID:    fmt.Sprintf("scan=%d", scan),
		Charge:      2,
		Rank:        1,
		QValue:      q,
		Sequence:    sequence,
	}
	for _, acc := range accessions {
		r.Proteins = append(r.Proteins, core.ProteinOccurrence{Accession: acc})
	}
	return r
}

// newScenarioStore imports three proteins: P1 explains PSMs {1,2,3}, P2
// explains {2,3,4} and P3 explains {5}. PSM 6 on P1 fails any q-value
// threshold below 0.5.
func newScenarioStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "evidence.db"), sqlite.DriverCGO)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	im, err := s.NewImporter(ctx, 0)
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}
	defer im.Close()
	for _, r := range []*core.EvidenceRecord{
		rec(1, "PEPTIDEK", 0.001, "P1"),
		rec(2, "ELVISK", 0.002, "P1", "P2"),
		rec(3, "LIVESK", 0.003, "P1", "P2"),
		rec(4, "MASSIVEK", 0.004, "P2"),
		rec(5, "SAMPLER", 0.005, "P3"),
		rec(6, "FAKEK", 0.5, "P1"),
	} {
		if err := im.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := im.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return s
}

func scenarioConfig(minAdditional int) filter.Config {
	return filter.Config{
		MaximumQValue:                       0.05,
		MinimumDistinctPeptidesPerProtein:   1,
		MinimumSpectraPerProtein:            1,
		MinimumAdditionalPeptidesPerProtein: minAdditional,
	}
}

func newTestPublisher(s store.Store) *Publisher {
	return NewPublisher(s, Options{Threads: 2, Now: func() time.Time { return fixedTime }})
}

type proteinSummary struct {
	ID         int64
	Additional int
	Cluster    int64
}

func canonicalProteins(t *testing.T, s *sqlite.Store) []proteinSummary {
	t.Helper()
	rows, err := s.Proteins(context.Background(), store.Scope{})
	if err != nil {
		t.Fatalf("Proteins: %v", err)
	}
	var out []proteinSummary
	for _, r := range rows {
		out = append(out, proteinSummary{ID: r.ID, Additional: r.AdditionalMatches, Cluster: r.Cluster})
	}
	return out
}

func TestPublishScenarios(t *testing.T) {
	tests := []struct {
		name          string
		minAdditional int
		wantProteins  []proteinSummary
		wantDropped   []int64
		wantCascade   store.CascadeResult
		wantClusters  int
		wantCounts    sqlite.ViewCounts
	}{
		{
			name:          "all proteins add evidence",
			minAdditional: 1,
			wantProteins: []proteinSummary{
				{ID: 1, Additional: 3, Cluster: 1},
				{ID: 2, Additional: 1, Cluster: 1},
				{ID: 3, Additional: 1, Cluster: 2},
			},
			wantClusters: 2,
			wantCounts:   sqlite.ViewCounts{Proteins: 3, PeptideInstances: 7, Peptides: 5, PSMs: 5, Spectra: 5},
		},
		{
			name:          "proteins adding one PSM are dropped",
			minAdditional: 2,
			wantProteins:  []proteinSummary{{ID: 1, Additional: 3, Cluster: 1}},
			wantDropped:   []int64{2, 3},
			wantCascade:   store.CascadeResult{Proteins: 2, PeptideInstances: 4, Peptides: 2, PSMs: 2},
			wantClusters:  1,
			wantCounts:    sqlite.ViewCounts{Proteins: 1, PeptideInstances: 3, Peptides: 3, PSMs: 3, Spectra: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newScenarioStore(t)
			p := newTestPublisher(s)

			res, err := p.Publish(ctx, scenarioConfig(tt.minAdditional))
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if res.Candidates != 3 {
				t.Errorf("Candidates = %d, want 3", res.Candidates)
			}
			if res.Retained != len(tt.wantProteins) {
				t.Errorf("Retained = %d, want %d", res.Retained, len(tt.wantProteins))
			}
			if diff := cmp.Diff(tt.wantDropped, res.Dropped); diff != "" {
				t.Errorf("dropped mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantCascade, res.Cascade); diff != "" {
				t.Errorf("cascade mismatch (-want +got):\n%s", diff)
			}
			if res.Clusters != tt.wantClusters {
				t.Errorf("Clusters = %d, want %d", res.Clusters, tt.wantClusters)
			}
			if res.ExplainedPSMs != 5 {
				t.Errorf("ExplainedPSMs = %d, want 5", res.ExplainedPSMs)
			}

			if diff := cmp.Diff(tt.wantProteins, canonicalProteins(t, s)); diff != "" {
				t.Errorf("canonical proteins (-want +got):\n%s", diff)
			}

			sum, err := s.Summary(ctx)
			if err != nil {
				t.Fatalf("Summary: %v", err)
			}
			if diff := cmp.Diff(tt.wantCounts, sum.Canonical); diff != "" {
				t.Errorf("canonical counts (-want +got):\n%s", diff)
			}
			if !sum.Filtered || sum.Unfiltered.Proteins != 3 || sum.Unfiltered.PSMs != 6 {
				t.Errorf("baseline not retained: %+v", sum)
			}

			cfg := scenarioConfig(tt.minAdditional)
			if !cfg.Matches(sum.Criteria) {
				t.Errorf("criteria %+v do not match config", sum.Criteria)
			}
			if sum.Criteria.RunID != res.RunID || !sum.Criteria.FilteredAt.Equal(fixedTime) {
				t.Errorf("criteria run = %s at %v", sum.Criteria.RunID, sum.Criteria.FilteredAt)
			}
		})
	}
}

func TestPublishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newScenarioStore(t)
	p := newTestPublisher(s)
	cfg := scenarioConfig(2)

	if _, err := p.Publish(ctx, cfg); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	first := canonicalProteins(t, s)

	if _, err := p.Publish(ctx, cfg); err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if diff := cmp.Diff(first, canonicalProteins(t, s)); diff != "" {
		t.Errorf("rerun changed the canonical view (-first +second):\n%s", diff)
	}
}

func TestPublishRecomputesFromBaseline(t *testing.T) {
	ctx := context.Background()
	s := newScenarioStore(t)
	p := newTestPublisher(s)

	if _, err := p.Publish(ctx, scenarioConfig(2)); err != nil {
		t.Fatalf("Publish strict: %v", err)
	}
	// a looser run must see the proteins the strict run removed
	res, err := p.Publish(ctx, scenarioConfig(1))
	if err != nil {
		t.Fatalf("Publish loose: %v", err)
	}
	if res.Retained != 3 {
		t.Errorf("Retained = %d, want 3", res.Retained)
	}

	// q-value 1 admits PSM 6 as well; the view stays a subset of the baseline
	loosest := scenarioConfig(0)
	loosest.MaximumQValue = 1
	if _, err := p.Publish(ctx, loosest); err != nil {
		t.Fatalf("Publish loosest: %v", err)
	}
	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if diff := cmp.Diff(sum.Unfiltered, sum.Canonical); diff != "" {
		t.Errorf("loosest view should equal the baseline (-baseline +canonical):\n%s", diff)
	}
}

func TestPublishIgnoresScope(t *testing.T) {
	ctx := context.Background()
	scopes := map[string]store.Scope{
		"spectrum": {Spectrum: store.ID(2)},
		"protein":  {Protein: store.ID(3)},
		"cluster":  {Cluster: store.ID(1)},
	}
	want := []proteinSummary{
		{ID: 1, Additional: 3, Cluster: 1},
		{ID: 2, Additional: 1, Cluster: 1},
		{ID: 3, Additional: 1, Cluster: 2},
	}

	for name, scope := range scopes {
		t.Run(name, func(t *testing.T) {
			s := newScenarioStore(t)
			p := newTestPublisher(s)

			cfg := scenarioConfig(1)
			cfg.Scope = scope
			res, err := p.Publish(ctx, cfg)
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if res.Candidates != 3 || res.Retained != 3 {
				t.Errorf("Candidates/Retained = %d/%d, want 3/3", res.Candidates, res.Retained)
			}
			if !res.Config.Scope.IsEmpty() {
				t.Errorf("result config kept scope %+v", res.Config.Scope)
			}
			if diff := cmp.Diff(want, canonicalProteins(t, s)); diff != "" {
				t.Errorf("canonical proteins (-want +got):\n%s", diff)
			}

			crit, err := s.Criteria(ctx)
			if err != nil {
				t.Fatalf("Criteria: %v", err)
			}
			unscoped := scenarioConfig(1)
			if !unscoped.Matches(crit) {
				t.Errorf("stored criteria %+v should describe the unscoped thresholds", crit)
			}
		})
	}
}

var errInjected = errors.New("injected failure")

// faultyStore fails the named step of every run it begins.
type faultyStore struct {
	store.Store
	failOn string
}

func (s *faultyStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, failOn: s.failOn}, nil
}

type faultyTx struct {
	store.Tx
	failOn string
}

func (t *faultyTx) RenameView(ctx context.Context, from, to store.View) error {
	if t.failOn == "swap" && from == store.Staged {
		return store.Wrap("rename view", errInjected)
	}
	return t.Tx.RenameView(ctx, from, to)
}

// QueryPSMEvidence hides the evidence of protein 3 when failOn is "coverage",
// leaving a candidate without PSMs.
func (t *faultyTx) QueryPSMEvidence(ctx context.Context, v store.View, scope store.Scope) (store.Rows[store.PSMEvidence], error) {
	rows, err := t.Tx.QueryPSMEvidence(ctx, v, scope)
	if err != nil || t.failOn != "coverage" {
		return rows, err
	}
	all, err := store.Collect(rows)
	if err != nil {
		return nil, err
	}
	var kept []store.PSMEvidence
	for _, row := range all {
		if row.ProteinID != 3 {
			kept = append(kept, row)
		}
	}
	return store.NewSliceRows(kept, nil), nil
}

func (t *faultyTx) PersistAuxiliaryTable(ctx context.Context, table store.AuxTable) error {
	if t.failOn == table.Name {
		return store.Wrap("persist "+table.Name, errInjected)
	}
	return t.Tx.PersistAuxiliaryTable(ctx, table)
}

func TestPublishRollsBackOnFailure(t *testing.T) {
	tests := []struct {
		step    string
		wantErr []error
	}{
		{"swap", []error{errInjected, store.ErrStoreIO}},
		{store.ProteinClustersTable, []error{errInjected, store.ErrStoreIO}},
		{store.FilteringCriteriaTable, []error{errInjected, store.ErrStoreIO}},
		{"coverage", []error{filter.ErrInvariant}},
	}
	for _, tt := range tests {
		step := tt.step
		t.Run(step, func(t *testing.T) {
			ctx := context.Background()
			s := newScenarioStore(t)

			good, err := newTestPublisher(s).Publish(ctx, scenarioConfig(1))
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			before := canonicalProteins(t, s)

			faulty := newTestPublisher(&faultyStore{Store: s, failOn: step})
			_, err = faulty.Publish(ctx, scenarioConfig(2))
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Fatalf("expected error matching %v, got %v", want, err)
				}
			}

			if diff := cmp.Diff(before, canonicalProteins(t, s)); diff != "" {
				t.Errorf("failed run changed the canonical view (-before +after):\n%s", diff)
			}
			crit, err := s.Criteria(ctx)
			if err != nil {
				t.Fatalf("Criteria: %v", err)
			}
			if crit == nil || crit.RunID != good.RunID {
				t.Errorf("criteria should still describe run %s, got %+v", good.RunID, crit)
			}
		})
	}
}

// beginCounter records whether the store was touched.
type beginCounter struct {
	store.Store
	begins int
}

func (s *beginCounter) Begin(ctx context.Context) (store.Tx, error) {
	s.begins++
	return nil, errors.New("unexpected store access")
}

func (s *beginCounter) Path() string { return "" }

func TestPublishValidatesBeforeStoreAccess(t *testing.T) {
	st := &beginCounter{}
	p := NewPublisher(st, Options{})

	cfg := filter.Default()
	cfg.MaximumQValue = 2
	_, err := p.Publish(context.Background(), cfg)

	var perr *filter.ParameterError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *filter.ParameterError, got %v", err)
	}
	if st.begins != 0 {
		t.Errorf("store accessed %d times before validation failed", st.begins)
	}
}

func TestPublishRejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	s := newScenarioStore(t)

	p := newTestPublisher(s)
	release, err := p.acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := p.Publish(ctx, scenarioConfig(1)); !errors.Is(err, ErrFilterInProgress) {
		t.Errorf("same publisher: expected ErrFilterInProgress, got %v", err)
	}
	// a second publisher stands in for another process holding the file lock
	other := newTestPublisher(s)
	if _, err := other.Publish(ctx, scenarioConfig(1)); !errors.Is(err, ErrFilterInProgress) {
		t.Errorf("other publisher: expected ErrFilterInProgress, got %v", err)
	}

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Filtered {
		t.Error("rejected runs must not touch the store")
	}

	release()
	if _, err := other.Publish(ctx, scenarioConfig(1)); err != nil {
		t.Errorf("Publish after release: %v", err)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := newScenarioStore(t)
	p := newTestPublisher(s)

	if err := p.Reset(ctx); err != nil {
		t.Fatalf("Reset on unfiltered store: %v", err)
	}
	if _, err := p.Publish(ctx, scenarioConfig(2)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Filtered || sum.Criteria != nil || sum.Clusters != 0 {
		t.Errorf("reset left filter state behind: %+v", sum)
	}
	if sum.Canonical.Proteins != 3 || sum.Canonical.PSMs != 6 {
		t.Errorf("baseline not restored: %+v", sum.Canonical)
	}
}
