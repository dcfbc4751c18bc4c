package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// ProteinRow is one protein of the canonical view with its derived columns.
// Cluster and AdditionalMatches are zero until a filter has been applied.
type ProteinRow struct {
	ID                int64
	Accession         string
	Description       string
	Length            int
	DistinctPeptides  int
	Spectra           int
	Cluster           int64
	ProteinGroup      string
	AdditionalMatches int
}

// PSMRow is one peptide-spectrum match of the canonical view.
type PSMRow struct {
	ID        int64
	Source    string
	NativeID  string
	Sequence  string
	Charge    int
	QValue    float64
	MassError float64
}

// Summary counts rows of the canonical view and, when filtered, the baseline.
type Summary struct {
	Filtered   bool
	Canonical  ViewCounts
	Unfiltered ViewCounts
	Clusters   int64
	Criteria   *store.FilteringCriteria
}

// ViewCounts counts the entity rows of one view.
type ViewCounts struct {
	Proteins         int64
	PeptideInstances int64
	Peptides         int64
	PSMs             int64
	Spectra          int64
}

// Proteins lists the proteins of the canonical view within scope, ordered by id.
func (s *Store) Proteins(ctx context.Context, scope store.Scope) ([]ProteinRow, error) {
	hasGroups, err := tableExists(ctx, s.db, store.ProteinGroupsTable)
	if err != nil {
		return nil, err
	}
	hasAdditional, err := tableExists(ctx, s.db, store.AdditionalMatchesTable)
	if err != nil {
		return nil, err
	}
	hasClusters, err := tableExists(ctx, s.db, store.ProteinClustersTable)
	if err != nil {
		return nil, err
	}
	if scope.Cluster != nil && !hasClusters {
		return nil, nil
	}

	sq := newScopedQuery(store.Canonical, scope)
	inner := sq.build("pi.Protein AS Protein, psm.Peptide AS Peptide, psm.Spectrum AS Spectrum")

	cluster, group, additional := "0", "''", "0"
	var joins string
	if hasClusters {
		cluster = "COALESCE(pc2.ClusterId, 0)"
		joins += fmt.Sprintf(" LEFT JOIN %s pc2 ON pc2.ProteinId = pro.Id", store.ProteinClustersTable)
	}
	if hasGroups {
		group = "COALESCE(pg.ProteinGroup, '')"
		joins += fmt.Sprintf(" LEFT JOIN %s pg ON pg.ProteinId = pro.Id", store.ProteinGroupsTable)
	}
	if hasAdditional {
		additional = "COALESCE(am.AdditionalMatches, 0)"
		joins += fmt.Sprintf(" LEFT JOIN %s am ON am.ProteinId = pro.Id", store.AdditionalMatchesTable)
	}

	query := fmt.Sprintf(`
		SELECT pro.Id, pro.Accession, COALESCE(pro.Description, ''), LENGTH(COALESCE(pro.Sequence, '')),
			COUNT(DISTINCT ev.Peptide), COUNT(DISTINCT ev.Spectrum), %s, %s, %s
		FROM %s pro
		JOIN (%s) ev ON ev.Protein = pro.Id
		%s
		GROUP BY pro.Id
		ORDER BY pro.Id`,
		cluster, group, additional, store.Canonical.Table("Protein"), inner, joins)

	rows, err := s.db.QueryContext(ctx, query, sq.args...)
	if err != nil {
		return nil, store.Wrap("query proteins", err)
	}
	return store.Collect[ProteinRow](newSQLRows(rows, func(r *sql.Rows, p *ProteinRow) error {
		return r.Scan(&p.ID, &p.Accession, &p.Description, &p.Length,
			&p.DistinctPeptides, &p.Spectra, &p.Cluster, &p.ProteinGroup, &p.AdditionalMatches)
	}))
}

// PSMs lists the PSMs of the canonical view within scope, ordered by id.
func (s *Store) PSMs(ctx context.Context, scope store.Scope) ([]PSMRow, error) {
	if scope.Cluster != nil {
		ok, err := tableExists(ctx, s.db, store.ProteinClustersTable)
		if err != nil || !ok {
			return nil, err
		}
	}
	sq := newScopedQuery(store.Canonical, scope)
	inner := sq.build("psm.Id AS Id")

	query := fmt.Sprintf(`
		SELECT psm.Id, src.Name, sp.NativeID, pep.Sequence, psm.Charge, psm.QValue, psm.MonoisotopicMassError
		FROM %s psm
		JOIN (%s) sel ON sel.Id = psm.Id
		JOIN %s pep ON pep.Id = psm.Peptide
		JOIN Spectrum sp ON sp.Id = psm.Spectrum
		JOIN SpectrumSource src ON src.Id = sp.Source
		ORDER BY psm.Id`,
		store.Canonical.Table("PeptideSpectrumMatch"), inner, store.Canonical.Table("Peptide"))

	rows, err := s.db.QueryContext(ctx, query, sq.args...)
	if err != nil {
		return nil, store.Wrap("query psms", err)
	}
	return store.Collect[PSMRow](newSQLRows(rows, func(r *sql.Rows, p *PSMRow) error {
		return r.Scan(&p.ID, &p.Source, &p.NativeID, &p.Sequence, &p.Charge, &p.QValue, &p.MassError)
	}))
}

// Criteria returns the thresholds of the last committed run, or nil when the
// database has never been filtered.
func (s *Store) Criteria(ctx context.Context) (*store.FilteringCriteria, error) {
	ok, err := tableExists(ctx, s.db, store.FilteringCriteriaTable)
	if err != nil || !ok {
		return nil, err
	}

	var c store.FilteringCriteria
	var at string
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT MaximumQValue, MinimumDistinctPeptidesPerProtein, MinimumSpectraPerProtein,
			MinimumAdditionalPeptidesPerProtein, RunId, FilteredAt
		FROM %s LIMIT 1`, store.FilteringCriteriaTable)).Scan(
		&c.MaximumQValue, &c.MinimumDistinctPeptidesPerProtein, &c.MinimumSpectraPerProtein,
		&c.MinimumAdditionalPeptidesPerProtein, &c.RunID, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("read filtering criteria", err)
	}
	if c.FilteredAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return nil, fmt.Errorf("failed to parse filter timestamp %q: %w", at, err)
	}
	return &c, nil
}

// Summary counts the canonical view, the baseline and the cluster count.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	var sum Summary
	var err error
	if sum.Canonical, err = s.countView(ctx, store.Canonical); err != nil {
		return nil, err
	}
	if sum.Filtered, err = viewExists(ctx, s.db, store.Unfiltered); err != nil {
		return nil, err
	}
	if sum.Filtered {
		if sum.Unfiltered, err = s.countView(ctx, store.Unfiltered); err != nil {
			return nil, err
		}
	}
	ok, err := tableExists(ctx, s.db, store.ProteinClustersTable)
	if err != nil {
		return nil, err
	}
	if ok {
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(DISTINCT ClusterId) FROM "+store.ProteinClustersTable).Scan(&sum.Clusters)
		if err != nil {
			return nil, store.Wrap("count clusters", err)
		}
	}
	if sum.Criteria, err = s.Criteria(ctx); err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *Store) countView(ctx context.Context, v store.View) (ViewCounts, error) {
	var c ViewCounts
	targets := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM " + v.Table("Protein"), &c.Proteins},
		{"SELECT COUNT(*) FROM " + v.Table("PeptideInstance"), &c.PeptideInstances},
		{"SELECT COUNT(*) FROM " + v.Table("Peptide"), &c.Peptides},
		{"SELECT COUNT(*) FROM " + v.Table("PeptideSpectrumMatch"), &c.PSMs},
		{"SELECT COUNT(DISTINCT Spectrum) FROM " + v.Table("PeptideSpectrumMatch"), &c.Spectra},
	}
	for _, t := range targets {
		if err := s.db.QueryRowContext(ctx, t.query).Scan(t.dest); err != nil {
			return c, store.Wrap("count "+v.String()+" rows", err)
		}
	}
	return c, nil
}
