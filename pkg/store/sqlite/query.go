package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// scopedQuery accumulates the joins and predicates a Scope adds on top of
// the psm/pi base join. Joins are deduplicated by alias.
type scopedQuery struct {
	view    store.View
	joins   []string
	aliases map[string]bool
	conds   []string
	args    []any
}

func newScopedQuery(v store.View, scope store.Scope) *scopedQuery {
	q := &scopedQuery{view: v, aliases: make(map[string]bool)}

	if scope.Cluster != nil {
		q.join("pc", fmt.Sprintf("JOIN %s pc ON pc.ProteinId = pi.Protein", store.ProteinClustersTable))
		q.where("pc.ClusterId = ?", *scope.Cluster)
	}
	if scope.Protein != nil {
		q.where("pi.Protein = ?", *scope.Protein)
	}
	if scope.Peptide != nil {
		q.where("psm.Peptide = ?", *scope.Peptide)
	}
	if dp := scope.DistinctPeptide; dp != nil {
		q.where("psm.Peptide = ?", dp.Peptide)
		q.where("ROUND(psm.MonoisotopicMass, 4) = ROUND(?, 4)", dp.MonoisotopicMass)
	}
	if len(scope.Modifications) > 0 || scope.ModifiedSite != 0 {
		q.join("pm", "JOIN PeptideModification pm ON pm.PeptideSpectrumMatch = psm.Id")
	}
	if n := len(scope.Modifications); n > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", n), ",")
		args := make([]any, n)
		for i, id := range scope.Modifications {
			args[i] = id
		}
		q.where("pm.Modification IN ("+placeholders+")", args...)
	}
	if scope.ModifiedSite != 0 {
		q.where("pm.Site = ?", string(scope.ModifiedSite))
	}
	if scope.Spectrum != nil {
		q.where("psm.Spectrum = ?", *scope.Spectrum)
	}
	if scope.SpectrumSource != nil {
		q.join("s", "JOIN Spectrum s ON s.Id = psm.Spectrum")
		q.where("s.Source = ?", *scope.SpectrumSource)
	}
	if scope.SpectrumSourceGroup != nil {
		q.join("s", "JOIN Spectrum s ON s.Id = psm.Spectrum")
		q.join("ssgl", "JOIN SpectrumSourceGroupLink ssgl ON ssgl.Source = s.Source")
		q.where("ssgl.SourceGroup = ?", *scope.SpectrumSourceGroup)
	}
	return q
}

func (q *scopedQuery) join(alias, clause string) {
	if q.aliases[alias] {
		return
	}
	q.aliases[alias] = true
	q.joins = append(q.joins, clause)
}

func (q *scopedQuery) where(cond string, args ...any) {
	q.conds = append(q.conds, cond)
	q.args = append(q.args, args...)
}

// build renders "SELECT DISTINCT <columns> FROM psm JOIN pi <joins> WHERE ...".
func (q *scopedQuery) build(columns string, extraJoins ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT DISTINCT %s FROM %s psm JOIN %s pi ON pi.Peptide = psm.Peptide",
		columns, q.view.Table("PeptideSpectrumMatch"), q.view.Table("PeptideInstance"))
	for _, j := range append(extraJoins, q.joins...) {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	return b.String()
}

// sqlRows adapts *sql.Rows to store.Rows with a per-type scan function.
type sqlRows[T any] struct {
	rows *sql.Rows
	scan func(*sql.Rows, *T) error
	cur  T
	err  error
}

func newSQLRows[T any](rows *sql.Rows, scan func(*sql.Rows, *T) error) *sqlRows[T] {
	return &sqlRows[T]{rows: rows, scan: scan}
}

func (r *sqlRows[T]) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	var v T
	if err := r.scan(r.rows, &v); err != nil {
		r.err = err
		return false
	}
	r.cur = v
	return true
}

func (r *sqlRows[T]) Value() T {
	return r.cur
}

func (r *sqlRows[T]) Err() error {
	if r.err != nil {
		return store.Wrap("scan row", r.err)
	}
	return store.Wrap("read rows", r.rows.Err())
}

func (r *sqlRows[T]) Close() error {
	return r.rows.Close()
}

func queryEvidence(ctx context.Context, q queryer, v store.View, scope store.Scope) (store.Rows[store.EvidenceRow], error) {
	sq := newScopedQuery(v, scope)
	query := sq.build("pi.Protein, pi.Id, psm.Peptide, psm.Spectrum, psm.Id, psm.QValue")

	rows, err := q.QueryContext(ctx, query, sq.args...)
	if err != nil {
		return nil, store.Wrap("query evidence", err)
	}
	return newSQLRows(rows, func(r *sql.Rows, e *store.EvidenceRow) error {
		return r.Scan(&e.ProteinID, &e.PeptideInstanceID, &e.PeptideID, &e.SpectrumID, &e.PSMID, &e.QValue)
	}), nil
}

func queryPSMEvidence(ctx context.Context, q queryer, v store.View, scope store.Scope) (store.Rows[store.PSMEvidence], error) {
	sq := newScopedQuery(v, scope)
	query := sq.build("pi.Protein, psm.Spectrum, psm.Id, psm.Peptide, pg.ProteinGroup",
		fmt.Sprintf("JOIN %s pg ON pg.ProteinId = pi.Protein", store.ProteinGroupsTable))

	rows, err := q.QueryContext(ctx, query, sq.args...)
	if err != nil {
		return nil, store.Wrap("query psm evidence", err)
	}
	return newSQLRows(rows, func(r *sql.Rows, e *store.PSMEvidence) error {
		return r.Scan(&e.ProteinID, &e.SpectrumID, &e.PSMID, &e.PeptideID, &e.ProteinGroup)
	}), nil
}
