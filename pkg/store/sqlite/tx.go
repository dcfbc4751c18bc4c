package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// Tx implements store.Tx on one SQLite transaction.
type Tx struct {
	tx *sql.Tx
}

var _ store.Tx = (*Tx)(nil)

// ViewExists reports whether every entity table of v exists.
func (t *Tx) ViewExists(ctx context.Context, v store.View) (bool, error) {
	return viewExists(ctx, t.tx, v)
}

// QueryEvidence streams scoped evidence rows of v.
func (t *Tx) QueryEvidence(ctx context.Context, v store.View, scope store.Scope) (store.Rows[store.EvidenceRow], error) {
	return queryEvidence(ctx, t.tx, v, scope)
}

// QueryPSMEvidence streams scoped PSM rows of v joined to their protein group.
func (t *Tx) QueryPSMEvidence(ctx context.Context, v store.View, scope store.Scope) (store.Rows[store.PSMEvidence], error) {
	return queryPSMEvidence(ctx, t.tx, v, scope)
}

// QueryInstances lists the distinct (protein, peptide) pairs of v.
func (t *Tx) QueryInstances(ctx context.Context, v store.View) ([]store.InstancePair, error) {
	rows, err := t.tx.QueryContext(ctx,
		fmt.Sprintf("SELECT DISTINCT Protein, Peptide FROM %s ORDER BY Protein, Peptide", v.Table("PeptideInstance")))
	if err != nil {
		return nil, store.Wrap("query instances", err)
	}
	return store.Collect[store.InstancePair](newSQLRows(rows, func(r *sql.Rows, p *store.InstancePair) error {
		return r.Scan(&p.Protein, &p.Peptide)
	}))
}

// BulkCreateFilteredSet copies the candidate rows of from into fresh tables
// named by to. Ids go through temporary key tables so the copy is one
// INSERT ... SELECT per entity table.
func (t *Tx) BulkCreateFilteredSet(ctx context.Context, from, to store.View, set *store.CandidateSet) error {
	if set == nil {
		set = &store.CandidateSet{}
	}
	for _, stmt := range entityTables(to) {
		if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
			return store.Wrap("create "+to.String()+" tables", err)
		}
	}

	ids := map[string][]int64{
		"Protein":              set.Proteins,
		"PeptideInstance":      set.PeptideInstances,
		"Peptide":              set.Peptides,
		"PeptideSpectrumMatch": set.PSMs,
	}
	for _, base := range store.FilteredTables {
		keys := "Candidate" + base
		if err := t.loadKeys(ctx, keys, ids[base]); err != nil {
			return err
		}
		cols := entityColumns[base]
		query := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE Id IN (SELECT Id FROM temp.%s)",
			to.Table(base), cols, cols, from.Table(base), keys)
		if _, err := t.tx.ExecContext(ctx, query); err != nil {
			return store.Wrap("copy "+base, err)
		}
		if err := t.dropKeys(ctx, keys); err != nil {
			return err
		}
	}

	for _, stmt := range entityIndexes(to) {
		if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
			return store.Wrap("index "+to.String()+" tables", err)
		}
	}
	return nil
}

// DeleteProteins removes proteins from v and cascades to rows they orphan,
// in the order proteins, instances, peptides, PSMs.
func (t *Tx) DeleteProteins(ctx context.Context, v store.View, proteinIDs []int64) (store.CascadeResult, error) {
	var res store.CascadeResult
	if len(proteinIDs) == 0 {
		return res, nil
	}
	const keys = "DroppedProtein"
	if err := t.loadKeys(ctx, keys, proteinIDs); err != nil {
		return res, err
	}

	steps := []struct {
		query string
		count *int64
	}{
		{fmt.Sprintf("DELETE FROM %s WHERE Id IN (SELECT Id FROM temp.%s)", v.Table("Protein"), keys), &res.Proteins},
		{fmt.Sprintf("DELETE FROM %s WHERE Protein NOT IN (SELECT Id FROM %s)",
			v.Table("PeptideInstance"), v.Table("Protein")), &res.PeptideInstances},
		{fmt.Sprintf("DELETE FROM %s WHERE Id NOT IN (SELECT Peptide FROM %s)",
			v.Table("Peptide"), v.Table("PeptideInstance")), &res.Peptides},
		{fmt.Sprintf("DELETE FROM %s WHERE Peptide NOT IN (SELECT Id FROM %s)",
			v.Table("PeptideSpectrumMatch"), v.Table("Peptide")), &res.PSMs},
	}
	for _, step := range steps {
		r, err := t.tx.ExecContext(ctx, step.query)
		if err != nil {
			return res, store.Wrap("cascade delete", err)
		}
		if *step.count, err = r.RowsAffected(); err != nil {
			return res, store.Wrap("cascade delete", err)
		}
	}
	// on the error paths above the key table goes away with the rolled back transaction
	return res, t.dropKeys(ctx, keys)
}

// RenameView renames every entity table of from to the names of to.
func (t *Tx) RenameView(ctx context.Context, from, to store.View) error {
	for _, base := range store.FilteredTables {
		query := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", from.Table(base), to.Table(base))
		if _, err := t.tx.ExecContext(ctx, query); err != nil {
			return store.Wrap(fmt.Sprintf("rename %s view to %s", from, to), err)
		}
	}
	return nil
}

// DropView drops whichever entity tables of v exist.
func (t *Tx) DropView(ctx context.Context, v store.View) error {
	for _, base := range store.FilteredTables {
		if _, err := t.tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+v.Table(base)); err != nil {
			return store.Wrap("drop "+v.String()+" view", err)
		}
	}
	return nil
}

// PersistAuxiliaryTable replaces table.Name with table.Rows.
func (t *Tx) PersistAuxiliaryTable(ctx context.Context, table store.AuxTable) error {
	if err := t.DropAuxiliaryTable(ctx, table.Name); err != nil {
		return err
	}

	defs := make([]string, len(table.Columns))
	names := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		defs[i] = c.Name + " " + c.Type
		if c.PrimaryKey {
			defs[i] += " PRIMARY KEY"
		}
		names[i] = c.Name
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", table.Name, strings.Join(defs, ", "))
	if _, err := t.tx.ExecContext(ctx, create); err != nil {
		return store.Wrap("create "+table.Name, err)
	}
	if len(table.Rows) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	stmt, err := t.tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Name, strings.Join(names, ", "), placeholders))
	if err != nil {
		return store.Wrap("prepare "+table.Name+" insert", err)
	}
	defer stmt.Close()

	for _, row := range table.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return store.Wrap("insert "+table.Name, err)
		}
	}
	return nil
}

// DropAuxiliaryTable drops name if it exists.
func (t *Tx) DropAuxiliaryTable(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return store.Wrap("drop "+name, err)
	}
	return nil
}

// Commit makes the run visible.
func (t *Tx) Commit() error {
	return store.Wrap("commit", t.tx.Commit())
}

// Rollback abandons the run. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return store.Wrap("rollback", err)
}

// loadKeys fills a temporary single-column id table.
func (t *Tx) loadKeys(ctx context.Context, name string, ids []int64) error {
	if err := t.dropKeys(ctx, name); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("CREATE TEMP TABLE %s (Id INTEGER PRIMARY KEY)", name)); err != nil {
		return store.Wrap("create key table", err)
	}
	if len(ids) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, fmt.Sprintf("INSERT OR IGNORE INTO temp.%s (Id) VALUES (?)", name))
	if err != nil {
		return store.Wrap("prepare key insert", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return store.Wrap("insert key", err)
		}
	}
	return nil
}

func (t *Tx) dropKeys(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "DROP TABLE IF EXISTS temp."+name); err != nil {
		return store.Wrap("drop key table", err)
	}
	return nil
}
