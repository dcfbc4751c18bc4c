// Package store defines the evidence store contract consumed by the filtering
// engine: scoped evidence queries, bulk materialization of a filtered copy,
// view renames for the baseline/filtered swap, and auxiliary result tables.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// View names one copy of the filtered entity tables. The canonical view is
// what consumers read; the baseline lives under Unfiltered once a filter has
// been applied; Staged holds a filtered copy under construction.
type View string

const (
	Canonical  View = ""
	Unfiltered View = "Unfiltered"
	Staged     View = "Filtered"
)

// FilteredTables are the entity tables that exist once per view. Every other
// table (spectra, sources, modifications) is shared reference data.
var FilteredTables = []string{"Protein", "PeptideInstance", "Peptide", "PeptideSpectrumMatch"}

// Table returns the physical table name of base within the view.
func (v View) Table(base string) string {
	return string(v) + base
}

func (v View) String() string {
	if v == Canonical {
		return "canonical"
	}
	return strings.ToLower(string(v))
}

// Store opens transactions against one evidence database.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Path() string
	Close() error
}

// Tx is the unit of atomicity for one filtering run. Nothing written through
// a Tx is visible to other readers until Commit succeeds.
type Tx interface {
	// ViewExists reports whether all entity tables of the view exist.
	ViewExists(ctx context.Context, v View) (bool, error)

	// QueryEvidence streams (protein, peptide, spectrum, psm, q-value) rows of the view.
	QueryEvidence(ctx context.Context, v View, scope Scope) (Rows[EvidenceRow], error)

	// QueryPSMEvidence streams (protein, spectrum, psm, peptide, protein group) rows
	// of the view. Requires the ProteinGroups auxiliary table.
	QueryPSMEvidence(ctx context.Context, v View, scope Scope) (Rows[PSMEvidence], error)

	// QueryInstances lists the distinct (protein, peptide) pairs of the view.
	QueryInstances(ctx context.Context, v View) ([]InstancePair, error)

	// BulkCreateFilteredSet materializes the candidate subset of from as a new,
	// independent set of tables named by to, including lookup indexes.
	BulkCreateFilteredSet(ctx context.Context, from, to View, set *CandidateSet) error

	// DeleteProteins removes proteins from the view and cascades to instances,
	// peptides left without instances and PSMs left without peptides.
	DeleteProteins(ctx context.Context, v View, proteinIDs []int64) (CascadeResult, error)

	RenameView(ctx context.Context, from, to View) error
	DropView(ctx context.Context, v View) error

	// PersistAuxiliaryTable replaces the named table with the given rows.
	PersistAuxiliaryTable(ctx context.Context, table AuxTable) error

	// DropAuxiliaryTable removes the named table if it exists.
	DropAuxiliaryTable(ctx context.Context, name string) error

	Commit() error
	Rollback() error
}

// Rows is a forward-only iterator in the style of database/sql.Rows.
type Rows[T any] interface {
	Next() bool
	Value() T
	Err() error
	Close() error
}

// EvidenceRow is the threshold filter's view of one protein/PSM incidence.
type EvidenceRow struct {
	ProteinID         int64
	PeptideInstanceID int64
	PeptideID         int64
	SpectrumID        int64
	PSMID             int64
	QValue            float64
}

// PSMEvidence is one protein/PSM incidence with the protein's group key.
type PSMEvidence struct {
	ProteinID    int64
	SpectrumID   int64
	PSMID        int64
	PeptideID    int64
	ProteinGroup string
}

// InstancePair is one (protein, peptide) occurrence.
type InstancePair struct {
	Protein int64
	Peptide int64
}

// CandidateSet lists the ids retained by the threshold filter, each sorted ascending.
type CandidateSet struct {
	Proteins         []int64
	PeptideInstances []int64
	Peptides         []int64
	PSMs             []int64
}

// Empty reports whether nothing passed the filter.
func (c *CandidateSet) Empty() bool {
	return c == nil || len(c.Proteins) == 0
}

// CascadeResult counts rows removed by DeleteProteins.
type CascadeResult struct {
	Proteins         int64
	PeptideInstances int64
	Peptides         int64
	PSMs             int64
}

func (c CascadeResult) String() string {
	return fmt.Sprintf("%d proteins, %d peptide instances, %d peptides, %d PSMs",
		c.Proteins, c.PeptideInstances, c.Peptides, c.PSMs)
}

// FilteringCriteria records the thresholds that produced the canonical view.
type FilteringCriteria struct {
	MaximumQValue                       float64
	MinimumDistinctPeptidesPerProtein   int
	MinimumSpectraPerProtein            int
	MinimumAdditionalPeptidesPerProtein int
	RunID                               string
	FilteredAt                          time.Time
}
