package store

import (
	"sort"
	"time"
)

// Auxiliary table names written alongside the canonical view.
const (
	ProteinGroupsTable     = "ProteinGroups"
	AdditionalMatchesTable = "AdditionalMatches"
	ProteinClustersTable   = "ProteinClusters"
	FilteringCriteriaTable = "FilteringCriteria"
)

// AuxiliaryTables lists every derived table a run recomputes.
var AuxiliaryTables = []string{
	ProteinGroupsTable,
	AdditionalMatchesTable,
	ProteinClustersTable,
	FilteringCriteriaTable,
}

// Column describes one auxiliary table column.
type Column struct {
	Name       string
	Type       string // INTEGER, TEXT, NUMERIC
	PrimaryKey bool
}

// AuxTable is a derived result table replaced wholesale on every run.
type AuxTable struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// ProteinGroups builds the ProteinGroups table from a protein -> group key map.
func ProteinGroups(groupByProtein map[int64]string) AuxTable {
	t := AuxTable{
		Name: ProteinGroupsTable,
		Columns: []Column{
			{Name: "ProteinId", Type: "INTEGER", PrimaryKey: true},
			{Name: "ProteinGroup", Type: "TEXT"},
		},
	}
	for _, id := range sortedKeys(groupByProtein) {
		t.Rows = append(t.Rows, []any{id, groupByProtein[id]})
	}
	return t
}

// AdditionalMatches builds the AdditionalMatches table.
func AdditionalMatches(additionalByProtein map[int64]int) AuxTable {
	t := AuxTable{
		Name: AdditionalMatchesTable,
		Columns: []Column{
			{Name: "ProteinId", Type: "INTEGER", PrimaryKey: true},
			{Name: "AdditionalMatches", Type: "INTEGER"},
		},
	}
	for _, id := range sortedKeys(additionalByProtein) {
		t.Rows = append(t.Rows, []any{id, additionalByProtein[id]})
	}
	return t
}

// ProteinClusters builds the ProteinClusters table.
func ProteinClusters(clusterByProtein map[int64]int64) AuxTable {
	t := AuxTable{
		Name: ProteinClustersTable,
		Columns: []Column{
			{Name: "ProteinId", Type: "INTEGER", PrimaryKey: true},
			{Name: "ClusterId", Type: "INTEGER"},
		},
	}
	for _, id := range sortedKeys(clusterByProtein) {
		t.Rows = append(t.Rows, []any{id, clusterByProtein[id]})
	}
	return t
}

// Criteria builds the single-row FilteringCriteria table.
func Criteria(c FilteringCriteria) AuxTable {
	return AuxTable{
		Name: FilteringCriteriaTable,
		Columns: []Column{
			{Name: "MaximumQValue", Type: "NUMERIC"},
			{Name: "MinimumDistinctPeptidesPerProtein", Type: "INTEGER"},
			{Name: "MinimumSpectraPerProtein", Type: "INTEGER"},
			{Name: "MinimumAdditionalPeptidesPerProtein", Type: "INTEGER"},
			{Name: "RunId", Type: "TEXT"},
			{Name: "FilteredAt", Type: "TEXT"},
		},
		Rows: [][]any{{
			c.MaximumQValue,
			c.MinimumDistinctPeptidesPerProtein,
			c.MinimumSpectraPerProtein,
			c.MinimumAdditionalPeptidesPerProtein,
			c.RunID,
			c.FilteredAt.UTC().Format(time.RFC3339Nano),
		}},
	}
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
