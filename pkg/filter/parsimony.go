package filter

import (
	"container/heap"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// SelectedGroup is one protein group in greedy selection order.
type SelectedGroup struct {
	Group      string
	Proteins   []int64
	Additional int
}

// Parsimony holds the additional-peptide count of every candidate protein.
type Parsimony struct {
	// Additional maps protein id to the number of PSMs its group explains
	// that no group selected before it explains.
	Additional map[int64]int

	// Order lists groups as the greedy loop selected them. Groups that never
	// added evidence are appended last with Additional 0.
	Order []SelectedGroup

	// Explained is the number of distinct PSMs explained by any candidate.
	Explained int
}

// Dropped returns the proteins whose additional count is below minimum, ascending.
func (p *Parsimony) Dropped(minimum int) []int64 {
	var ids []int64
	for id, n := range p.Additional {
		if n < minimum {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// ProteinGroupKeys assigns each protein the comma-joined list of its distinct
// peptide ids; proteins with identical peptide evidence share a key.
func ProteinGroupKeys(pairs []store.InstancePair) map[int64]string {
	peptides := make(map[int64][]int64)
	for _, p := range pairs {
		peptides[p.Protein] = append(peptides[p.Protein], p.Peptide)
	}

	keys := make(map[int64]string, len(peptides))
	for protein, ids := range peptides {
		ids = dedupSorted(ids)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatInt(id, 10)
		}
		keys[protein] = strings.Join(parts, ",")
	}
	return keys
}

type coverageGroup struct {
	key        string
	proteins   []int64
	minProtein int64
	coverage   map[int64]struct{}
	done       bool
}

// CalculateAdditionalPeptides runs the greedy maximum-coverage selection.
//
// Each round selects the group explaining the most not-yet-explained PSMs;
// ties go to the group containing the lowest protein id. Every member of the
// selected group is credited with that count and the group's PSMs are removed
// from all other groups. Once no group adds evidence, the remaining proteins
// are credited 0.
//
// candidates lists every protein of the filtered set. A candidate without
// evidence, evidence for a non-candidate, or group members with differing PSM
// sets yield an *InvariantError.
func CalculateAdditionalPeptides(ctx context.Context, candidates []int64, rows store.Rows[store.PSMEvidence], threads int) (*Parsimony, error) {
	defer rows.Close()

	candidateSet := make(map[int64]struct{}, len(candidates))
	for _, id := range candidates {
		candidateSet[id] = struct{}{}
	}

	psmsByProtein := make(map[int64][]int64, len(candidates))
	groupByProtein := make(map[int64]string, len(candidates))
	for rows.Next() {
		row := rows.Value()
		if _, ok := candidateSet[row.ProteinID]; !ok {
			return nil, &InvariantError{Kind: OutsideScope, ProteinID: row.ProteinID}
		}
		if key, seen := groupByProtein[row.ProteinID]; seen && key != row.ProteinGroup {
			return nil, &InvariantError{Kind: GroupMismatch, ProteinID: row.ProteinID, Group: row.ProteinGroup}
		}
		groupByProtein[row.ProteinID] = row.ProteinGroup
		psmsByProtein[row.ProteinID] = append(psmsByProtein[row.ProteinID], row.PSMID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read PSM evidence: %w", err)
	}

	proteins := slices.Clone(candidates)
	slices.Sort(proteins)
	for _, id := range proteins {
		if len(psmsByProtein[id]) == 0 {
			return nil, &InvariantError{Kind: EmptyCoverage, ProteinID: id}
		}
	}

	// coverage sets are independent per protein
	coverage := make([][]int64, len(proteins))
	err := parallelFor(ctx, len(proteins), threads, func(i int) {
		coverage[i] = dedupSorted(psmsByProtein[proteins[i]])
	})
	if err != nil {
		return nil, err
	}

	groups, err := buildCoverageGroups(proteins, coverage, groupByProtein)
	if err != nil {
		return nil, err
	}

	result := &Parsimony{Additional: make(map[int64]int, len(proteins))}
	result.Order = greedySelect(groups, result.Additional)
	for _, g := range result.Order {
		result.Explained += g.Additional
	}
	return result, nil
}

func buildCoverageGroups(proteins []int64, coverage [][]int64, groupByProtein map[int64]string) ([]*coverageGroup, error) {
	var groups []*coverageGroup
	byKey := make(map[string]*coverageGroup)
	first := make(map[string][]int64)

	// proteins are ascending, so the first member seen is the group's minimum
	for i, id := range proteins {
		key := groupByProtein[id]
		g := byKey[key]
		if g == nil {
			g = &coverageGroup{
				key:        key,
				minProtein: id,
				coverage:   make(map[int64]struct{}, len(coverage[i])),
			}
			for _, psm := range coverage[i] {
				g.coverage[psm] = struct{}{}
			}
			byKey[key] = g
			first[key] = coverage[i]
			groups = append(groups, g)
		} else if !slices.Equal(first[key], coverage[i]) {
			return nil, &InvariantError{Kind: GroupMismatch, ProteinID: id, Group: key}
		}
		g.proteins = append(g.proteins, id)
	}
	return groups, nil
}

func greedySelect(groups []*coverageGroup, additional map[int64]int) []SelectedGroup {
	// inverted index: PSM -> groups explaining it
	explainedBy := make(map[int64][]*coverageGroup)
	h := make(coverageHeap, 0, len(groups))
	for _, g := range groups {
		for psm := range g.coverage {
			explainedBy[psm] = append(explainedBy[psm], g)
		}
		h = append(h, coverageEntry{group: g, size: len(g.coverage)})
	}
	heap.Init(&h)

	var order []SelectedGroup
	for h.Len() > 0 {
		top := heap.Pop(&h).(coverageEntry)
		g := top.group
		if g.done {
			continue
		}
		// sizes only shrink, so a stale entry is an upper bound: re-queue it
		if current := len(g.coverage); current != top.size {
			heap.Push(&h, coverageEntry{group: g, size: current})
			continue
		}

		if top.size == 0 {
			// no remaining group adds evidence
			for _, rest := range groups {
				if rest.done {
					continue
				}
				rest.done = true
				for _, id := range rest.proteins {
					additional[id] = 0
				}
				order = append(order, SelectedGroup{Group: rest.key, Proteins: rest.proteins})
			}
			break
		}

		g.done = true
		for _, id := range g.proteins {
			additional[id] = top.size
		}
		order = append(order, SelectedGroup{Group: g.key, Proteins: g.proteins, Additional: top.size})

		for psm := range g.coverage {
			for _, other := range explainedBy[psm] {
				if !other.done {
					delete(other.coverage, psm)
				}
			}
		}
	}
	return order
}

type coverageEntry struct {
	group *coverageGroup
	size  int
}

// coverageHeap is a max-heap on coverage size, then lowest protein id.
type coverageHeap []coverageEntry

func (h coverageHeap) Len() int { return len(h) }

func (h coverageHeap) Less(i, j int) bool {
	if h[i].size != h[j].size {
		return h[i].size > h[j].size
	}
	return h[i].group.minProtein < h[j].group.minProtein
}

func (h coverageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *coverageHeap) Push(x any) { *h = append(*h, x.(coverageEntry)) }

func (h *coverageHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
