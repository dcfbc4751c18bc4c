package filter

import (
	"context"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// Clusters labels proteins with connected-component ids.
type Clusters struct {
	ByProtein map[int64]int64
	Count     int
}

// Members returns the proteins of each cluster, ascending.
func (c *Clusters) Members() map[int64][]int64 {
	members := make(map[int64][]int64, c.Count)
	for protein, cluster := range c.ByProtein {
		members[cluster] = append(members[cluster], protein)
	}
	for _, ids := range members {
		slices.Sort(ids)
	}
	return members
}

// Protein and spectrum ids share one node id space in the evidence graph.
func proteinNode(id int64) int64  { return id << 1 }
func spectrumNode(id int64) int64 { return id<<1 | 1 }
func nodeProtein(node int64) int64 {
	return node >> 1
}
func isSpectrumNode(node int64) bool { return node&1 == 1 }

// evidenceGraph builds the bipartite protein-spectrum graph. Every protein in
// proteins becomes a node, even without spectra.
func evidenceGraph(proteins []int64, spectra [][]int64) *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for i, protein := range proteins {
		p := simple.Node(proteinNode(protein))
		if g.Node(p.ID()) == nil {
			g.AddNode(p)
		}
		for _, spectrum := range spectra[i] {
			g.SetEdge(g.NewEdge(p, simple.Node(spectrumNode(spectrum))))
		}
	}
	return g
}

// CalculateClusters assigns cluster ids 1..n such that proteins sharing a
// spectrum, directly or through other proteins, share an id. Proteins are
// seeded in ascending id order. Reaching an already-labeled protein from a
// different cluster returns an *InvariantError.
func CalculateClusters(ctx context.Context, rows store.Rows[store.PSMEvidence], threads int) (*Clusters, error) {
	defer rows.Close()

	raw := make(map[int64][]int64)
	for rows.Next() {
		row := rows.Value()
		raw[row.ProteinID] = append(raw[row.ProteinID], row.SpectrumID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read PSM evidence: %w", err)
	}

	proteins := make([]int64, 0, len(raw))
	for id := range raw {
		proteins = append(proteins, id)
	}
	slices.Sort(proteins)

	spectra := make([][]int64, len(proteins))
	err := parallelFor(ctx, len(proteins), threads, func(i int) {
		spectra[i] = dedupSorted(raw[proteins[i]])
	})
	if err != nil {
		return nil, err
	}

	return labelComponents(ctx, proteins, evidenceGraph(proteins, spectra))
}

func labelComponents(ctx context.Context, proteins []int64, g *simple.UndirectedGraph) (*Clusters, error) {
	result := &Clusters{ByProtein: make(map[int64]int64, len(proteins))}

	assign := func(protein, cluster int64) (bool, error) {
		if existing, ok := result.ByProtein[protein]; ok {
			if existing != cluster {
				return false, &InvariantError{
					Kind:                 ClusterConflict,
					ProteinID:            protein,
					ClusterID:            existing,
					ConflictingClusterID: cluster,
				}
			}
			return false, nil
		}
		result.ByProtein[protein] = cluster
		return true, nil
	}

	visitedSpectra := make(map[int64]struct{})
	var cluster int64
	for _, seed := range proteins {
		if _, labeled := result.ByProtein[seed]; labeled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cluster++
		if _, err := assign(seed, cluster); err != nil {
			return nil, err
		}

		stack := []int64{seed}
		for len(stack) > 0 {
			protein := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			spectra := g.From(proteinNode(protein))
			for spectra.Next() {
				s := spectra.Node().ID()
				if _, seen := visitedSpectra[s]; seen {
					continue
				}
				visitedSpectra[s] = struct{}{}

				cousins := g.From(s)
				for cousins.Next() {
					node := cousins.Node().ID()
					if isSpectrumNode(node) {
						return nil, fmt.Errorf("spectrum node %d adjacent to spectrum node %d", s, node)
					}
					cousin := nodeProtein(node)
					if cousin == protein {
						continue
					}
					added, err := assign(cousin, cluster)
					if err != nil {
						return nil, err
					}
					if added {
						stack = append(stack, cousin)
					}
				}
			}
		}
	}

	result.Count = int(cluster)
	return result, nil
}
