package filter

import (
	"fmt"
	"slices"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

type proteinCounts struct {
	peptides map[int64]struct{}
	spectra  map[int64]struct{}
}

// SelectCandidates applies the q-value and per-protein count thresholds to
// baseline evidence. It reads rows to exhaustion and closes them; it never
// writes to the store.
//
// A protein passes when at least MinimumDistinctPeptidesPerProtein distinct
// peptides and MinimumSpectraPerProtein distinct spectra are matched by PSMs
// with q-value <= MaximumQValue. The returned PSMs, peptides and instances
// are the passing evidence of passing proteins.
func SelectCandidates(rows store.Rows[store.EvidenceRow], cfg Config) (*store.CandidateSet, error) {
	defer rows.Close()

	var passing []store.EvidenceRow
	counts := make(map[int64]*proteinCounts)

	for rows.Next() {
		row := rows.Value()
		if row.QValue > cfg.MaximumQValue {
			continue
		}
		passing = append(passing, row)

		pc := counts[row.ProteinID]
		if pc == nil {
			pc = &proteinCounts{
				peptides: make(map[int64]struct{}),
				spectra:  make(map[int64]struct{}),
			}
			counts[row.ProteinID] = pc
		}
		pc.peptides[row.PeptideID] = struct{}{}
		pc.spectra[row.SpectrumID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read evidence: %w", err)
	}

	proteins := make(map[int64]struct{})
	for id, pc := range counts {
		if len(pc.peptides) >= cfg.MinimumDistinctPeptidesPerProtein &&
			len(pc.spectra) >= cfg.MinimumSpectraPerProtein {
			proteins[id] = struct{}{}
		}
	}

	instances := make(map[int64]struct{})
	peptides := make(map[int64]struct{})
	psms := make(map[int64]struct{})
	for _, row := range passing {
		if _, ok := proteins[row.ProteinID]; !ok {
			continue
		}
		instances[row.PeptideInstanceID] = struct{}{}
		peptides[row.PeptideID] = struct{}{}
		psms[row.PSMID] = struct{}{}
	}

	return &store.CandidateSet{
		Proteins:         sortedIDs(proteins),
		PeptideInstances: sortedIDs(instances),
		Peptides:         sortedIDs(peptides),
		PSMs:             sortedIDs(psms),
	}, nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
