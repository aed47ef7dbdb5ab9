package hybridgo

import (
	"sort"
)

// fusedEntry accumulates a candidate's contributions across source lists.
type fusedEntry struct {
	id        string
	score     float64
	component map[string]float64
	bestRank  int
	sources   int
	candidate Candidate
}

// fuse merges ranked source lists with weighted reciprocal rank fusion:
// each appearance at rank r (1-based) contributes weight / (rrfK + r).
// Weights are normalized so only their ratio matters.
//
// Ordering is deterministic: fused score descending, then best single-list
// rank ascending, then ID ascending.
func fuse(vector, graph []Candidate, vectorWeight, graphWeight float64, rrfK int) []Result {
	sum := vectorWeight + graphWeight
	if sum <= 0 {
		return nil
	}
	vectorWeight /= sum
	graphWeight /= sum

	entries := make(map[string]*fusedEntry)

	accumulate := func(list []Candidate, source string, weight float64) {
		for i, c := range list {
			rank := i + 1
			contribution := weight / float64(rrfK+rank)

			e, ok := entries[c.ID]
			if !ok {
				e = &fusedEntry{
					id:        c.ID,
					component: make(map[string]float64, 2),
					bestRank:  rank,
					candidate: c,
				}
				entries[c.ID] = e
			} else {
				if rank < e.bestRank {
					e.bestRank = rank
				}
				// Prefer the vector candidate's payload: it carries the
				// embedding needed for MMR.
				if e.candidate.Embedding == nil && c.Embedding != nil {
					e.candidate = c
				}
			}

			e.score += contribution
			e.component[source] = contribution
			e.sources++
		}
	}

	accumulate(vector, SourceVector, vectorWeight)
	accumulate(graph, SourceGraph, graphWeight)

	fused := make([]*fusedEntry, 0, len(entries))
	for _, e := range entries {
		fused = append(fused, e)
	}

	sort.Slice(fused, func(a, b int) bool {
		if fused[a].score != fused[b].score {
			return fused[a].score > fused[b].score
		}
		if fused[a].bestRank != fused[b].bestRank {
			return fused[a].bestRank < fused[b].bestRank
		}
		return fused[a].id < fused[b].id
	})

	results := make([]Result, 0, len(fused))
	for _, e := range fused {
		var provenance Provenance
		switch {
		case e.sources > 1:
			provenance = ProvenanceHybrid
		case e.component[SourceVector] > 0:
			provenance = ProvenanceVector
		default:
			provenance = ProvenanceGraph
		}

		results = append(results, Result{
			ID:              e.id,
			Score:           e.score,
			ComponentScores: e.component,
			Provenance:      provenance,
			Metadata:        e.candidate.Metadata,
			Embedding:       e.candidate.Embedding,
		})
	}
	return results
}
