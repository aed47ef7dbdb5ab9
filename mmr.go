package hybridgo

import (
	"github.com/hupe1980/hybridgo/metric"
)

// mmrRerank reorders results with maximal marginal relevance and returns
// at most k of them. Each step picks the remaining result maximizing
//
//	lambda*relevance - (1-lambda)*maxSimilarityToSelected
//
// where relevance is the fused score and similarity is cosine between
// embeddings. Results without an embedding (graph-only hits) have zero
// similarity to everything, so they are penalized only through relevance.
//
// lambda=1 preserves the fused order; lambda=0 maximizes diversity.
func mmrRerank(results []Result, k int, lambda float64) []Result {
	if len(results) <= 1 || k <= 0 {
		if len(results) > k {
			return results[:k]
		}
		return results
	}

	remaining := make([]Result, len(results))
	copy(remaining, results)

	selected := make([]Result, 0, min(k, len(remaining)))

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], selected, lambda)

		for i := 1; i < len(remaining); i++ {
			if score := mmrScore(remaining[i], selected, lambda); score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func mmrScore(candidate Result, selected []Result, lambda float64) float64 {
	var maxSim float64
	for _, s := range selected {
		if sim := embeddingSimilarity(candidate.Embedding, s.Embedding); sim > maxSim {
			maxSim = sim
		}
	}
	return lambda*candidate.Score - (1-lambda)*maxSim
}

// embeddingSimilarity is cosine similarity, treating missing or
// mismatched embeddings as completely dissimilar.
func embeddingSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	sim, err := metric.CosineSimilarity(a, b)
	if err != nil {
		return 0
	}
	return float64(sim)
}
