package retriever

import (
	"math"

	"pdfqa/internal/embedding"
)

// MMR selects up to k indices from candidates by maximal marginal relevance.
//
// The first pick is the candidate most similar to query. Each further pick
// maximises lambda*sim(query, c) - (1-lambda)*max sim(c, s) over the
// already selected s. Ties go to the lower index.
func MMR(query []float64, candidates [][]float64, k int, lambda float64) []int {
	k = min(k, len(candidates))
	if k <= 0 {
		return nil
	}

	toQuery := make([]float64, len(candidates))
	best := 0
	for i, c := range candidates {
		toQuery[i] = embedding.Cosine(query, c)
		if toQuery[i] > toQuery[best] {
			best = i
		}
	}

	selected := []int{best}
	picked := make([]bool, len(candidates))
	picked[best] = true
	// redundancy[i] is the max similarity of candidate i to anything selected so far
	redundancy := make([]float64, len(candidates))
	for i, c := range candidates {
		redundancy[i] = embedding.Cosine(c, candidates[best])
	}

	for len(selected) < k {
		next, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if picked[i] {
				continue
			}
			score := lambda*toQuery[i] - (1-lambda)*redundancy[i]
			if score > bestScore {
				next, bestScore = i, score
			}
		}
		selected = append(selected, next)
		picked[next] = true
		for i, c := range candidates {
			if !picked[i] {
				redundancy[i] = max(redundancy[i], embedding.Cosine(c, candidates[next]))
			}
		}
	}
	return selected
}
