package vectorstore

import (
	"errors"
	"fmt"
	"sort"

	"pdfqa/internal/domain"
)

// Storage persists chunk vectors and supports similarity search.
type Storage = domain.VectorStore

// ErrDimensionMismatch means a vector does not have the dimension the index was built with,
// usually because the embedder changed since the index was created.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// CheckDimension rejects a query vector whose length differs from the index
// dimension. An index without entries (want == 0) accepts any vector.
func CheckDimension(got, want int) error {
	if want != 0 && got != want {
		return fmt.Errorf("%w: query has %d, index has %d (rebuild the index after changing the embedder)",
			ErrDimensionMismatch, got, want)
	}
	return nil
}

// SortByScore orders results by descending score, keeping insertion order on ties.
func SortByScore(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

// TopK truncates results to at most k entries.
func TopK(results []domain.SearchResult, k int) []domain.SearchResult {
	if k > 0 && k < len(results) {
		return results[:k]
	}
	return results
}
