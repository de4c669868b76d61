package memory

import (
	"cmp"
	"math"
	"slices"
)

// cosineSimilarity returns 0 for vectors of different length or zero
// magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankByScore sorts by descending score, keeping input order among ties,
// and truncates to k.
func rankByScore(items []Insight, k int) []Insight {
	slices.SortStableFunc(items, func(a, b Insight) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if k < len(items) {
		items = items[:k]
	}
	return items
}
