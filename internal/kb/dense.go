package kb

import (
	"math"
	"sort"
)

// cosineEpsilon keeps similarity finite for degenerate zero vectors.
const cosineEpsilon = 1e-8

// SearchDense ranks the given embeddings by cosine similarity to the
// query vector and returns the topK best, descending. This is a full
// linear scan, O(N*d) per query; an approximate nearest-neighbor
// structure could replace it behind the same contract. Ties break by
// lexicographic ID so results are deterministic.
func SearchDense(query []float32, embeddings map[string][]float32, topK int) []ScoredID {
	if len(embeddings) == 0 || topK <= 0 {
		return nil
	}

	ids := make([]string, 0, len(embeddings))
	for id := range embeddings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	scored := make([]ScoredID, 0, len(ids))
	for _, id := range ids {
		scored = append(scored, ScoredID{ID: id, Score: Cosine(query, embeddings[id])})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Cosine computes cosine similarity with an epsilon in the denominator,
// so zero vectors score 0 instead of dividing by zero. Mismatched or
// empty vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + cosineEpsilon)
}
