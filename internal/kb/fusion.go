package kb

import "sort"

// DefaultRRFK is the standard reciprocal rank fusion constant.
const DefaultRRFK = 60

// FuseRRF merges a dense and a sparse ranking with reciprocal rank
// fusion: each item at zero-based rank r contributes 1/(k+r+1) to its
// combined score. Rank position is all that matters, so no score
// normalization is needed between the unbounded lexical scale and the
// [-1,1] cosine scale. Output is every seen ID sorted by combined score
// descending, ties broken by ID.
func FuseRRF(dense, sparse []ScoredID, k int) []ScoredID {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[string]float64, len(dense)+len(sparse))
	for rank, hit := range dense {
		scores[hit.ID] += 1.0 / float64(k+rank+1)
	}
	for rank, hit := range sparse {
		scores[hit.ID] += 1.0 / float64(k+rank+1)
	}

	fused := make([]ScoredID, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, ScoredID{ID: id, Score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score == fused[j].Score {
			return fused[i].ID < fused[j].ID
		}
		return fused[i].Score > fused[j].Score
	})
	return fused
}
