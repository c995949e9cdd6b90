package kb

import (
	"math"
	"testing"
)

func TestFuseRRF(t *testing.T) {
	dense := []ScoredID{
		{ID: "a", Score: 0.97},
		{ID: "b", Score: 0.91},
		{ID: "c", Score: 0.85},
	}
	sparse := []ScoredID{
		{ID: "b", Score: 14.2},
		{ID: "a", Score: 11.8},
		{ID: "d", Score: 3.1},
	}

	fused := FuseRRF(dense, sparse, 60)
	if len(fused) != 4 {
		t.Fatalf("expected 4 fused hits, got %d", len(fused))
	}

	// a and b both appear at ranks 0 and 1, so they tie exactly and
	// order by ID; c and d both sit at rank 2 of one list.
	wantOrder := []string{"a", "b", "c", "d"}
	for i, want := range wantOrder {
		if fused[i].ID != want {
			t.Errorf("position %d: expected %q, got %q", i, want, fused[i].ID)
		}
	}

	wantTop := 1.0/61.0 + 1.0/62.0
	if math.Abs(fused[0].Score-wantTop) > 1e-12 {
		t.Errorf("expected top score %v, got %v", wantTop, fused[0].Score)
	}
	if fused[0].Score != fused[1].Score {
		t.Errorf("a and b must tie: %v vs %v", fused[0].Score, fused[1].Score)
	}
	wantTail := 1.0 / 63.0
	if math.Abs(fused[2].Score-wantTail) > 1e-12 {
		t.Errorf("expected tail score %v, got %v", wantTail, fused[2].Score)
	}
}

func TestFuseRRFIgnoresRawScores(t *testing.T) {
	// Raw score magnitudes must not leak into fusion, only rank.
	small := []ScoredID{{ID: "x", Score: 0.0001}}
	big := []ScoredID{{ID: "y", Score: 99999}}

	fused := FuseRRF(small, big, 60)
	if len(fused) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(fused))
	}
	if fused[0].Score != fused[1].Score {
		t.Errorf("rank-0 hits from each list must score equally: %v vs %v",
			fused[0].Score, fused[1].Score)
	}
}

func TestFuseRRFOneSideEmpty(t *testing.T) {
	dense := []ScoredID{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}}

	fused := FuseRRF(dense, nil, 60)
	if len(fused) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(fused))
	}
	if fused[0].ID != "a" {
		t.Errorf("expected %q first, got %q", "a", fused[0].ID)
	}

	if fused := FuseRRF(nil, nil, 60); len(fused) != 0 {
		t.Errorf("expected no hits for empty inputs, got %v", fused)
	}
}

func TestFuseRRFDefaultK(t *testing.T) {
	dense := []ScoredID{{ID: "a", Score: 1}}
	fused := FuseRRF(dense, nil, 0)
	want := 1.0 / float64(DefaultRRFK+1)
	if math.Abs(fused[0].Score-want) > 1e-12 {
		t.Errorf("expected default k score %v, got %v", want, fused[0].Score)
	}
}
