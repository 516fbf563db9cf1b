package service

import (
	"testing"
	"time"

	"punchclock/internal/services/mandays/domain"
)

func at(hh, mm int) time.Time {
	return time.Date(2024, 3, 11, hh, mm, 0, 0, time.UTC)
}

func TestFoldPairsEvenDay(t *testing.T) {
	pairs, open := FoldPairs([]time.Time{at(9, 0), at(13, 0), at(14, 0), at(18, 0)})

	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(pairs))
	}
	if pairs[0].Span() != 4*time.Hour || pairs[1].Span() != 4*time.Hour {
		t.Fatalf("spans = %v/%v", pairs[0].Span(), pairs[1].Span())
	}
	if !open.IsZero() {
		t.Fatalf("open = %s, want none", open)
	}
}

func TestFoldPairsTrailingIn(t *testing.T) {
	pairs, open := FoldPairs([]time.Time{at(9, 0), at(13, 0), at(14, 0)})

	if len(pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(pairs))
	}
	if open.IsZero() || !open.Equal(at(14, 0)) {
		t.Fatalf("open = %s, want the trailing IN", open)
	}
}

func TestFoldPairsCapsAtTen(t *testing.T) {
	var times []time.Time
	for i := 0; i < 26; i++ { // 13 pairs worth of punches
		times = append(times, at(0, i))
	}
	pairs, open := FoldPairs(times)

	if len(pairs) != domain.MaxPairs {
		t.Fatalf("pairs = %d, want %d", len(pairs), domain.MaxPairs)
	}
	if !open.IsZero() {
		t.Fatal("overflow past the cap is dropped, not reported as missed")
	}
}

func TestFoldPairsSingle(t *testing.T) {
	pairs, open := FoldPairs([]time.Time{at(9, 0)})
	if len(pairs) != 0 {
		t.Fatalf("pairs = %d, want 0", len(pairs))
	}
	if !open.Equal(at(9, 0)) {
		t.Fatalf("open = %s", open)
	}

	pairs, open = FoldPairs(nil)
	if len(pairs) != 0 || !open.IsZero() {
		t.Fatal("empty day must fold to nothing")
	}
}
