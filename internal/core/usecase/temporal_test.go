package usecase

import (
	"testing"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

func TestTemporalScore(t *testing.T) {
	scorer := NewTemporalScorer(fixedClock)
	tests := []struct {
		year int
		want int
	}{
		{year: 0, want: 0},
		{year: 2025, want: 3},
		{year: 2024, want: 3},
		{year: 2023, want: 3},
		{year: 2022, want: 2},
		{year: 2021, want: 2},
		{year: 2020, want: 1},
		{year: 1998, want: 1},
	}
	for _, tt := range tests {
		if got := scorer.Score(domain.DocumentRecord{Year: tt.year}); got != tt.want {
			t.Fatalf("Score(year=%d) = %d, want %d", tt.year, got, tt.want)
		}
	}
}

func TestTemporalScoreMonotonic(t *testing.T) {
	scorer := NewTemporalScorer(fixedClock)
	prev := scorer.Score(domain.DocumentRecord{Year: 1990})
	for year := 1991; year <= 2030; year++ {
		got := scorer.Score(domain.DocumentRecord{Year: year})
		if got < prev {
			t.Fatalf("score decreased at year %d: %d < %d", year, got, prev)
		}
		prev = got
	}
}
