package usecase

import (
	"time"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

// TemporalScorer assigns a coarse recency priority. It is a sort key, never a filter.
type TemporalScorer struct {
	now func() time.Time
}

func NewTemporalScorer(now func() time.Time) *TemporalScorer {
	if now == nil {
		now = time.Now
	}
	return &TemporalScorer{now: now}
}

// Score returns 0 for undated records, 3 for the current or previous year, 2 for up to
// three years back and 1 for anything older.
func (s *TemporalScorer) Score(doc domain.DocumentRecord) int {
	if !doc.Dated() {
		return 0
	}
	current := s.now().Year()
	switch {
	case doc.Year >= current-1:
		return 3
	case doc.Year >= current-3:
		return 2
	default:
		return 1
	}
}
