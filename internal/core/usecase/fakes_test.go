package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/entity"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/rules"
)

type embedderFake struct {
	mu    sync.Mutex
	calls int
	texts []string
	dim   int
	err   error
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	dim := f.dim
	if dim == 0 {
		dim = 3
	}
	return make([]float32, dim), nil
}

// indexFake returns positions 0..size-1 in order, truncated to k.
type indexFake struct {
	size int
	dim  int
	err  error
	k    int
}

func (f *indexFake) Search(_ context.Context, _ []float32, k int) ([]domain.IndexHit, error) {
	f.k = k
	if f.err != nil {
		return nil, f.err
	}
	n := min(k, f.size)
	hits := make([]domain.IndexHit, 0, n)
	for i := 0; i < n; i++ {
		hits = append(hits, domain.IndexHit{Position: i, Distance: float64(i)})
	}
	return hits, nil
}

func (f *indexFake) Dimension() int {
	if f.dim == 0 {
		return 3
	}
	return f.dim
}

func (f *indexFake) Size() int { return f.size }

type storeFake struct {
	records []domain.DocumentRecord
}

func (f *storeFake) Get(position int) (domain.DocumentRecord, bool) {
	if position < 0 || position >= len(f.records) {
		return domain.DocumentRecord{}, false
	}
	return f.records[position], true
}

func (f *storeFake) All() []domain.DocumentRecord { return f.records }
func (f *storeFake) Len() int { return len(f.records) }

type completerFake struct {
	calls     int
	system    string
	user      string
	maxTokens int
	response  string
	err       error
}

func (f *completerFake) Complete(_ context.Context, system, user string, maxTokens int) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	f.maxTokens = maxTokens
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

var errBoom = errors.New("boom")

func fixedClock() time.Time {
	return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
}

func newTestSelector() *Selector {
	return NewSelector(entity.NewMatcher(rules.Default().Entity), NewTemporalScorer(fixedClock))
}

func doc(id string, year, month int, entities ...string) domain.DocumentRecord {
	return domain.DocumentRecord{
		ID:       id,
		Path:     "atas/" + id + ".txt",
		Text:     "Texto da ata " + id,
		Entities: entities,
		Year:     year,
		Month:    month,
	}
}

func candidates(docs ...domain.DocumentRecord) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(docs))
	for i, d := range docs {
		out = append(out, domain.Candidate{Record: d, Rank: i, Distance: float64(i)})
	}
	return out
}
