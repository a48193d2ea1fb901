package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

func TestRetrieveKeepsIndexOrder(t *testing.T) {
	store := &storeFake{records: []domain.DocumentRecord{doc("a", 2024, 1), doc("b", 2023, 1), doc("c", 2022, 1)}}
	embedder := &embedderFake{}
	index := &indexFake{size: 3}
	r := NewRetriever(embedder, index, store)

	got, err := r.Retrieve(context.Background(), "pergunta", 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if index.k != 5 {
		t.Fatalf("expected default k=5, got %d", index.k)
	}
	if len(got) != 3 || got[0].Record.ID != "a" || got[2].Record.ID != "c" {
		t.Fatalf("unexpected candidates %+v", got)
	}
	for i, c := range got {
		if c.Rank != i {
			t.Fatalf("candidate %d has rank %d", i, c.Rank)
		}
	}
	if embedder.texts[0] != "pergunta" {
		t.Fatalf("unexpected embedded text %q", embedder.texts[0])
	}
}

func TestRetrieveSkipsPositionsWithoutMetadata(t *testing.T) {
	store := &storeFake{records: []domain.DocumentRecord{doc("a", 2024, 1)}}
	r := NewRetriever(&embedderFake{}, &indexFake{size: 3}, store)

	got, err := r.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
}

func TestRetrieveErrors(t *testing.T) {
	store := &storeFake{records: []domain.DocumentRecord{doc("a", 2024, 1)}}

	if _, err := NewRetriever(&embedderFake{err: errBoom}, &indexFake{size: 1}, store).
		Retrieve(context.Background(), "q", 1); !errors.Is(err, errBoom) {
		t.Fatalf("expected embed error, got %v", err)
	}
	if _, err := NewRetriever(&embedderFake{}, &indexFake{size: 1, err: errBoom}, store).
		Retrieve(context.Background(), "q", 1); !errors.Is(err, errBoom) {
		t.Fatalf("expected search error, got %v", err)
	}
	_, err := NewRetriever(&embedderFake{dim: 4}, &indexFake{size: 1, dim: 3}, store).
		Retrieve(context.Background(), "q", 1)
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
