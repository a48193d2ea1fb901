package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/ports"
)

// Retriever embeds query text and maps nearest index positions back to records. The
// index order is kept as is.
type Retriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	store    ports.MetadataStore
}

func NewRetriever(embedder ports.Embedder, index ports.VectorIndex, store ports.MetadataStore) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		store:    store,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, text string, k int) ([]domain.Candidate, error) {
	if k <= 0 {
		k = 5
	}

	vector, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if dim := r.index.Dimension(); dim > 0 && len(vector) != dim {
		return nil, domain.WrapError(domain.ErrConfiguration, "embed query",
			fmt.Errorf("vector dimension %d does not match index dimension %d", len(vector), dim))
	}

	hits, err := r.index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, hit := range hits {
		record, ok := r.store.Get(hit.Position)
		if !ok {
			slog.Warn("index_position_without_metadata", "position", hit.Position, "store_len", r.store.Len())
			continue
		}
		out = append(out, domain.Candidate{
			Record:   record,
			Rank:     len(out),
			Distance: hit.Distance,
		})
	}
	return out, nil
}
