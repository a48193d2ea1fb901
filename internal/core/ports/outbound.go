package ports

import (
	"context"
	"io"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is used by the offline indexer.
type BatchEmbedder interface {
	Embedder
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex performs nearest-neighbour search over vectors aligned with the metadata store.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, k int) ([]domain.IndexHit, error)
	Dimension() int
	Size() int
}

// MetadataStore is the position-aligned, read-only collection of records.
type MetadataStore interface {
	Get(position int) (domain.DocumentRecord, bool)
	All() []domain.DocumentRecord
	Len() int
}

// Completer is the external text completion service.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// ObjectStorage opens stored source texts.
type ObjectStorage interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor extracts plain text from a source file.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Chunker splits text into indexable chunks.
type Chunker interface {
	Split(text string) []string
}
