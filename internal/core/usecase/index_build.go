package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/ports"
)

const defaultEmbedBatch = 16

// RecordEnricher derives entities, date, class and flags for a record.
type RecordEnricher interface {
	Enrich(doc domain.DocumentRecord) domain.DocumentRecord
}

// BuiltIndex holds position-aligned records and vectors ready to be persisted.
type BuiltIndex struct {
	Records []domain.DocumentRecord
	Vectors [][]float32
	Skipped []string
}

// IndexBuildUseCase turns source minutes into records and embeddings.
type IndexBuildUseCase struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
	enricher  RecordEnricher
	embedder  ports.BatchEmbedder
	batchSize int
}

func NewIndexBuildUseCase(
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	enricher RecordEnricher,
	embedder ports.BatchEmbedder,
	batchSize int,
) *IndexBuildUseCase {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatch
	}
	return &IndexBuildUseCase{
		extractor: extractor,
		chunker:   chunker,
		enricher:  enricher,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// Build processes paths in order. Sources that cannot be read or yield no text are
// skipped and reported; embedding failures abort the build.
func (uc *IndexBuildUseCase) Build(ctx context.Context, paths []string) (*BuiltIndex, error) {
	out := &BuiltIndex{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := uc.recordsFor(ctx, path)
		if err != nil {
			slog.Warn("source_skipped", "path", path, "error", err.Error())
			out.Skipped = append(out.Skipped, path)
			continue
		}
		out.Records = append(out.Records, records...)
	}
	if len(out.Records) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build index", errors.New("no indexable text found"))
	}

	vectors, err := uc.embed(ctx, out.Records)
	if err != nil {
		return nil, err
	}
	out.Vectors = vectors
	return out, nil
}

// recordsFor derives metadata once from the whole minute and shares it across chunks.
func (uc *IndexBuildUseCase) recordsFor(ctx context.Context, path string) ([]domain.DocumentRecord, error) {
	text, err := uc.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	base := uc.enricher.Enrich(domain.DocumentRecord{ID: path, Path: path, Text: text})
	out := make([]domain.DocumentRecord, 0, len(chunks))
	for i, chunk := range chunks {
		rec := base
		rec.Text = chunk
		if len(chunks) > 1 {
			rec.ID = fmt.Sprintf("%s#%d", path, i)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (uc *IndexBuildUseCase) embed(ctx context.Context, records []domain.DocumentRecord) ([][]float32, error) {
	out := make([][]float32, 0, len(records))
	dimension := 0
	for start := 0; start < len(records); start += uc.batchSize {
		end := min(start+uc.batchSize, len(records))
		texts := make([]string, 0, end-start)
		for _, rec := range records[start:end] {
			texts = append(texts, rec.Text)
		}

		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(texts) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "embed batch",
				fmt.Errorf("vectors/texts mismatch: %d/%d", len(vectors), len(texts)))
		}
		for _, v := range vectors {
			if dimension == 0 {
				dimension = len(v)
			}
			if len(v) == 0 || len(v) != dimension {
				return nil, domain.WrapError(domain.ErrConfiguration, "embed batch",
					fmt.Errorf("embedding dimension %d differs from %d", len(v), dimension))
			}
		}
		out = append(out, vectors...)
		slog.Info("embed_batch_done", "done", end, "total", len(records))
	}
	return out, nil
}
