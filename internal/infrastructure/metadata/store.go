// Package metadata holds the position-aligned record store served to the retriever and
// the start-up steps that fill it.
package metadata

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/ports"
)

// Store is immutable after construction and safe for concurrent readers.
type Store struct {
	records []domain.DocumentRecord
}

func NewStore(records []domain.DocumentRecord) *Store {
	out := make([]domain.DocumentRecord, len(records))
	copy(out, records)
	return &Store{records: out}
}

func (s *Store) Get(position int) (domain.DocumentRecord, bool) {
	if position < 0 || position >= len(s.records) {
		return domain.DocumentRecord{}, false
	}
	return s.records[position], true
}

// All returns the backing slice. Callers must not modify it.
func (s *Store) All() []domain.DocumentRecord {
	return s.records
}

func (s *Store) Len() int {
	return len(s.records)
}

// Enricher derives missing metadata for a record.
type Enricher interface {
	Enrich(doc domain.DocumentRecord) domain.DocumentRecord
}

// Prepare hydrates empty texts from storage and enriches every record. Records whose
// source cannot be read keep an empty text; the position alignment is never broken.
func Prepare(ctx context.Context, records []domain.DocumentRecord, storage ports.ObjectStorage, enricher Enricher) ([]domain.DocumentRecord, error) {
	out := make([]domain.DocumentRecord, len(records))
	missing := 0
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(rec.Text) == "" && storage != nil && rec.Path != "" {
			text, err := readText(ctx, storage, rec.Path)
			if err != nil {
				missing++
				slog.Warn("record_text_unavailable", "position", i, "path", rec.Path, "error", err.Error())
			} else {
				rec.Text = text
			}
		}
		if enricher != nil {
			rec = enricher.Enrich(rec)
		}
		out[i] = rec
	}
	if missing > 0 {
		slog.Warn("records_without_text", "count", missing, "total", len(records))
	}
	return out, nil
}

// readText reads at most MaxStoredTextChars runes.
func readText(ctx context.Context, storage ports.ObjectStorage, key string) (string, error) {
	rc, err := storage.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	r := bufio.NewReader(rc)
	var b strings.Builder
	for n := 0; n < domain.MaxStoredTextChars; n++ {
		ch, _, err := r.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", key, err)
		}
		b.WriteRune(ch)
	}
	return strings.TrimSpace(b.String()), nil
}
