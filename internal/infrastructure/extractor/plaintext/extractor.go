package plaintext

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/ports"
)

// Extractor reads .txt minutes. Files that are not valid UTF-8 are decoded as
// Windows-1252, the usual encoding of exported municipal documents.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	reader, err := e.storage.Open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	return Decode(raw)
}

// Decode returns trimmed UTF-8 text, transcoding from Windows-1252 when needed.
func Decode(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("decode windows-1252: %w", err)
		}
		raw = decoded
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return strings.TrimSpace(strings.TrimPrefix(text, "\ufeff")), nil
}
