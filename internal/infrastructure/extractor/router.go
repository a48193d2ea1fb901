// Package extractor picks a text extractor by file extension.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/ports"
)

type Router struct {
	byExt map[string]ports.TextExtractor
}

// NewRouter maps lower-case extensions (".txt") to extractors.
func NewRouter(byExt map[string]ports.TextExtractor) *Router {
	normalized := make(map[string]ports.TextExtractor, len(byExt))
	for ext, e := range byExt {
		normalized[strings.ToLower(ext)] = e
	}
	return &Router{byExt: normalized}
}

func (r *Router) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (r *Router) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("unsupported extension %q", ext))
	}
	return e.Extract(ctx, path)
}
