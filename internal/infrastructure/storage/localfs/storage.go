package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

// Storage keeps source texts under a root directory. Keys are slash-separated paths
// relative to the root.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/atas"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "open "+key, err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// resolve accepts keys stored relative to the root as well as keys that already carry
// the root prefix, which is how the indexer records paths.
func (s *Storage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(key)))
	if clean == "." || clean == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve key", fmt.Errorf("empty key"))
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	base := filepath.Clean(s.basePath)
	if clean == base || strings.HasPrefix(clean, base+string(filepath.Separator)) {
		return clean, nil
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve key", fmt.Errorf("key %q escapes storage root", key))
	}
	return filepath.Join(base, clean), nil
}
