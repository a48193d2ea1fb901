package localfs

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

func TestSaveAndOpen(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Save(context.Background(), "2023/ata_2023_05.txt", strings.NewReader("conteúdo")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := s.Open(context.Background(), "2023/ata_2023_05.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "conteúdo" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestOpenAcceptsRootPrefixedKey(t *testing.T) {
	root := t.TempDir()
	s, _ := New(root)
	_ = s.Save(context.Background(), "a.txt", strings.NewReader("x"))

	rc, err := s.Open(context.Background(), filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_ = rc.Close()
}

func TestOpenErrors(t *testing.T) {
	s, _ := New(t.TempDir())
	if _, err := s.Open(context.Background(), "missing.txt"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Open(context.Background(), "../etc/passwd"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
