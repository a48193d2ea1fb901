package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitKeepsShortTextWhole(t *testing.T) {
	s := NewSplitter(100, 10)
	chunks := s.Split("Ata da reunião ordinária.\n\nPresentes os membros do comitê.")
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d: %q", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0], "\n\nPresentes") {
		t.Fatalf("expected paragraph break preserved, got %q", chunks[0])
	}
}

func TestSplitPacksParagraphsUnderLimit(t *testing.T) {
	s := NewSplitter(30, 0)
	text := strings.Repeat("a", 20) + "\n\n" + strings.Repeat("b", 20) + "\n\n" + strings.Repeat("c", 5)
	chunks := s.Split(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[1] != strings.Repeat("b", 20)+"\n\n"+"ccccc" {
		t.Fatalf("unexpected second chunk %q", chunks[1])
	}
}

func TestSplitWindowsLongParagraph(t *testing.T) {
	s := NewSplitter(10, 2)
	chunks := s.Split(strings.Repeat("é", 25))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(chunks))
	}
	for _, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 10 {
			t.Fatalf("chunk exceeds limit: %d runes", n)
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	if chunks := NewSplitter(0, 0).Split(" \n\n \r\n"); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %q", chunks)
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(40, 80)
	if s.Overlap != 10 {
		t.Fatalf("expected overlap clamped to 10, got %d", s.Overlap)
	}
}
