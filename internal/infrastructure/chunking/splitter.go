package chunking

import "strings"

// Splitter packs paragraphs of a minute into chunks of at most ChunkSize runes.
// Paragraphs longer than ChunkSize are cut into rune windows; consecutive windows
// share Overlap runes.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 5000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	var out []string
	var current []rune
	flush := func() {
		if chunk := strings.TrimSpace(string(current)); chunk != "" {
			out = append(out, chunk)
		}
		current = current[:0]
	}

	for _, paragraph := range paragraphs(text) {
		runes := []rune(paragraph)
		if len(runes) > s.ChunkSize {
			flush()
			out = append(out, s.windows(runes)...)
			continue
		}
		sep := 0
		if len(current) > 0 {
			sep = 2
		}
		if len(current)+sep+len(runes) > s.ChunkSize {
			flush()
			sep = 0
		}
		if sep > 0 {
			current = append(current, '\n', '\n')
		}
		current = append(current, runes...)
	}
	flush()
	return out
}

func (s *Splitter) windows(runes []rune) []string {
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
