package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

const (
	blockSeparator    = "\n\n"
	unresolvedLabel   = "não identificado"
	defaultContextCap = 48000
)

// Assembler renders selected records into the bounded context block sent to completion.
type Assembler struct {
	maxContextChars int
}

func NewAssembler(maxContextChars int) *Assembler {
	if maxContextChars <= 0 {
		maxContextChars = defaultContextCap
	}
	return &Assembler{maxContextChars: maxContextChars}
}

// Assemble keeps the selection order. perDocLimit and the total cap count runes.
func (a *Assembler) Assemble(selected []domain.DocumentRecord, perDocLimit int) string {
	var (
		b     strings.Builder
		total int
	)
	for _, doc := range selected {
		block := formatBlock(doc, perDocLimit)
		size := utf8.RuneCountInString(block)
		if total > 0 {
			size += utf8.RuneCountInString(blockSeparator)
		}
		if total+size > a.maxContextChars {
			if total == 0 {
				b.WriteString(truncateRunes(block, a.maxContextChars))
			}
			break
		}
		if total > 0 {
			b.WriteString(blockSeparator)
		}
		b.WriteString(block)
		total += size
	}
	return b.String()
}

func formatBlock(doc domain.DocumentRecord, perDocLimit int) string {
	label := unresolvedLabel
	if len(doc.Entities) > 0 {
		label = strings.Join(doc.Entities, ", ")
	}
	header := fmt.Sprintf("[RPPS: %s | Data: %s]", label, doc.DateLabel())

	text := strings.TrimSpace(doc.Text)
	if perDocLimit > 0 {
		text = truncateRunes(text, perDocLimit)
	}
	if text == "" {
		return header
	}
	return header + "\n" + text
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
