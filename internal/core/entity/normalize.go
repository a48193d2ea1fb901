// Package entity resolves noisy RPPS institution mentions to canonical names.
package entity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/rules"
)

// Normalizer canonicalizes institution names. It is safe for concurrent use.
type Normalizer struct {
	denylist   [][]string
	connectors map[string]struct{}
}

func NewNormalizer(r rules.EntityRules) *Normalizer {
	n := &Normalizer{
		denylist:   make([][]string, 0, len(r.Denylist)),
		connectors: make(map[string]struct{}, len(r.EdgeConnectors)),
	}
	for _, phrase := range r.Denylist {
		if tokens := Tokenize(phrase); len(tokens) > 0 {
			n.denylist = append(n.denylist, tokens)
		}
	}
	for _, c := range r.EdgeConnectors {
		for _, tok := range Tokenize(c) {
			n.connectors[tok] = struct{}{}
		}
	}
	return n
}

// Normalize uppercases, folds diacritics, keeps letters only, collapses whitespace and
// strips boilerplate phrases until nothing more can be removed.
func (n *Normalizer) Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	tokens := Tokenize(raw)
	for changed := true; changed; {
		changed = false
		for _, phrase := range n.denylist {
			var removed bool
			tokens, removed = removeSequence(tokens, phrase)
			changed = changed || removed
		}
		var trimmed bool
		tokens, trimmed = n.trimConnectors(tokens)
		changed = changed || trimmed
	}
	return strings.Join(tokens, " ")
}

func (n *Normalizer) trimConnectors(tokens []string) ([]string, bool) {
	start, end := 0, len(tokens)
	for start < end {
		if _, ok := n.connectors[tokens[start]]; !ok {
			break
		}
		start++
	}
	for end > start {
		if _, ok := n.connectors[tokens[end-1]]; !ok {
			break
		}
		end--
	}
	return tokens[start:end], start > 0 || end < len(tokens)
}

func removeSequence(tokens, seq []string) ([]string, bool) {
	if len(seq) == 0 || len(tokens) < len(seq) {
		return tokens, false
	}
	out := make([]string, 0, len(tokens))
	removed := false
	for i := 0; i < len(tokens); {
		if i+len(seq) <= len(tokens) && equalTokens(tokens[i:i+len(seq)], seq) {
			i += len(seq)
			removed = true
			continue
		}
		out = append(out, tokens[i])
		i++
	}
	return out, removed
}

func equalTokens(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Tokenize folds s to uppercase letters-only tokens.
func Tokenize(s string) []string {
	folded := FoldUpper(s)
	return strings.Fields(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return ' '
	}, folded))
}

// FoldUpper removes combining marks and uppercases, keeping every other rune.
func FoldUpper(s string) string {
	return fold(strings.ToUpper(fold(s)))
}

// FoldLower is the lower-case counterpart used for query keyword matching.
func FoldLower(s string) string {
	return fold(strings.ToLower(fold(s)))
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
