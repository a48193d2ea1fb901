package entity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/rules"
)

// Extractor finds RPPS mentions in free text and returns them as canonical names.
type Extractor struct {
	matcher   *Matcher
	patterns  []*regexp.Regexp
	markers   []string
	bankTerms []string
	invalid   []string
	minLength int
}

func NewExtractor(r rules.EntityRules, matcher *Matcher) (*Extractor, error) {
	sources := make([]string, 0, len(r.MentionPatterns)+1)
	if p := acronymPattern(r); p != "" {
		sources = append(sources, p)
	}
	patterns, err := rules.CompileAll(append(sources, r.MentionPatterns...))
	if err != nil {
		return nil, err
	}
	markers := make([]string, 0, len(r.RequiredMarkers)+len(r.AnchorPrefixes))
	markers = append(markers, r.RequiredMarkers...)
	markers = append(markers, r.AnchorPrefixes...)
	return &Extractor{
		matcher:   matcher,
		patterns:  patterns,
		markers:   foldAll(markers),
		bankTerms: foldAll(r.BankTerms),
		invalid:   foldAll(r.InvalidPhrases),
		minLength: r.MinMentionLength,
	}, nil
}

// Mentions returns the distinct canonical entities named in text, in order of first
// appearance. Mentions of the same institute collapse onto the first spelling seen.
func (e *Extractor) Mentions(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	upper := FoldUpper(text)

	var out []string
	for _, re := range e.patterns {
		for _, raw := range re.FindAllString(upper, -1) {
			raw = strings.Join(strings.Fields(raw), " ")
			if !e.Valid(raw) {
				continue
			}
			canonical, known := e.matcher.Resolve(raw, out)
			if canonical == "" || known {
				continue
			}
			out = append(out, canonical)
		}
	}
	return out
}

// Valid applies the mention filters: minimum length, an institutional marker, and no
// bank or course vocabulary.
func (e *Extractor) Valid(mention string) bool {
	m := FoldUpper(strings.TrimSpace(mention))
	if len([]rune(m)) < e.minLength {
		return false
	}
	padded := " " + strings.Join(Tokenize(m), " ") + " "
	for _, phrase := range e.invalid {
		if strings.Contains(padded, " "+phrase+" ") {
			return false
		}
	}
	for _, term := range e.bankTerms {
		if strings.Contains(padded, " "+term+" ") {
			return false
		}
	}
	for _, marker := range e.markers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

// CleanEntities re-validates stored entity names, normalizes them and drops
// duplicates; invalid names are discarded.
func (e *Extractor) CleanEntities(names []string) []string {
	var out []string
	for _, name := range names {
		if !e.Valid(name) {
			continue
		}
		canonical, known := e.matcher.Resolve(name, out)
		if canonical == "" || known {
			continue
		}
		out = append(out, canonical)
	}
	return out
}

// acronymPattern matches an anchor-shaped code followed by up to three name words. It
// is derived from the anchor rules so that every code the matcher anchors on can also
// be extracted.
func acronymPattern(r rules.EntityRules) string {
	var alts []string
	for _, prefix := range r.AnchorPrefixes {
		p := strings.Join(Tokenize(prefix), "")
		n := len([]rune(p))
		if p == "" || n > r.AnchorMaxLen {
			continue
		}
		lo := max(r.AnchorMinLen-n, 0)
		alts = append(alts, fmt.Sprintf("%s[A-Z]{%d,%d}", regexp.QuoteMeta(p), lo, r.AnchorMaxLen-n))
	}
	if len(alts) == 0 {
		return ""
	}
	return `\b(?:` + strings.Join(alts, "|") + `)\b(?: [A-Z]{2,}){0,3}`
}

func foldAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if f := strings.Join(Tokenize(item), " "); f != "" {
			out = append(out, f)
		}
	}
	return out
}
