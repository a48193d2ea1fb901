// Package intent routes raw questions to one of the answer pipelines using the
// keyword tables from the rules package.
package intent

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/entity"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/rules"
)

// Classifier is a pure function of the query text; it holds compiled tables only.
type Classifier struct {
	role       *regexp.Regexp
	connectors map[string]struct{}
	analytical []string
	summary    []string
}

func NewClassifier(r rules.IntentRules) *Classifier {
	words := make([]string, 0, len(r.RoleWords))
	for _, w := range r.RoleWords {
		if w = normalizeText(w); w != "" {
			words = append(words, regexp.QuoteMeta(w))
		}
	}
	// Longer alternatives first so "gestora" wins over "gestor".
	sort.Slice(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })

	c := &Classifier{
		connectors: make(map[string]struct{}, len(r.LeadingConnectors)),
		analytical: normalizeAll(r.Analytical),
		summary:    normalizeAll(r.Summary),
	}
	if len(words) > 0 {
		c.role = regexp.MustCompile(`\b(?:` + strings.Join(words, "|") + `)\b\s+(.+)$`)
	}
	for _, w := range r.LeadingConnectors {
		c.connectors[normalizeText(w)] = struct{}{}
	}
	return c
}

// Classify resolves cues by priority: entity lookup, analytical, summary, default.
func (c *Classifier) Classify(raw string) domain.Query {
	text := normalizeText(raw)
	q := domain.Query{
		Raw:        raw,
		Normalized: text,
		Window:     ExtractDateWindow(raw),
	}

	q.Party = c.extractParty(text)
	q.HasRoleCue = q.Party != ""
	padded := " " + text + " "
	q.HasAnalyticalCue = containsAny(padded, c.analytical)
	q.HasSummaryCue = containsAny(padded, c.summary)

	switch {
	case q.HasRoleCue:
		q.Intent = domain.IntentEntityLookup
	case q.HasAnalyticalCue:
		q.Intent = domain.IntentAnalytical
	case q.HasSummaryCue:
		q.Intent = domain.IntentSummary
	default:
		q.Intent = domain.IntentDefault
	}
	return q
}

func (c *Classifier) extractParty(text string) string {
	if c.role == nil {
		return ""
	}
	m := c.role.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	tokens := strings.Fields(m[1])
	for len(tokens) > 0 {
		if _, ok := c.connectors[tokens[0]]; !ok {
			break
		}
		tokens = tokens[1:]
	}
	return strings.Join(tokens, " ")
}

func containsAny(padded string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// normalizeText folds accents, lower-cases and reduces the text to alphanumeric tokens.
func normalizeText(s string) string {
	lower := entity.FoldLower(s)
	return strings.Join(strings.Fields(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, lower)), " ")
}

func normalizeAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if n := normalizeText(item); n != "" {
			out = append(out, n)
		}
	}
	return out
}
