package entity

import (
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/rules"
)

// Matcher decides whether two raw institution names denote the same RPPS. Tiers are
// tried in order: exact normalized, shared anchor code, token-set similarity. A shared
// anchor is not enough when both names go on to name different places.
type Matcher struct {
	normalizer *Normalizer
	prefixes   []string
	minLen     int
	maxLen     int
	threshold  int
}

func NewMatcher(r rules.EntityRules) *Matcher {
	prefixes := make([]string, 0, len(r.AnchorPrefixes))
	for _, p := range r.AnchorPrefixes {
		if p = strings.Join(Tokenize(p), ""); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &Matcher{
		normalizer: NewNormalizer(r),
		prefixes:   prefixes,
		minLen:     r.AnchorMinLen,
		maxLen:     r.AnchorMaxLen,
		threshold:  r.SimilarityThreshold,
	}
}

// Normalize exposes the canonical form used by every tier.
func (m *Matcher) Normalize(raw string) string {
	return m.normalizer.Normalize(raw)
}

func (m *Matcher) IsSameEntity(a, b string) bool {
	na, nb := m.Normalize(a), m.Normalize(b)
	return m.sameNormalized(na, nb)
}

func (m *Matcher) sameNormalized(na, nb string) bool {
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if aa, ab := m.Anchor(na), m.Anchor(nb); aa != "" && aa == ab && !m.distinctNames(na, nb, aa) {
		return true
	}
	return TokenSetRatio(na, nb) >= m.threshold
}

// distinctNames reports whether both names carry words besides the shared anchor and
// none of those words overlap, as in "IPREV SAO CARLOS" and "IPREV CAMPINAS".
func (m *Matcher) distinctNames(na, nb, anchor string) bool {
	ra, rb := m.residual(na, anchor), m.residual(nb, anchor)
	if len(ra) == 0 || len(rb) == 0 {
		return false
	}
	for tok := range ra {
		if _, ok := rb[tok]; ok {
			return false
		}
	}
	return true
}

func (m *Matcher) residual(normalized, anchor string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		if tok == anchor {
			continue
		}
		if _, ok := m.normalizer.connectors[tok]; ok {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// Anchor returns the first institutional code token of a normalized name, or "".
func (m *Matcher) Anchor(normalized string) string {
	for _, tok := range strings.Fields(normalized) {
		n := utf8.RuneCountInString(tok)
		if n < m.minLen || n > m.maxLen {
			continue
		}
		for _, p := range m.prefixes {
			if strings.HasPrefix(tok, p) {
				return tok
			}
		}
	}
	return ""
}

// Resolve maps a mention onto the first known canonical name it matches. The second
// result is false when the mention is new; the returned name is then its own
// normalized form.
func (m *Matcher) Resolve(mention string, known []string) (string, bool) {
	n := m.Normalize(mention)
	if n == "" {
		return "", false
	}
	for _, k := range known {
		if m.sameNormalized(n, m.Normalize(k)) {
			return k, true
		}
	}
	return n, false
}

// MatchesAny reports whether raw matches at least one of the candidates.
func (m *Matcher) MatchesAny(raw string, candidates []string) bool {
	_, ok := m.Resolve(raw, candidates)
	return ok
}
