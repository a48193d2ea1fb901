package entity

import (
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// TokenSetRatio scores two already-normalized strings on a 0..100 scale, ignoring token
// order and duplicates. A string whose tokens are a subset of the other's scores 100.
func TokenSetRatio(a, b string) int {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var inter, onlyA, onlyB []string
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter = append(inter, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if _, ok := setA[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(inter, " ")
	withA := joinNonEmpty(base, strings.Join(onlyA, " "))
	withB := joinNonEmpty(base, strings.Join(onlyB, " "))

	best := ratio(withA, withB)
	if base != "" {
		best = max(best, ratio(base, withA), ratio(base, withB))
	}
	return best
}

// ratio is the normalized edit similarity of two strings on a 0..100 scale.
func ratio(a, b string) int {
	if a == b {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(d)/float64(longest))))
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
