package usecase

import (
	"math/rand/v2"
	"sort"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/entity"
)

// GroupOrder decides how entity groups are concatenated.
type GroupOrder int

const (
	// OrderRank keeps groups in order of their best retrieval rank.
	OrderRank GroupOrder = iota
	// OrderShuffle permutes groups with the policy's random source.
	OrderShuffle
)

// Policy bounds the diversified selection.
type Policy struct {
	MaxPerEntity int
	MaxTotal     int
	Order        GroupOrder
	Rand         *rand.Rand

	// IncludeUnresolved keeps records without a resolved entity as one more group.
	IncludeUnresolved bool
	// FallbackTopN > 0 returns the top candidates by rank when no entity resolves.
	FallbackTopN int
	// PreferFlags breaks recency ties inside a group in favour of records carrying
	// more of these semantic flags.
	PreferFlags []string
}

func (p Policy) normalized() Policy {
	if p.MaxPerEntity <= 0 {
		p.MaxPerEntity = 2
	}
	if p.MaxTotal <= 0 {
		p.MaxTotal = 10
	}
	return p
}

type entityGroup struct {
	key     string
	members []domain.Candidate
}

// Selector spreads the final context across institutions so that no single RPPS can
// monopolize it.
type Selector struct {
	matcher *entity.Matcher
	scorer  *TemporalScorer
}

func NewSelector(matcher *entity.Matcher, scorer *TemporalScorer) *Selector {
	return &Selector{
		matcher: matcher,
		scorer:  scorer,
	}
}

func (s *Selector) Select(candidates []domain.Candidate, policy Policy) []domain.DocumentRecord {
	if len(candidates) == 0 {
		return nil
	}
	policy = policy.normalized()

	groups, unresolved := s.group(candidates)
	if len(groups) == 0 {
		if policy.FallbackTopN <= 0 {
			return nil
		}
		return topN(candidates, min(policy.FallbackTopN, policy.MaxTotal))
	}

	if policy.Order == OrderShuffle && policy.Rand != nil {
		policy.Rand.Shuffle(len(groups), func(i, j int) {
			groups[i], groups[j] = groups[j], groups[i]
		})
	}
	if policy.IncludeUnresolved && len(unresolved.members) > 0 {
		groups = insertByRank(groups, unresolved, policy.Order == OrderShuffle)
	}

	out := make([]domain.DocumentRecord, 0, policy.MaxTotal)
	for _, g := range groups {
		sortGroup(g.members, policy.PreferFlags)
		for i, c := range g.members {
			if i >= policy.MaxPerEntity || len(out) >= policy.MaxTotal {
				break
			}
			out = append(out, c.Record)
		}
		if len(out) >= policy.MaxTotal {
			break
		}
	}
	return out
}

// group clusters candidates by the first resolved entity of each record. Groups are
// returned in order of first appearance.
func (s *Selector) group(candidates []domain.Candidate) ([]*entityGroup, *entityGroup) {
	var (
		groups     []*entityGroup
		keys       []string
		unresolved = &entityGroup{}
	)
	for _, c := range candidates {
		c.Temporal = s.scorer.Score(c.Record)

		key, ok := s.resolve(c.Record, keys)
		if key == "" {
			unresolved.members = append(unresolved.members, c)
			continue
		}
		c.Entity = key
		if ok {
			for _, g := range groups {
				if g.key == key {
					g.members = append(g.members, c)
					break
				}
			}
			continue
		}
		keys = append(keys, key)
		groups = append(groups, &entityGroup{key: key, members: []domain.Candidate{c}})
	}
	return groups, unresolved
}

func (s *Selector) resolve(record domain.DocumentRecord, keys []string) (string, bool) {
	for _, name := range record.Entities {
		if key, ok := s.matcher.Resolve(name, keys); key != "" {
			return key, ok
		}
	}
	return "", false
}

func sortGroup(members []domain.Candidate, prefer []string) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.Temporal != b.Temporal {
			return a.Temporal > b.Temporal
		}
		if a.Record.Year != b.Record.Year {
			return a.Record.Year > b.Record.Year
		}
		if a.Record.Month != b.Record.Month {
			return a.Record.Month > b.Record.Month
		}
		if fa, fb := flagHits(a.Record, prefer), flagHits(b.Record, prefer); fa != fb {
			return fa > fb
		}
		return a.Rank < b.Rank
	})
}

func flagHits(doc domain.DocumentRecord, flags []string) int {
	n := 0
	for _, f := range flags {
		if doc.HasFlag(f) {
			n++
		}
	}
	return n
}

// insertByRank places the unresolved bucket where its best candidate ranked. With
// shuffled groups it goes last.
func insertByRank(groups []*entityGroup, bucket *entityGroup, shuffled bool) []*entityGroup {
	if shuffled {
		return append(groups, bucket)
	}
	best := bucket.members[0].Rank
	for i, g := range groups {
		if g.members[0].Rank > best {
			groups = append(groups[:i+1], groups[i:]...)
			groups[i] = bucket
			return groups
		}
	}
	return append(groups, bucket)
}

func topN(candidates []domain.Candidate, n int) []domain.DocumentRecord {
	ordered := make([]domain.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})
	if n > len(ordered) {
		n = len(ordered)
	}
	out := make([]domain.DocumentRecord, 0, n)
	for _, c := range ordered[:n] {
		out = append(out, c.Record)
	}
	return out
}
