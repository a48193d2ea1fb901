package usecase

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

const (
	entitySaoCarlos = "SAO CARLOS IPREV"
	entityCampinas  = "CAMPINAS IPREMC"
	entityItu       = "ITU PREV MUNICIPAL"
)

func ids(docs []domain.DocumentRecord) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestSelectCapsPerEntityAndTotal(t *testing.T) {
	names := []string{entitySaoCarlos, entityCampinas, entityItu}
	docs := make([]domain.DocumentRecord, 0, 50)
	for i := 0; i < 50; i++ {
		docs = append(docs, doc(fmt.Sprintf("d%02d", i), 2015+i%10, 1+i%12, names[i%3]))
	}

	got := newTestSelector().Select(candidates(docs...), Policy{
		MaxPerEntity: 2,
		MaxTotal:     40,
		Order:        OrderShuffle,
		Rand:         rand.New(rand.NewPCG(7, 11)),
	})
	if len(got) != 6 {
		t.Fatalf("expected 6 documents, got %d: %v", len(got), ids(got))
	}
	perEntity := map[string]int{}
	for _, d := range got {
		perEntity[d.Entities[0]]++
	}
	for name, n := range perEntity {
		if n > 2 {
			t.Fatalf("entity %s contributed %d documents", name, n)
		}
	}
	if len(perEntity) != 3 {
		t.Fatalf("expected all three entities represented, got %v", perEntity)
	}
}

func TestSelectMaxTotalTruncates(t *testing.T) {
	got := newTestSelector().Select(candidates(
		doc("a1", 2024, 1, entitySaoCarlos),
		doc("b1", 2024, 1, entityCampinas),
		doc("c1", 2024, 1, entityItu),
		doc("a2", 2023, 1, entitySaoCarlos),
	), Policy{MaxPerEntity: 2, MaxTotal: 3})

	if want := []string{"a1", "a2", "b1"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
}

func TestSelectOrdersGroupMembersByRecency(t *testing.T) {
	got := newTestSelector().Select(candidates(
		doc("old", 2015, 3, entitySaoCarlos),
		doc("new", 2024, 2, entitySaoCarlos),
		doc("mid", 2021, 7, entitySaoCarlos),
		doc("undated", 0, 0, entitySaoCarlos),
	), Policy{MaxPerEntity: 2, MaxTotal: 10})

	if want := []string{"new", "mid"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
}

func TestSelectPrefersFlaggedRecordsOnTies(t *testing.T) {
	plain := doc("plain", 2024, 3, entitySaoCarlos)
	credenciamento := doc("credenciamento", 2024, 3, entitySaoCarlos)
	credenciamento.Flags = map[string]bool{domain.FlagManagerCheck: true}
	both := doc("both", 2024, 3, entitySaoCarlos)
	both.Flags = map[string]bool{domain.FlagManagerCheck: true, domain.FlagInvestment: true}
	newer := doc("newer", 2024, 5, entitySaoCarlos)

	policy := Policy{
		MaxPerEntity: 3,
		MaxTotal:     10,
		PreferFlags:  []string{domain.FlagInvestment, domain.FlagManagerCheck},
	}
	got := newTestSelector().Select(candidates(plain, credenciamento, both, newer), policy)
	if want := []string{"newer", "both", "credenciamento"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}

	policy.PreferFlags = nil
	got = newTestSelector().Select(candidates(plain, credenciamento, both, newer), policy)
	if want := []string{"newer", "plain", "credenciamento"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("without preferred flags expected rank order %v, got %v", want, ids(got))
	}
}

func TestSelectGroupsSpellingVariants(t *testing.T) {
	got := newTestSelector().Select(candidates(
		doc("a1", 2024, 1, "IPREV São Carlos"),
		doc("a2", 2023, 1, "Instituto de Previdência de São Carlos - IPREV"),
		doc("a3", 2022, 1, "SAO CARLOS IPREV"),
		doc("b1", 2022, 1, entityCampinas),
	), Policy{MaxPerEntity: 2, MaxTotal: 10})

	if want := []string{"a1", "a2", "b1"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
}

func TestSelectPreservesRankOrderAcrossGroups(t *testing.T) {
	got := newTestSelector().Select(candidates(
		doc("b1", 2020, 1, entityCampinas),
		doc("a1", 2024, 1, entitySaoCarlos),
		doc("b2", 2024, 1, entityCampinas),
	), Policy{MaxPerEntity: 1, MaxTotal: 10})

	if want := []string{"b2", "a1"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
}

func TestSelectUnresolvedBucket(t *testing.T) {
	pool := candidates(
		doc("a1", 2024, 1, entitySaoCarlos),
		doc("u1", 2024, 1),
		doc("b1", 2024, 1, entityCampinas),
		doc("u2", 2023, 1),
		doc("u3", 2022, 1),
	)
	sel := newTestSelector()

	excluded := sel.Select(pool, Policy{MaxPerEntity: 2, MaxTotal: 10})
	if want := []string{"a1", "b1"}; !reflect.DeepEqual(ids(excluded), want) {
		t.Fatalf("expected %v, got %v", want, ids(excluded))
	}

	included := sel.Select(pool, Policy{MaxPerEntity: 2, MaxTotal: 10, IncludeUnresolved: true})
	if want := []string{"a1", "u1", "u2", "b1"}; !reflect.DeepEqual(ids(included), want) {
		t.Fatalf("expected %v, got %v", want, ids(included))
	}
}

func TestSelectNoResolvedEntities(t *testing.T) {
	pool := candidates(doc("u1", 2024, 1), doc("u2", 2023, 1), doc("u3", 2022, 1))
	sel := newTestSelector()

	if got := sel.Select(pool, Policy{MaxPerEntity: 2, MaxTotal: 10}); len(got) != 0 {
		t.Fatalf("expected empty selection without fallback, got %v", ids(got))
	}
	got := sel.Select(pool, Policy{MaxPerEntity: 1, MaxTotal: 10, FallbackTopN: 2})
	if want := []string{"u1", "u2"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected fallback %v, got %v", want, ids(got))
	}
}

func TestSelectNonEmptyWhenAnyEntityResolves(t *testing.T) {
	pool := candidates(doc("u1", 2024, 1), doc("a1", 2010, 1, entityItu))
	got := newTestSelector().Select(pool, Policy{MaxPerEntity: 1, MaxTotal: 1})
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("expected the resolved document, got %v", ids(got))
	}
}

func TestSelectShuffleIsDeterministicPerSeed(t *testing.T) {
	var docs []domain.DocumentRecord
	for i, name := range []string{entitySaoCarlos, entityCampinas, entityItu, "RIO CLARO FUNPREVRC", "IPMJ JUNDIAI"} {
		docs = append(docs, doc(fmt.Sprintf("d%d", i), 2024, 1, name))
	}
	sel := newTestSelector()
	policy := func(seed uint64) Policy {
		return Policy{MaxPerEntity: 1, MaxTotal: 10, Order: OrderShuffle, Rand: rand.New(rand.NewPCG(seed, seed))}
	}

	first := ids(sel.Select(candidates(docs...), policy(42)))
	second := ids(sel.Select(candidates(docs...), policy(42)))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected same order for the same seed: %v vs %v", first, second)
	}
	if len(first) != len(docs) {
		t.Fatalf("expected every group once, got %v", first)
	}
}

func TestSelectEmptyPool(t *testing.T) {
	if got := newTestSelector().Select(nil, Policy{FallbackTopN: 3}); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
