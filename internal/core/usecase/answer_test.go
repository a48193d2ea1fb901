package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/entity"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/intent"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/rules"
)

type answerHarness struct {
	uc        *AnswerUseCase
	embedder  *embedderFake
	index     *indexFake
	completer *completerFake
}

func newAnswerHarness(t *testing.T, records []domain.DocumentRecord) *answerHarness {
	t.Helper()
	r := rules.Default()
	matcher := entity.NewMatcher(r.Entity)
	extractor, err := entity.NewExtractor(r.Entity, matcher)
	if err != nil {
		t.Fatalf("NewExtractor() error = %v", err)
	}

	store := &storeFake{records: records}
	h := &answerHarness{
		embedder:  &embedderFake{},
		index:     &indexFake{size: len(records)},
		completer: &completerFake{response: "  resposta do modelo \n"},
	}
	h.uc = NewAnswerUseCase(AnswerDeps{
		Classifier: intent.NewClassifier(r.Intent),
		Retriever:  NewRetriever(h.embedder, h.index, store),
		Selector:   NewSelector(matcher, NewTemporalScorer(fixedClock)),
		Assembler:  NewAssembler(20000),
		Matcher:    matcher,
		Extractor:  extractor,
		Store:      store,
		Completer:  h.completer,
		Expansion:  r.Intent.AnalyticalExpansion,
		NewRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(1, 2))
		},
	}, domain.AnswerLimits{})
	return h
}

func threeEntityCorpus(n int) []domain.DocumentRecord {
	names := []string{entitySaoCarlos, entityCampinas, entityItu}
	out := make([]domain.DocumentRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, doc(fmt.Sprintf("d%02d", i), 2020+i%5, 1+i%12, names[i%3]))
	}
	return out
}

func TestAskEntityLookupListsWithoutCompletion(t *testing.T) {
	records := []domain.DocumentRecord{
		doc("a", 2023, 4, entitySaoCarlos),
		doc("b", 2022, 1, entityCampinas),
	}
	records[0].Manager = "FULANO DE TAL"
	h := newAnswerHarness(t, records)

	got := h.uc.Ask(context.Background(), "Quem é o gestor Fulano de Tal?")
	if got.Intent != domain.IntentEntityLookup || got.Outcome != domain.OutcomeListed {
		t.Fatalf("unexpected route %s/%s", got.Intent, got.Outcome)
	}
	if !strings.Contains(got.Text, entitySaoCarlos) || !strings.Contains(got.Text, "04/2023") {
		t.Fatalf("expected listing of matching record, got %q", got.Text)
	}
	if strings.Contains(got.Text, entityCampinas) {
		t.Fatalf("listing contains unrelated record: %q", got.Text)
	}
	if h.completer.calls != 0 || h.embedder.calls != 0 {
		t.Fatalf("lookup must not retrieve or complete (embed=%d complete=%d)", h.embedder.calls, h.completer.calls)
	}
}

func TestAskEntityLookupNoMatch(t *testing.T) {
	h := newAnswerHarness(t, []domain.DocumentRecord{doc("a", 2023, 4, entitySaoCarlos)})

	got := h.uc.Ask(context.Background(), "quem é a gestora Ciclano Beltrano")
	if got.Outcome != domain.OutcomeNoEntity {
		t.Fatalf("expected no_entity outcome, got %s: %q", got.Outcome, got.Text)
	}
	if !strings.Contains(got.Text, "ciclano beltrano") {
		t.Fatalf("expected party in message, got %q", got.Text)
	}
	if h.completer.calls != 0 {
		t.Fatalf("completion must not be called")
	}
}

func TestAskAnalyticalOpenIsDiversified(t *testing.T) {
	h := newAnswerHarness(t, threeEntityCorpus(50))

	got := h.uc.Ask(context.Background(), "Quais RPPS fizeram credenciamento de gestores?")
	if got.Intent != domain.IntentAnalytical || got.Outcome != domain.OutcomeAnswered {
		t.Fatalf("unexpected route %s/%s", got.Intent, got.Outcome)
	}
	if got.Selected != 6 {
		t.Fatalf("expected 6 selected documents, got %d", got.Selected)
	}
	if got.Text != "resposta do modelo" {
		t.Fatalf("expected trimmed completion, got %q", got.Text)
	}
	if h.index.k != 50 {
		t.Fatalf("expected analytical candidate pool of 50, got %d", h.index.k)
	}
	if !strings.Contains(h.embedder.texts[0], "credenciamento") || len(h.embedder.texts[0]) <= len("Quais RPPS fizeram credenciamento de gestores?") {
		t.Fatalf("expected expanded analytical query, got %q", h.embedder.texts[0])
	}
	if h.completer.system != systemInstruction || h.completer.maxTokens != 600 {
		t.Fatalf("unexpected completion call %q / %d", h.completer.system, h.completer.maxTokens)
	}
	if !strings.Contains(h.completer.user, "[DOCUMENTOS]") || !strings.Contains(h.completer.user, "[PERGUNTA]") {
		t.Fatalf("unexpected prompt layout %q", h.completer.user)
	}
}

func TestAskAnalyticalFocusedKeepsNamedEntity(t *testing.T) {
	h := newAnswerHarness(t, threeEntityCorpus(30))

	got := h.uc.Ask(context.Background(), "Como o IPREV São Carlos decidiu sobre renda fixa?")
	if got.Intent != domain.IntentAnalytical || got.Outcome != domain.OutcomeAnswered {
		t.Fatalf("unexpected route %s/%s", got.Intent, got.Outcome)
	}
	if got.Selected != 2 {
		t.Fatalf("expected the per-entity cap for the named entity, got %d", got.Selected)
	}
	if strings.Contains(h.completer.user, entityCampinas) || strings.Contains(h.completer.user, entityItu) {
		t.Fatalf("prompt contains other entities: %q", h.completer.user)
	}
}

func TestAskAnalyticalWithoutAttributableEvidence(t *testing.T) {
	h := newAnswerHarness(t, []domain.DocumentRecord{doc("u1", 2024, 1), doc("u2", 2023, 1)})

	got := h.uc.Ask(context.Background(), "Como foi a alocação em renda fixa?")
	if got.Outcome != domain.OutcomeNoEvidence || got.Text != msgNoEvidence {
		t.Fatalf("expected no evidence message, got %s: %q", got.Outcome, got.Text)
	}
	if h.completer.calls != 0 {
		t.Fatalf("completion must not be called")
	}
}

func TestAskSummaryForPeriodWithoutMinutes(t *testing.T) {
	h := newAnswerHarness(t, []domain.DocumentRecord{doc("a", 2021, 3, entitySaoCarlos)})

	got := h.uc.Ask(context.Background(), "resuma as atas de 2023")
	if got.Intent != domain.IntentSummary || got.Outcome != domain.OutcomeNoPeriod {
		t.Fatalf("unexpected route %s/%s", got.Intent, got.Outcome)
	}
	if !strings.Contains(got.Text, "2023") {
		t.Fatalf("expected period in message, got %q", got.Text)
	}
	if h.completer.calls != 0 || h.embedder.calls != 0 {
		t.Fatalf("no retrieval or completion expected")
	}
}

func TestAskSummaryScopedToWindow(t *testing.T) {
	records := []domain.DocumentRecord{
		doc("old", 2021, 3, entitySaoCarlos),
		doc("in1", 2023, 5, entityCampinas),
		doc("in2", 2023, 8, entityItu),
	}
	h := newAnswerHarness(t, records)

	got := h.uc.Ask(context.Background(), "resuma as atas de 2023")
	if got.Outcome != domain.OutcomeAnswered {
		t.Fatalf("unexpected outcome %s: %q", got.Outcome, got.Text)
	}
	if got.Selected != 2 {
		t.Fatalf("expected 2 documents in window, got %d", got.Selected)
	}
	for _, src := range got.Sources {
		if src == "old" {
			t.Fatalf("out-of-window document selected: %v", got.Sources)
		}
	}
}

func TestAskDefaultRoute(t *testing.T) {
	h := newAnswerHarness(t, []domain.DocumentRecord{
		doc("a", 2024, 1, entitySaoCarlos),
		doc("u", 2024, 2),
	})

	got := h.uc.Ask(context.Background(), "O que aconteceu na última reunião?")
	if got.Intent != domain.IntentDefault || got.Outcome != domain.OutcomeAnswered {
		t.Fatalf("unexpected route %s/%s", got.Intent, got.Outcome)
	}
	if got.Selected != 2 {
		t.Fatalf("expected generic context to be kept, got %d", got.Selected)
	}
	if !strings.Contains(h.completer.user, "não identificado") {
		t.Fatalf("expected unresolved label in prompt %q", h.completer.user)
	}
}

func TestAskRetrievalFailureApologizes(t *testing.T) {
	h := newAnswerHarness(t, []domain.DocumentRecord{doc("a", 2024, 1, entitySaoCarlos)})
	h.embedder.err = errBoom

	got := h.uc.Ask(context.Background(), "O que aconteceu?")
	if got.Outcome != domain.OutcomeFailed || !strings.HasPrefix(got.Text, "⚠ Erro ao buscar documentos") {
		t.Fatalf("unexpected answer %s: %q", got.Outcome, got.Text)
	}
	if !strings.Contains(got.Text, "boom") {
		t.Fatalf("expected cause in apology, got %q", got.Text)
	}
}

func TestAskCompletionFailureApologizes(t *testing.T) {
	h := newAnswerHarness(t, []domain.DocumentRecord{doc("a", 2024, 1, entitySaoCarlos)})
	h.completer.err = errBoom

	got := h.uc.Ask(context.Background(), "O que aconteceu?")
	if got.Text != "⚠ Erro ao consultar o modelo: boom" || got.Outcome != domain.OutcomeFailed {
		t.Fatalf("unexpected answer %s: %q", got.Outcome, got.Text)
	}
}

func TestAskNoCandidates(t *testing.T) {
	h := newAnswerHarness(t, nil)

	got := h.uc.Ask(context.Background(), "O que aconteceu?")
	if got.Outcome != domain.OutcomeNoCandidates || got.Text != msgNoCandidates {
		t.Fatalf("unexpected answer %s: %q", got.Outcome, got.Text)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	h := newAnswerHarness(t, nil)
	if got := h.uc.Ask(context.Background(), "   "); got.Text != msgEmptyQuestion {
		t.Fatalf("unexpected answer %q", got.Text)
	}
}
