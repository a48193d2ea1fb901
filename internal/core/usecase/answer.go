package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/entity"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/intent"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/ports"
)

// AnswerDeps are the collaborators of AnswerUseCase. All of them are shared read-only
// across requests.
type AnswerDeps struct {
	Classifier *intent.Classifier
	Retriever  *Retriever
	Selector   *Selector
	Assembler  *Assembler
	Matcher    *entity.Matcher
	Extractor  *entity.Extractor
	Store      ports.MetadataStore
	Completer  ports.Completer
	// Expansion is appended to analytical queries before embedding.
	Expansion string
	// NewRand returns a fresh random source for one request.
	NewRand func() *rand.Rand
}

// analyticalFlags favour investment and manager-selection minutes within an entity.
var analyticalFlags = []string{domain.FlagInvestment, domain.FlagManagerCheck}

// AnswerUseCase routes a question through the intent-specific pipeline.
type AnswerUseCase struct {
	deps   AnswerDeps
	limits domain.AnswerLimits
}

func NewAnswerUseCase(deps AnswerDeps, limits domain.AnswerLimits) *AnswerUseCase {
	if deps.NewRand == nil {
		deps.NewRand = func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	if limits.TopK <= 0 {
		limits.TopK = 8
	}
	if limits.AnalyticalCandidates <= 0 {
		limits.AnalyticalCandidates = 50
	}
	if limits.SummaryCandidates <= 0 {
		limits.SummaryCandidates = 20
	}
	if limits.MaxPerEntity <= 0 {
		limits.MaxPerEntity = 2
	}
	if limits.MaxTotal <= 0 {
		limits.MaxTotal = 8
	}
	if limits.AnalyticalMaxPerEntity <= 0 {
		limits.AnalyticalMaxPerEntity = 2
	}
	if limits.AnalyticalMaxTotal <= 0 {
		limits.AnalyticalMaxTotal = 40
	}
	if limits.DocCharLimit <= 0 {
		limits.DocCharLimit = 3000
	}
	if limits.AnalyticalDocCharLimit <= 0 {
		limits.AnalyticalDocCharLimit = 1200
	}
	if limits.LookupLimit <= 0 {
		limits.LookupLimit = 20
	}
	if limits.MaxTokens <= 0 {
		limits.MaxTokens = 600
	}
	if limits.CompletionTimeout <= 0 {
		limits.CompletionTimeout = 60 * time.Second
	}
	return &AnswerUseCase{deps: deps, limits: limits}
}

func (uc *AnswerUseCase) Ask(ctx context.Context, question string) domain.Answer {
	started := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{Text: msgEmptyQuestion, Intent: domain.IntentDefault, Outcome: domain.OutcomeNoCandidates}
	}

	q := uc.deps.Classifier.Classify(question)

	var answer domain.Answer
	switch q.Intent {
	case domain.IntentEntityLookup:
		answer = uc.lookup(q)
	case domain.IntentAnalytical:
		answer = uc.analytical(ctx, q)
	case domain.IntentSummary:
		answer = uc.summary(ctx, q)
	default:
		answer = uc.general(ctx, q)
	}
	answer.Intent = q.Intent

	slog.Info("answer_routed",
		"intent", q.Intent,
		"outcome", answer.Outcome,
		"party", q.Party,
		"window", q.Window.String(),
		"selected", answer.Selected,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return answer
}

// lookup lists records whose manager or entity matches the requested party. It never
// calls completion.
func (uc *AnswerUseCase) lookup(q domain.Query) domain.Answer {
	party := strings.TrimSpace(q.Party)
	if party == "" {
		return domain.Answer{Text: fmt.Sprintf(msgNoEntityFormat, q.Raw), Outcome: domain.OutcomeNoEntity}
	}

	var matches []domain.DocumentRecord
	seen := make(map[string]struct{})
	for _, doc := range uc.deps.Store.All() {
		if !uc.partyMatches(party, doc) {
			continue
		}
		if _, ok := seen[doc.Key()]; ok {
			continue
		}
		seen[doc.Key()] = struct{}{}
		matches = append(matches, doc)
	}
	if len(matches) == 0 {
		return domain.Answer{Text: fmt.Sprintf(msgNoEntityFormat, party), Outcome: domain.OutcomeNoEntity}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Year != matches[j].Year {
			return matches[i].Year > matches[j].Year
		}
		return matches[i].Month > matches[j].Month
	})

	lines := []string{fmt.Sprintf(msgListedFormat, party)}
	shown := matches
	if len(shown) > uc.limits.LookupLimit {
		shown = shown[:uc.limits.LookupLimit]
	}
	for _, doc := range shown {
		lines = append(lines, formatListing(doc))
	}
	if rest := len(matches) - len(shown); rest > 0 {
		lines = append(lines, fmt.Sprintf("... e mais %d registro(s).", rest))
	}
	return domain.Answer{
		Text:     strings.Join(lines, "\n"),
		Outcome:  domain.OutcomeListed,
		Sources:  sourceKeys(shown),
		Selected: len(shown),
	}
}

func (uc *AnswerUseCase) partyMatches(party string, doc domain.DocumentRecord) bool {
	if doc.Manager != "" && uc.deps.Matcher.IsSameEntity(party, doc.Manager) {
		return true
	}
	return uc.deps.Matcher.MatchesAny(party, doc.Entities)
}

func formatListing(doc domain.DocumentRecord) string {
	label := unresolvedLabel
	if len(doc.Entities) > 0 {
		label = strings.Join(doc.Entities, ", ")
	}
	line := fmt.Sprintf("- %s | %s", label, doc.DateLabel())
	if doc.Manager != "" {
		line += " | gestor: " + doc.Manager
	}
	return line + " | " + filepath.Base(doc.Path)
}

func (uc *AnswerUseCase) analytical(ctx context.Context, q domain.Query) domain.Answer {
	text := q.Raw
	if uc.deps.Expansion != "" {
		text += " " + uc.deps.Expansion
	}
	candidates, err := uc.deps.Retriever.Retrieve(ctx, text, uc.limits.AnalyticalCandidates)
	if err != nil {
		return retrievalFailure(err)
	}
	if len(candidates) == 0 {
		return domain.Answer{Text: msgNoCandidates, Outcome: domain.OutcomeNoCandidates}
	}

	policy := Policy{
		MaxPerEntity: uc.limits.AnalyticalMaxPerEntity,
		MaxTotal:     uc.limits.AnalyticalMaxTotal,
		Order:        OrderShuffle,
		Rand:         uc.deps.NewRand(),
		PreferFlags:  analyticalFlags,
	}
	if named := uc.deps.Extractor.Mentions(q.Raw); len(named) > 0 {
		candidates = uc.filterNamed(candidates, named)
		policy.Order = OrderRank
		policy.Rand = nil
	}

	selected := uc.deps.Selector.Select(candidates, policy)
	if len(selected) == 0 {
		return domain.Answer{Text: msgNoEvidence, Outcome: domain.OutcomeNoEvidence}
	}
	block := uc.deps.Assembler.Assemble(selected, uc.limits.AnalyticalDocCharLimit)
	return uc.complete(ctx, instructionAnalytical, block, q.Raw, selected)
}

// filterNamed keeps candidates attributed to one of the entities the question names.
func (uc *AnswerUseCase) filterNamed(candidates []domain.Candidate, named []string) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		for _, name := range named {
			if uc.deps.Matcher.MatchesAny(name, c.Record.Entities) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (uc *AnswerUseCase) summary(ctx context.Context, q domain.Query) domain.Answer {
	var candidates []domain.Candidate
	if !q.Window.IsZero() {
		inWindow := uc.recordsInWindow(q.Window)
		if len(inWindow) == 0 {
			return domain.Answer{Text: fmt.Sprintf(msgNoPeriodFormat, q.Window), Outcome: domain.OutcomeNoPeriod}
		}
		retrieved, err := uc.deps.Retriever.Retrieve(ctx, q.Raw, uc.limits.SummaryCandidates)
		if err != nil {
			return retrievalFailure(err)
		}
		candidates = filterWindow(retrieved, q.Window)
		if len(candidates) == 0 {
			candidates = byRecency(inWindow)
		}
	} else {
		retrieved, err := uc.deps.Retriever.Retrieve(ctx, q.Raw, uc.limits.SummaryCandidates)
		if err != nil {
			return retrievalFailure(err)
		}
		candidates = retrieved
	}
	if len(candidates) == 0 {
		return domain.Answer{Text: msgNoCandidates, Outcome: domain.OutcomeNoCandidates}
	}

	selected := uc.deps.Selector.Select(candidates, uc.genericPolicy())
	block := uc.deps.Assembler.Assemble(selected, uc.limits.DocCharLimit)
	return uc.complete(ctx, instructionSummary, block, q.Raw, selected)
}

func (uc *AnswerUseCase) general(ctx context.Context, q domain.Query) domain.Answer {
	candidates, err := uc.deps.Retriever.Retrieve(ctx, q.Raw, uc.limits.TopK)
	if err != nil {
		return retrievalFailure(err)
	}
	if len(candidates) == 0 {
		return domain.Answer{Text: msgNoCandidates, Outcome: domain.OutcomeNoCandidates}
	}
	if !q.Window.IsZero() {
		if scoped := filterWindow(candidates, q.Window); len(scoped) > 0 {
			candidates = scoped
		}
	}

	selected := uc.deps.Selector.Select(candidates, uc.genericPolicy())
	block := uc.deps.Assembler.Assemble(selected, uc.limits.DocCharLimit)
	return uc.complete(ctx, instructionDefault, block, q.Raw, selected)
}

func (uc *AnswerUseCase) genericPolicy() Policy {
	return Policy{
		MaxPerEntity:      uc.limits.MaxPerEntity,
		MaxTotal:          uc.limits.MaxTotal,
		Order:             OrderRank,
		IncludeUnresolved: true,
		FallbackTopN:      uc.limits.MaxTotal,
	}
}

func (uc *AnswerUseCase) complete(
	ctx context.Context,
	instruction string,
	block string,
	question string,
	selected []domain.DocumentRecord,
) domain.Answer {
	ctx, cancel := context.WithTimeout(ctx, uc.limits.CompletionTimeout)
	defer cancel()

	prompt := buildUserPrompt(instruction, block, question)
	text, err := uc.deps.Completer.Complete(ctx, systemInstruction, prompt, uc.limits.MaxTokens)
	if err != nil {
		slog.Warn("completion_failed", "error", err.Error(), "selected", len(selected))
		return domain.Answer{
			Text:     fmt.Sprintf(msgCompletionFmt, err),
			Outcome:  domain.OutcomeFailed,
			Sources:  sourceKeys(selected),
			Selected: len(selected),
		}
	}
	text = strings.TrimSpace(text)
	outcome := domain.OutcomeAnswered
	if text == "" {
		text = msgEmptyCompletion
		outcome = domain.OutcomeFailed
	}
	return domain.Answer{
		Text:     text,
		Outcome:  outcome,
		Sources:  sourceKeys(selected),
		Selected: len(selected),
	}
}

func (uc *AnswerUseCase) recordsInWindow(w domain.DateWindow) []domain.DocumentRecord {
	var out []domain.DocumentRecord
	for _, doc := range uc.deps.Store.All() {
		if w.Contains(doc) {
			out = append(out, doc)
		}
	}
	return out
}

func filterWindow(candidates []domain.Candidate, w domain.DateWindow) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if w.Contains(c.Record) {
			out = append(out, c)
		}
	}
	return out
}

// byRecency turns window records into candidates ranked newest first.
func byRecency(docs []domain.DocumentRecord) []domain.Candidate {
	ordered := make([]domain.DocumentRecord, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Year != ordered[j].Year {
			return ordered[i].Year > ordered[j].Year
		}
		return ordered[i].Month > ordered[j].Month
	})
	out := make([]domain.Candidate, 0, len(ordered))
	for i, doc := range ordered {
		out = append(out, domain.Candidate{Record: doc, Rank: i})
	}
	return out
}

func retrievalFailure(err error) domain.Answer {
	slog.Warn("retrieval_failed", "error", err.Error())
	return domain.Answer{Text: fmt.Sprintf(msgRetrievalFormat, err), Outcome: domain.OutcomeFailed}
}

func sourceKeys(docs []domain.DocumentRecord) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Key())
	}
	return out
}
