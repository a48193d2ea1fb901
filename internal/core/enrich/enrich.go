// Package enrich derives the searchable metadata of a minute from its path and text.
package enrich

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/entity"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/intent"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/rules"
)

// dateProbeChars bounds how much of the text is searched for a date when the path has none.
const dateProbeChars = 600

type classKeywords struct {
	class    domain.DocumentClass
	keywords []string
}

type Enricher struct {
	extractor *entity.Extractor
	classes   []classKeywords
	flags     map[string][]string
	managers  []*regexp.Regexp
}

func NewEnricher(r rules.DocumentRules, extractor *entity.Extractor) (*Enricher, error) {
	managers, err := rules.CompileAll(r.ManagerPatterns)
	if err != nil {
		return nil, err
	}
	e := &Enricher{
		extractor: extractor,
		flags:     make(map[string][]string, len(r.Flags)),
		managers:  managers,
	}
	for _, c := range r.Classes {
		e.classes = append(e.classes, classKeywords{
			class:    domain.DocumentClass(c.Class),
			keywords: foldKeywords(c.Keywords),
		})
	}
	for flag, keywords := range r.Flags {
		e.flags[flag] = foldKeywords(keywords)
	}
	return e, nil
}

// Enrich fills the derived fields a record is missing. Fields that are already set are
// kept, except Entities which are re-validated.
func (e *Enricher) Enrich(doc domain.DocumentRecord) domain.DocumentRecord {
	doc.Text = Truncate(doc.Text, domain.MaxStoredTextChars)
	lower := strings.Join(strings.Fields(entity.FoldLower(doc.Path+" "+doc.Text)), " ")

	entities := e.extractor.CleanEntities(doc.Entities)
	if len(entities) == 0 {
		entities = e.extractor.Mentions(doc.Text)
	}
	doc.Entities = entities

	if doc.Year == 0 {
		doc.Year, doc.Month = e.date(doc)
	}
	if doc.Class == "" {
		doc.Class = e.classify(lower)
	}
	if doc.Flags == nil {
		doc.Flags = e.detectFlags(lower)
	}
	if doc.Manager == "" {
		doc.Manager = e.manager(doc.Text)
	}
	return doc
}

func (e *Enricher) date(doc domain.DocumentRecord) (int, int) {
	if year, month := intent.ExtractYearMonth(doc.Path); year > 0 {
		return year, month
	}
	return intent.ExtractYearMonth(Truncate(doc.Text, dateProbeChars))
}

func (e *Enricher) classify(lower string) domain.DocumentClass {
	for _, c := range e.classes {
		if containsAny(lower, c.keywords) {
			return c.class
		}
	}
	return domain.ClassOther
}

func (e *Enricher) detectFlags(lower string) map[string]bool {
	flags := make(map[string]bool, len(e.flags))
	for flag, keywords := range e.flags {
		flags[flag] = containsAny(lower, keywords)
	}
	return flags
}

func (e *Enricher) manager(text string) string {
	upper := entity.FoldUpper(text)
	for _, re := range e.managers {
		if m := re.FindStringSubmatch(upper); len(m) > 1 {
			if name := strings.Join(strings.Fields(m[1]), " "); name != "" {
				return name
			}
		}
	}
	return ""
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
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

func foldKeywords(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if k := strings.TrimSpace(entity.FoldLower(item)); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
