// Package rules holds the declarative keyword and pattern tables that drive entity
// resolution, intent routing and metadata enrichment.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

type EntityRules struct {
	SimilarityThreshold int      `yaml:"similarity_threshold"`
	AnchorMinLen        int      `yaml:"anchor_min_len"`
	AnchorMaxLen        int      `yaml:"anchor_max_len"`
	AnchorPrefixes      []string `yaml:"anchor_prefixes"`
	Denylist            []string `yaml:"denylist"`
	EdgeConnectors      []string `yaml:"edge_connectors"`
	MentionPatterns     []string `yaml:"mention_patterns"`
	RequiredMarkers     []string `yaml:"required_markers"`
	MinMentionLength    int      `yaml:"min_mention_length"`
	BankTerms           []string `yaml:"bank_terms"`
	InvalidPhrases      []string `yaml:"invalid_phrases"`
}

type IntentRules struct {
	RoleWords           []string `yaml:"role_words"`
	LeadingConnectors   []string `yaml:"leading_connectors"`
	Analytical          []string `yaml:"analytical"`
	Summary             []string `yaml:"summary"`
	AnalyticalExpansion string   `yaml:"analytical_expansion"`
}

type ClassRule struct {
	Class    string   `yaml:"class"`
	Keywords []string `yaml:"keywords"`
}

type DocumentRules struct {
	Classes         []ClassRule         `yaml:"classes"`
	Flags           map[string][]string `yaml:"flags"`
	ManagerPatterns []string            `yaml:"manager_patterns"`
}

// Rules is the full heuristic configuration. It is read-only after Load.
type Rules struct {
	Entity    EntityRules   `yaml:"entity"`
	Intent    IntentRules   `yaml:"intent"`
	Documents DocumentRules `yaml:"documents"`
}

// Default returns the embedded rule set.
func Default() *Rules {
	r, err := parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return r
}

// Load reads an override file. An empty path yields the embedded defaults; sections
// missing from the file keep their default values.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return parseOver(Default(), raw)
}

func parse(raw []byte) (*Rules, error) {
	return parseOver(&Rules{}, raw)
}

func parseOver(base *Rules, raw []byte) (*Rules, error) {
	out := *base
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate checks thresholds and compiles every pattern once.
func (r *Rules) Validate() error {
	if r.Entity.SimilarityThreshold <= 0 || r.Entity.SimilarityThreshold > 100 {
		return fmt.Errorf("rules: similarity_threshold must be in 1..100, got %d", r.Entity.SimilarityThreshold)
	}
	if r.Entity.AnchorMinLen <= 0 || r.Entity.AnchorMaxLen < r.Entity.AnchorMinLen {
		return fmt.Errorf("rules: invalid anchor length bounds %d..%d", r.Entity.AnchorMinLen, r.Entity.AnchorMaxLen)
	}
	if len(r.Entity.AnchorPrefixes) == 0 {
		return errors.New("rules: anchor_prefixes is empty")
	}
	for _, group := range [][]string{r.Entity.MentionPatterns, r.Documents.ManagerPatterns} {
		if _, err := CompileAll(group); err != nil {
			return err
		}
	}
	return nil
}

// CompileAll compiles a list of patterns, failing on the first bad one.
func CompileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("rules: compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
