package domain

import (
	"fmt"
	"time"
)

// QueryIntent is the effective route of a question.
type QueryIntent string

const (
	IntentEntityLookup QueryIntent = "ENTITY_LOOKUP"
	IntentAnalytical   QueryIntent = "ANALYTICAL"
	IntentSummary      QueryIntent = "SUMMARY"
	IntentDefault      QueryIntent = "DEFAULT"
)

// DateWindow scopes retrieval to a year and optionally a month.
type DateWindow struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
}

// IsZero reports an absent window.
func (w DateWindow) IsZero() bool {
	return w.Year == 0
}

// Contains reports whether a record falls inside the window.
func (w DateWindow) Contains(doc DocumentRecord) bool {
	if w.IsZero() {
		return true
	}
	if doc.Year != w.Year {
		return false
	}
	return w.Month == 0 || doc.Month == w.Month
}

// String renders "2023" or "2023-05".
func (w DateWindow) String() string {
	if w.IsZero() {
		return ""
	}
	if w.Month == 0 {
		return fmt.Sprintf("%04d", w.Year)
	}
	return fmt.Sprintf("%04d-%02d", w.Year, w.Month)
}

// Query is the classified form of a raw question.
type Query struct {
	Raw        string      `json:"raw"`
	Normalized string      `json:"normalized"`
	Intent     QueryIntent `json:"intent"`
	Party      string      `json:"party,omitempty"`
	Window     DateWindow  `json:"window"`

	// Cue hits are kept independently; Intent is the resolved branch.
	HasRoleCue       bool `json:"has_role_cue"`
	HasAnalyticalCue bool `json:"has_analytical_cue"`
	HasSummaryCue    bool `json:"has_summary_cue"`
}

// IndexHit is one nearest-neighbour result from the vector index.
type IndexHit struct {
	Position int     `json:"position"`
	Distance float64 `json:"distance"`
}

// Candidate is a per-query projection of a DocumentRecord.
type Candidate struct {
	Record   DocumentRecord `json:"record"`
	Rank     int            `json:"rank"`
	Distance float64        `json:"distance"`
	Temporal int            `json:"temporal"`
	Entity   string         `json:"entity,omitempty"`
}

// Answer is the orchestrator result. Text is always user-presentable.
type Answer struct {
	Text     string      `json:"text"`
	Intent   QueryIntent `json:"intent"`
	Outcome  string      `json:"outcome"`
	Sources  []string    `json:"sources,omitempty"`
	Selected int         `json:"selected"`
}

// Answer outcomes.
const (
	OutcomeAnswered     = "answered"
	OutcomeListed       = "listed"
	OutcomeNoEvidence   = "no_evidence"
	OutcomeNoPeriod     = "no_period"
	OutcomeNoCandidates = "no_candidates"
	OutcomeNoEntity     = "no_entity"
	OutcomeFailed       = "failed"
)

// AnswerLimits bounds every stage of the answer pipeline.
type AnswerLimits struct {
	TopK                   int
	AnalyticalCandidates   int
	SummaryCandidates      int
	MaxPerEntity           int
	MaxTotal               int
	AnalyticalMaxPerEntity int
	AnalyticalMaxTotal     int
	DocCharLimit           int
	AnalyticalDocCharLimit int
	LookupLimit            int
	MaxTokens              int
	CompletionTimeout      time.Duration
}
