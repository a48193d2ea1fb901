package domain

import "fmt"

// DocumentClass is the categorical tag of a minute.
type DocumentClass string

const (
	ClassInvestmentCommittee DocumentClass = "comite_investimentos"
	ClassFiscalCouncil       DocumentClass = "conselho_fiscal"
	ClassDeliberativeCouncil DocumentClass = "conselho_deliberativo"
	ClassOther               DocumentClass = "outro"
)

// Semantic flag keys derived from keyword presence.
const (
	FlagInvestment   = "investimento"
	FlagFixedIncome  = "renda_fixa"
	FlagManagerCheck = "credenciamento"
	FlagPerformance  = "desempenho"
	FlagParticipants = "participantes"
)

// MaxStoredTextChars bounds DocumentRecord.Text.
const MaxStoredTextChars = 8000

// DocumentRecord is one indexed unit of minute text. Records are built offline and
// never mutated while serving.
type DocumentRecord struct {
	ID       string          `json:"id"`
	Path     string          `json:"path"`
	Text     string          `json:"text,omitempty"`
	Entities []string        `json:"rpps,omitempty"`
	Manager  string          `json:"gestor,omitempty"`
	Year     int             `json:"ano,omitempty"`
	Month    int             `json:"mes,omitempty"`
	Class    DocumentClass   `json:"tipo,omitempty"`
	Flags    map[string]bool `json:"flags,omitempty"`
}

// Key returns the stable identity of the record.
func (d DocumentRecord) Key() string {
	if d.ID != "" {
		return d.ID
	}
	return d.Path
}

// Dated reports whether the record carries a year.
func (d DocumentRecord) Dated() bool {
	return d.Year > 0
}

// DateLabel renders the record date as MM/YYYY, YYYY or "sem data".
func (d DocumentRecord) DateLabel() string {
	switch {
	case d.Year > 0 && d.Month >= 1 && d.Month <= 12:
		return fmt.Sprintf("%02d/%d", d.Month, d.Year)
	case d.Year > 0:
		return fmt.Sprintf("%d", d.Year)
	default:
		return "sem data"
	}
}

// PrimaryEntity returns the first canonical entity or "".
func (d DocumentRecord) PrimaryEntity() string {
	if len(d.Entities) == 0 {
		return ""
	}
	return d.Entities[0]
}

// HasFlag reports a semantic flag.
func (d DocumentRecord) HasFlag(flag string) bool {
	return d.Flags[flag]
}
