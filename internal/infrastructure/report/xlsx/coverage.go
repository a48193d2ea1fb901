// Package xlsx writes the entity coverage workbook produced by the indexer.
package xlsx

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

const (
	coverageSheet   = "Cobertura"
	unresolvedSheet = "Sem RPPS"
)

// EntityCoverage summarizes the records attributed to one canonical entity.
type EntityCoverage struct {
	Entity   string
	Records  int
	First    string
	Last     string
	Managers []string
	Classes  []string
}

// Coverage groups records by their primary entity. The second result lists the
// paths of records without any entity.
func Coverage(records []domain.DocumentRecord) ([]EntityCoverage, []string) {
	type acc struct {
		cov      EntityCoverage
		firstKey int
		lastKey  int
		managers map[string]struct{}
		classes  map[string]struct{}
		hasDate  bool
	}
	byEntity := make(map[string]*acc)
	var unresolved []string

	for _, rec := range records {
		name := rec.PrimaryEntity()
		if name == "" {
			unresolved = append(unresolved, rec.Path)
			continue
		}
		a, ok := byEntity[name]
		if !ok {
			a = &acc{
				cov:      EntityCoverage{Entity: name},
				managers: make(map[string]struct{}),
				classes:  make(map[string]struct{}),
			}
			byEntity[name] = a
		}
		a.cov.Records++
		if rec.Manager != "" {
			a.managers[rec.Manager] = struct{}{}
		}
		if rec.Class != "" {
			a.classes[string(rec.Class)] = struct{}{}
		}
		if !rec.Dated() {
			continue
		}
		key := rec.Year*100 + rec.Month
		if !a.hasDate || key < a.firstKey {
			a.firstKey = key
			a.cov.First = rec.DateLabel()
		}
		if !a.hasDate || key > a.lastKey {
			a.lastKey = key
			a.cov.Last = rec.DateLabel()
		}
		a.hasDate = true
	}

	out := make([]EntityCoverage, 0, len(byEntity))
	for _, a := range byEntity {
		a.cov.Managers = sortedKeys(a.managers)
		a.cov.Classes = sortedKeys(a.classes)
		out = append(out, a.cov)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Records != out[j].Records {
			return out[i].Records > out[j].Records
		}
		return out[i].Entity < out[j].Entity
	})
	sort.Strings(unresolved)
	return out, unresolved
}

// WriteCoverage renders the coverage workbook to w.
func WriteCoverage(w io.Writer, records []domain.DocumentRecord) error {
	coverage, unresolved := Coverage(records)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", coverageSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := []any{"RPPS", "Atas", "Primeira", "Última", "Gestores", "Tipos"}
	if err := f.SetSheetRow(coverageSheet, "A1", &header); err != nil {
		return fmt.Errorf("write coverage header: %w", err)
	}
	for i, c := range coverage {
		row := []any{c.Entity, c.Records, c.First, c.Last, strings.Join(c.Managers, "; "), strings.Join(c.Classes, ", ")}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(coverageSheet, cell, &row); err != nil {
			return fmt.Errorf("write coverage row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(unresolvedSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.SetCellValue(unresolvedSheet, "A1", "Arquivo"); err != nil {
		return err
	}
	for i, path := range unresolved {
		if err := f.SetCellValue(unresolvedSheet, fmt.Sprintf("A%d", i+2), path); err != nil {
			return fmt.Errorf("write unresolved row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
