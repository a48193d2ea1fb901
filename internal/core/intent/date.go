package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
	"github.com/kirillkom/rpps-atas-assistant/internal/core/entity"
)

var (
	fullDateRe  = regexp.MustCompile(`\b(?:0?[1-9]|[12]\d|3[01])[-/.](0?[1-9]|1[0-2])[-/.]((?:19|20)\d{2})\b`)
	yearMonthRe = regexp.MustCompile(`\b((?:19|20)\d{2})(?:[-/.](0[1-9]|1[0-2]))?\b`)
	monthYearRe = regexp.MustCompile(`\b(0?[1-9]|1[0-2])/((?:19|20)\d{2})\b`)
	namedRe     = regexp.MustCompile(`\b(janeiro|fevereiro|marco|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)(?: de)? ((?:19|20)\d{2})\b`)
)

var monthNames = map[string]int{
	"janeiro": 1, "fevereiro": 2, "marco": 3, "abril": 4, "maio": 5, "junho": 6,
	"julho": 7, "agosto": 8, "setembro": 9, "outubro": 10, "novembro": 11, "dezembro": 12,
}

// ExtractDateWindow finds a year, optionally with a month, in free text. Recognized
// forms: "2023", "2023-05", "2023/05", "05/2023", "15/05/2023" and "maio de 2023".
func ExtractDateWindow(text string) domain.DateWindow {
	lower := entity.FoldLower(text)

	if m := fullDateRe.FindStringSubmatch(lower); m != nil {
		return domain.DateWindow{Year: atoi(m[2]), Month: atoi(m[1])}
	}
	if m := namedRe.FindStringSubmatch(lower); m != nil {
		return domain.DateWindow{Year: atoi(m[2]), Month: monthNames[m[1]]}
	}
	if m := monthYearRe.FindStringSubmatch(lower); m != nil {
		return domain.DateWindow{Year: atoi(m[2]), Month: atoi(m[1])}
	}
	if m := yearMonthRe.FindStringSubmatch(lower); m != nil {
		return domain.DateWindow{Year: atoi(m[1]), Month: atoi(m[2])}
	}
	return domain.DateWindow{}
}

// ExtractYearMonth reads a date from a document path or header, used during enrichment.
func ExtractYearMonth(text string) (int, int) {
	w := ExtractDateWindow(strings.ReplaceAll(text, "_", "-"))
	return w.Year, w.Month
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
