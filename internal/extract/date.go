package extract

import (
	"regexp"
	"strconv"
	"time"
)

// DateLayout is the normalized DD/MM/YYYY form
const DateLayout = "02/01/2006"

var spanishMonths = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"setiembre": time.September, "octubre": time.October,
	"noviembre": time.November, "diciembre": time.December,
}

const monthNames = `enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre`

var dateStrategies = []Strategy{
	{
		Name:    "labelled_numeric",
		Pattern: regexp.MustCompile(`fecha(?:\s+de)?(?:\s+(?:emision|factura|expedicion|operacion))?\s*[:.]?\s*(?P<d>\d{1,2})[/.-](?P<m>\d{1,2})[/.-](?P<y>\d{4}|\d{2})\b`),
	},
	{
		Name:    "numeric",
		Pattern: regexp.MustCompile(`\b(?P<d>\d{1,2})[/.-](?P<m>\d{1,2})[/.-](?P<y>\d{4}|\d{2})\b`),
	},
	{
		Name:    "written",
		Pattern: regexp.MustCompile(`\b(?P<d>\d{1,2})\s+de\s+(?P<mname>` + monthNames + `)\s+(?:de\s+|del\s+)?(?P<y>\d{4})\b`),
	},
}

// ExtractDate finds the document date. now anchors two-digit years to the current century.
func ExtractDate(folded string, now time.Time) (time.Time, string, bool) {
	for _, s := range dateStrategies {
		s := s
		s.Accept = func(_ string, m Match) bool {
			_, ok := buildDate(m, now)
			return ok
		}
		if m, ok := s.apply(folded); ok {
			d, _ := buildDate(m, now)
			return d, m.Strategy, true
		}
	}
	return time.Time{}, "", false
}

func buildDate(m Match, now time.Time) (time.Time, bool) {
	day, err := strconv.Atoi(m.Group("d"))
	if err != nil {
		return time.Time{}, false
	}

	var month int
	if name := m.Group("mname"); name != "" {
		month = int(spanishMonths[name])
	} else if month, err = strconv.Atoi(m.Group("m")); err != nil {
		return time.Time{}, false
	}

	yearText := m.Group("y")
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return time.Time{}, false
	}
	if len(yearText) == 2 {
		year += now.Year() / 100 * 100
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		// 31/02 and the like roll over
		return time.Time{}, false
	}
	return d, true
}
