package extract

import (
	"regexp"
	"strings"
)

const numberToken = `([a-z0-9](?:[a-z0-9/\-_.]*[0-9a-z])?)`

var invoiceNumberStrategies = []Strategy{
	{
		Name:    "factura_label",
		Pattern: regexp.MustCompile(`(?:factura\s*(?:n[ºo°]\.?|num(?:ero)?\.?|#)|(?:n[ºo°]\.?|numero)\s*(?:de\s+)?factura)\s*[:.]?\s*` + numberToken),
		Accept:  hasDigit,
	},
	{
		Name:    "numero_near_factura",
		Pattern: regexp.MustCompile(`(?:^|[\s(])n[ºo°]\.?\s*[:.]?\s*` + numberToken),
		Accept: func(text string, m Match) bool {
			if !hasDigit(text, m) {
				return false
			}
			from := m.Start - 80
			if from < 0 {
				from = 0
			}
			return strings.Contains(text[from:m.End], "factura")
		},
	},
	{
		Name:    "series_dash_year",
		Pattern: regexp.MustCompile(`\b([a-z]{1,3}-\d{1,6}/\d{2,6})\b`),
	},
	{
		Name:    "year_slash_number",
		Pattern: regexp.MustCompile(`(?:^|[\s:#])(\d{4}/\d{1,6})\b`),
		Accept: func(text string, m Match) bool {
			// a following slash means a yyyy/mm/dd date
			return m.End >= len(text) || text[m.End] != '/'
		},
	},
	{
		Name:    "letter_number",
		Pattern: regexp.MustCompile(`\b([a-z]-?\d{3,7})\b`),
	},
}

func hasDigit(_ string, m Match) bool {
	return strings.ContainsAny(m.Value(), "0123456789")
}

// ExtractInvoiceNumber finds the invoice number, upper-cased
func ExtractInvoiceNumber(folded string) (string, string, bool) {
	m, ok := FirstMatch(folded, invoiceNumberStrategies)
	if !ok {
		return "", "", false
	}
	n := strings.TrimRight(m.Value(), ".-/_")
	return strings.ToUpper(n), m.Strategy, n != ""
}
