package extract

import (
	"regexp"
	"strings"

	"github.com/facturaIA/fiscal-extractor/internal/textnorm"
)

const (
	minConceptLength = 10
	tableScanLines   = 12
)

var (
	conceptLabel = regexp.MustCompile(`^\s*(?:concepto|descripcion|detalle)\s*[:.]\s*`)
	tableHeader  = regexp.MustCompile(`\b(?:descripcion|concepto|detalle|articulo|unidades|cantidad|uds|precio)\b`)
	trailingCols = regexp.MustCompile(`(?i)(?:[ \t]+[-+]?\d[\d.,]*[ \t]*(?:€|%|eur)?)+[ \t]*$`)
	summaryLine  = regexp.MustCompile(`^\s*(?:total|sub\s*-?total|base|iva|i\.v\.a|irpf|retencion|importe|fecha|forma\s+de\s+pago|metodo\s+de\s+pago|iban|vencimiento|nif|cif)\b`)
	numericLine  = regexp.MustCompile(`^[\s\d.,/:%€-]*$`)
)

// ExtractConcept returns the invoice concept: an explicit label, or the
// first real line of the line-items table
func ExtractConcept(t textnorm.Text) (string, string, bool) {
	lines := t.Lines()
	for i, l := range lines {
		loc := conceptLabel.FindStringIndex(l)
		if loc == nil {
			continue
		}
		if c := strings.TrimSpace(t.OriginalFrom(i, loc[1])); !numericLine.MatchString(c) {
			return c, "label", true
		}
	}

	for i, l := range lines {
		if !tableHeader.MatchString(l) {
			continue
		}
		for j := i + 1; j < len(lines) && j <= i+tableScanLines; j++ {
			if summaryLine.MatchString(lines[j]) {
				// totals block reached, the table is over
				break
			}
			if c := stripColumns(t.OriginalLine(j)); len(c) >= minConceptLength {
				return c, "table", true
			}
		}
		break
	}
	return "", "", false
}

// stripColumns drops the quantity and price columns of an item line
func stripColumns(s string) string {
	s = strings.TrimSpace(trailingCols.ReplaceAllString(s, ""))
	if numericLine.MatchString(s) {
		return ""
	}
	return s
}
