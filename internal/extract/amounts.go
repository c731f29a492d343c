package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/textnorm"
)

const (
	amountGroup = `(?P<amount>-?[ \t]?(?:\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:[.,]\d+)?))(?P<pct>[ \t]*%)?`
	rateGroup   = `(?:\(?[ \t]*(?P<rate>-?[ \t]?\d{1,3}(?:[.,]\d+)?)[ \t]*%[ \t]*\)?)?`
	separator   = `[ \t]*[:.]?[ \t]*\n?[ \t]*(?:€|eur(?:os)?)?[ \t]*`
)

var thousandsOnly = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+$`)

// amountStrategy builds "label [(rate %)] [:] amount"
func amountStrategy(name, label string, last bool) Strategy {
	return Strategy{
		Name:    name,
		Pattern: regexp.MustCompile(label + `[ \t]*` + rateGroup + separator + amountGroup),
		Last:    last,
		Accept:  plausibleAmount,
	}
}

// plausibleAmount rejects percentages and the leading part of dates
func plausibleAmount(text string, m Match) bool {
	if m.Group("pct") != "" {
		return false
	}
	if m.End < len(text) && strings.ContainsRune("/-", rune(text[m.End])) {
		return false
	}
	_, ok := parseAmount(m.Group("amount"))
	return ok
}

var baseStrategies = []Strategy{
	amountStrategy("base_imponible", `base\s+imponible`, false),
	amountStrategy("subtotal", `\bsub[ \t-]?total`, false),
	amountStrategy("importe_neto", `importe\s+neto`, false),
	amountStrategy("base", `\bbase\b`, false),
	amountStrategy("neto", `\bneto\b`, false),
}

var vatStrategies = []Strategy{
	amountStrategy("iva_labelled", `(?:cuota\s+(?:de\s+)?)?(?:\biva\b|\bi\.v\.a\.?)`, false),
	amountStrategy("impuestos", `\bimpuestos?\b`, false),
}

var irpfStrategies = []Strategy{
	amountStrategy("irpf_labelled", `(?:ret(?:encion|\.)?\s*(?:de\s+)?)?\birpf\b`, false),
	amountStrategy("retencion", `\bretencion(?:es)?\b`, false),
}

var totalStrategies = []Strategy{
	amountStrategy("total_factura", `\btotal\s+(?:factura|a\s+pagar|a\s+abonar|eur)`, false),
	amountStrategy("importe_total", `importe\s+total`, false),
	amountStrategy("total", `\btotal\b`, true),
}

var vatRateOnly = Strategy{
	Name:    "iva_rate_only",
	Pattern: regexp.MustCompile(`(?:\biva\b|\bi\.v\.a\.?)[ \t]*[:(]?[ \t]*(?P<rate>\d{1,3}(?:[.,]\d+)?)[ \t]*%`),
}

var irpfRateOnly = Strategy{
	Name:    "irpf_rate_only",
	Pattern: regexp.MustCompile(`(?:\birpf\b|\bretencion\b)[ \t]*[:(]?[ \t]*(?P<rate>-?[ \t]?\d{1,3}(?:[.,]\d+)?)[ \t]*%`),
}

// Amounts is what the financial extractors found
type Amounts struct {
	Figures models.TaxFigures
	// IRPFPrinted keeps the withholding with the sign it was printed with
	IRPFPrinted decimal.NullDecimal
	Matched     map[string]string
}

// ExtractAmounts finds base, VAT, IRPF and total. Amounts are
// non-negative; a missing field stays invalid.
func ExtractAmounts(folded string) Amounts {
	a := Amounts{Matched: map[string]string{}}

	if m, ok := FirstMatch(folded, baseStrategies); ok {
		a.Figures.Base = absAmount(m)
		a.Matched["base"] = m.Strategy
	}

	if m, ok := FirstMatch(folded, vatStrategies); ok {
		a.Figures.VATAmount = absAmount(m)
		a.Figures.VATRate = parseRate(m.Group("rate"))
		a.Matched["vat"] = m.Strategy
	}
	if !a.Figures.VATRate.Valid {
		if m, ok := vatRateOnly.apply(folded); ok {
			a.Figures.VATRate = parseRate(m.Group("rate"))
			a.Matched["vatRate"] = m.Strategy
		}
	}

	if m, ok := FirstMatch(folded, irpfStrategies); ok {
		printed, _ := parseAmount(m.Group("amount"))
		a.IRPFPrinted = decimal.NewNullDecimal(printed)
		a.Figures.IRPFAmount = decimal.NewNullDecimal(printed.Abs())
		a.Figures.IRPFRate = parseRate(m.Group("rate"))
		a.Matched["irpf"] = m.Strategy
	}
	if !a.Figures.IRPFRate.Valid {
		if m, ok := irpfRateOnly.apply(folded); ok {
			a.Figures.IRPFRate = parseRate(m.Group("rate"))
			a.Matched["irpfRate"] = m.Strategy
		}
	}

	if m, ok := FirstMatch(folded, totalStrategies); ok {
		a.Figures.Total = absAmount(m)
		a.Matched["total"] = m.Strategy
	}

	return a
}

func absAmount(m Match) decimal.NullDecimal {
	d, ok := parseAmount(m.Group("amount"))
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d.Abs())
}

// parseAmount reads "1.234" as a thousands-grouped integer, everything
// else as ParseLocaleNumber does
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.Join(strings.Fields(s), "")
	if thousandsOnly.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	return textnorm.ParseLocaleNumber(s)
}

func parseRate(s string) models.Percent {
	if s == "" {
		return models.Percent{}
	}
	d, ok := textnorm.ParseLocaleNumber(s)
	if !ok {
		return models.Percent{}
	}
	return models.NewPercent(int(d.Round(0).IntPart()))
}
