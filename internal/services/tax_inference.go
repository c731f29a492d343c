package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/textnorm"
)

// maxRate separates real percentages from amounts captured in a rate slot
const maxRate = 100

var hundred = decimal.NewFromInt(100)

// WithholdingKeywords signal that an IRPF withholding applies (folded text)
var WithholdingKeywords = []string{"irpf", "retencion", "profesional", "autonomo"}

// TaxDefaults are the standard Spanish rates used when a document omits them
type TaxDefaults struct {
	VATRate  int // 21
	IRPFRate int // 15, stored negative on the record
}

// DefaultTaxDefaults returns the general VAT and professional IRPF rates
func DefaultTaxDefaults() TaxDefaults {
	return TaxDefaults{VATRate: 21, IRPFRate: 15}
}

// HasWithholdingContext reports whether the folded text mentions a withholding
func HasWithholdingContext(folded string) bool {
	for _, k := range WithholdingKeywords {
		if strings.Contains(folded, k) {
			return true
		}
	}
	return false
}

// InferTaxes fills the gaps between base, VAT, IRPF and total. Extracted
// values always win over inferred ones. It returns a new value; fig is
// left untouched.
func InferTaxes(fig models.TaxFigures, withholdingContext bool, defaults TaxDefaults) (models.TaxFigures, []string) {
	out := fig
	var warnings []string

	// Anomaly correction first, so corrected rates feed every derivation below
	if out.VATRate.Valid && abs(out.VATRate.Value) > maxRate {
		warnings = append(warnings, fmt.Sprintf("VAT rate %d%% is not a percentage, using %d%%", out.VATRate.Value, defaults.VATRate))
		out.VATRate = models.NewPercent(defaults.VATRate)
	}
	if out.VATRate.Valid && out.VATRate.Value < 0 {
		out.VATRate.Value = -out.VATRate.Value
	}
	if out.IRPFRate.Valid && abs(out.IRPFRate.Value) > maxRate {
		warnings = append(warnings, fmt.Sprintf("IRPF rate %d%% is not a percentage, using -%d%%", out.IRPFRate.Value, defaults.IRPFRate))
		out.IRPFRate = models.NewPercent(-defaults.IRPFRate)
	}
	if out.IRPFRate.Valid && out.IRPFRate.Value > 0 {
		// withholdings are deductions
		out.IRPFRate.Value = -out.IRPFRate.Value
	}
	out.Base = nonNegative(out.Base)
	out.VATAmount = nonNegative(out.VATAmount)
	out.IRPFAmount = nonNegative(out.IRPFAmount)
	out.Total = nonNegative(out.Total)

	// VAT from base
	if out.Base.Valid {
		switch {
		case !out.VATAmount.Valid:
			if !out.VATRate.Valid {
				out.VATRate = models.NewPercent(defaults.VATRate)
				warnings = append(warnings, fmt.Sprintf("VAT rate assumed %d%%", defaults.VATRate))
			}
			out.VATAmount = decimal.NewNullDecimal(percentOf(out.Base.Decimal, out.VATRate.Value))
		case !out.VATRate.Valid && out.Base.Decimal.IsPositive():
			out.VATRate = models.NewPercent(rateOf(out.VATAmount.Decimal, out.Base.Decimal))
		}
	}

	// IRPF only with contextual evidence
	if withholdingContext {
		irpfRate := defaults.IRPFRate
		if out.IRPFRate.Valid {
			irpfRate = -out.IRPFRate.Value
		}
		switch {
		case out.Base.Valid && !out.IRPFAmount.Valid && !closesWithoutWithholding(out):
			out.IRPFRate = models.NewPercent(-irpfRate)
			out.IRPFAmount = decimal.NewNullDecimal(percentOf(out.Base.Decimal, irpfRate))
		case out.Base.Valid && !out.IRPFAmount.Valid:
			// The printed total already closes without a withholding. Unlike the
			// plain keyword rule, the document's own arithmetic wins here and no
			// IRPF is inferred.
			out.IRPFAmount = decimal.NewNullDecimal(decimal.Zero)
			out.IRPFRate = models.NewPercent(0)
		case out.IRPFAmount.Valid && !out.IRPFRate.Valid && out.Base.Valid && out.Base.Decimal.IsPositive():
			out.IRPFRate = models.NewPercent(-rateOf(out.IRPFAmount.Decimal, out.Base.Decimal))
		}
	} else {
		out.IRPFAmount = decimal.NewNullDecimal(decimal.Zero)
		out.IRPFRate = models.NewPercent(0)
	}

	// Base from total
	if !out.Base.Valid && out.Total.Valid {
		var w []string
		out, w = baseFromTotal(out, withholdingContext, defaults)
		warnings = append(warnings, w...)
	}

	// Base from a lone VAT line
	if !out.Base.Valid && out.VATAmount.Valid && out.VATRate.Valid && out.VATRate.Value > 0 {
		out.Base = decimal.NewNullDecimal(out.VATAmount.Decimal.Mul(hundred).Div(decimal.NewFromInt(int64(out.VATRate.Value))).Round(2))
		if !out.IRPFAmount.Valid {
			irpfRate := defaults.IRPFRate
			if out.IRPFRate.Valid {
				irpfRate = -out.IRPFRate.Value
			}
			out.IRPFRate = models.NewPercent(-irpfRate)
			out.IRPFAmount = decimal.NewNullDecimal(percentOf(out.Base.Decimal, irpfRate))
		}
		warnings = append(warnings, "base derived from the VAT amount")
	}

	// Total from the parts
	if !out.Total.Valid && out.Base.Valid {
		out.Total = decimal.NewNullDecimal(ExpectedTotal(out))
	}

	return out, warnings
}

// baseFromTotal back-computes the base when only the total is printed
func baseFromTotal(fig models.TaxFigures, withholdingContext bool, defaults TaxDefaults) (models.TaxFigures, []string) {
	total := fig.Total.Decimal

	if fig.VATAmount.Valid && fig.IRPFAmount.Valid {
		fig.Base = decimal.NewNullDecimal(round2(total.Sub(fig.VATAmount.Decimal).Add(fig.IRPFAmount.Decimal)))
		if fig.Base.Decimal.IsNegative() {
			fig.Base = decimal.NewNullDecimal(decimal.Zero)
			return fig, []string{"base computed from total is negative, set to 0"}
		}
		return fig, nil
	}

	var warnings []string
	if !fig.VATRate.Valid {
		fig.VATRate = models.NewPercent(defaults.VATRate)
		warnings = append(warnings, fmt.Sprintf("VAT rate assumed %d%%", defaults.VATRate))
	}
	vatRate := fig.VATRate.Value

	irpfRate := 0
	if withholdingContext && !fig.IRPFAmount.Valid {
		irpfRate = defaults.IRPFRate
		if fig.IRPFRate.Valid && fig.IRPFRate.Value != 0 {
			irpfRate = -fig.IRPFRate.Value
		}
		fig.IRPFRate = models.NewPercent(-irpfRate)
	}

	var base, factor decimal.Decimal
	switch {
	case fig.VATAmount.Valid:
		// total = base + vat - base*irpf/100
		base, factor = total.Sub(fig.VATAmount.Decimal), decimal.NewFromInt(int64(100-irpfRate))
	case fig.IRPFAmount.Valid:
		base, factor = total.Add(fig.IRPFAmount.Decimal), decimal.NewFromInt(int64(100+vatRate))
	default:
		base, factor = total, decimal.NewFromInt(int64(100+vatRate-irpfRate))
	}
	if !factor.IsPositive() {
		return fig, append(warnings, "base cannot be computed from total")
	}
	fig.Base = decimal.NewNullDecimal(round2(base.Mul(hundred).Div(factor)))
	if fig.Base.Decimal.IsNegative() {
		fig.Base = decimal.NewNullDecimal(decimal.Zero)
		warnings = append(warnings, "base computed from total is negative, set to 0")
	}

	if !fig.IRPFAmount.Valid {
		fig.IRPFAmount = decimal.NewNullDecimal(percentOf(fig.Base.Decimal, irpfRate))
	}
	if !fig.VATAmount.Valid {
		fig.VATAmount = decimal.NewNullDecimal(round2(total.Sub(fig.Base.Decimal).Add(fig.IRPFAmount.Decimal)))
	}

	warnings = append(warnings, fmt.Sprintf("base estimated from total assuming %d%% VAT", vatRate))
	return fig, warnings
}

// closesWithoutWithholding reports whether a printed total already equals base + VAT
func closesWithoutWithholding(fig models.TaxFigures) bool {
	if !fig.Total.Valid || !fig.Base.Valid || !fig.VATAmount.Valid {
		return false
	}
	sum := fig.Base.Decimal.Add(fig.VATAmount.Decimal)
	return fig.Total.Decimal.Sub(sum).Abs().LessThanOrEqual(decimal.NewFromFloat(DefaultTolerance))
}

// ExpectedTotal is base + VAT - IRPF, rounded to cents. Absent parts count as zero.
func ExpectedTotal(fig models.TaxFigures) decimal.Decimal {
	return round2(fig.Base.Decimal.Add(fig.VATAmount.Decimal).Sub(fig.IRPFAmount.Decimal))
}

func percentOf(d decimal.Decimal, rate int) decimal.Decimal {
	return round2(d.Mul(decimal.NewFromInt(int64(rate))).Div(hundred))
}

// rateOf returns amount/base as a whole percentage
func rateOf(amount, base decimal.Decimal) int {
	return int(amount.Mul(hundred).Div(base).Round(0).IntPart())
}

func nonNegative(d decimal.NullDecimal) decimal.NullDecimal {
	if d.Valid && d.Decimal.IsNegative() {
		d.Decimal = d.Decimal.Abs()
	}
	return d
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// round2 rounds to 2 decimal places
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatAmount renders an amount in Spanish notation
func FormatAmount(d decimal.Decimal) string {
	return textnorm.FormatLocale(d) + " €"
}
