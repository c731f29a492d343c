package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/fiscal-extractor/internal/models"
)

// Consistency thresholds in currency units
const (
	DefaultTolerance         = 0.10
	DefaultOverrideThreshold = 1.0
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field    string          `json:"field"`
	Code     string          `json:"code"`
	Expected decimal.Decimal `json:"expected"`
	Actual   decimal.Decimal `json:"actual"`
	Message  string          `json:"message,omitempty"`
}

// ValidationWarning represents a non-critical issue
type ValidationWarning struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ComputedValues holds calculated/expected values
type ComputedValues struct {
	Base          decimal.Decimal `json:"base"`
	VATExpected   decimal.Decimal `json:"vatExpected"`
	IRPFExpected  decimal.Decimal `json:"irpfExpected"`
	TotalExpected decimal.Decimal `json:"totalExpected"`
	Difference    decimal.Decimal `json:"difference"`
}

// ValidationResult is the response from validation
type ValidationResult struct {
	Valid       bool                `json:"valid"`
	NeedsReview bool                `json:"needsReview"`
	Errors      []ValidationError   `json:"errors"`
	Warnings    []ValidationWarning `json:"warnings"`
	Computed    ComputedValues      `json:"computed"`

	// Corrected carries the figures after reconciliation
	Corrected  models.TaxFigures `json:"corrected"`
	Overridden bool              `json:"overridden"`
}

// Messages flattens errors and warnings into the record's warning list
func (r *ValidationResult) Messages() []string {
	var out []string
	for _, e := range r.Errors {
		out = append(out, e.Message)
	}
	for _, w := range r.Warnings {
		out = append(out, w.Message)
	}
	return out
}

// HasWarning reports whether a warning with the given code was raised
func (r *ValidationResult) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// TaxValidator checks total ≈ base + VAT − IRPF
type TaxValidator struct {
	tolerance         decimal.Decimal // mismatch above this is reported
	overrideThreshold decimal.Decimal // mismatch above this replaces the total
}

// NewTaxValidator creates a validator with the 0.10 / 1.0 thresholds
func NewTaxValidator() *TaxValidator {
	return NewTaxValidatorWithTolerances(DefaultTolerance, DefaultOverrideThreshold)
}

// NewTaxValidatorWithTolerances creates a validator with custom thresholds.
// Non-positive values fall back to the defaults.
func NewTaxValidatorWithTolerances(tolerance, overrideThreshold float64) *TaxValidator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if overrideThreshold <= 0 {
		overrideThreshold = DefaultOverrideThreshold
	}
	return &TaxValidator{
		tolerance:         decimal.NewFromFloat(tolerance),
		overrideThreshold: decimal.NewFromFloat(overrideThreshold),
	}
}

// Provenance marks the figures that were computed rather than read from
// the document. Derived values are never checked against themselves.
type Provenance struct {
	TotalDerived    bool
	VATRateDerived  bool
	IRPFRateDerived bool
}

// ProvenanceOf marks every figure the extraction did not read
func ProvenanceOf(extracted models.TaxFigures) Provenance {
	return Provenance{
		TotalDerived:    !extracted.Total.Valid,
		VATRateDerived:  !extracted.VATRate.Valid,
		IRPFRateDerived: !extracted.IRPFRate.Valid,
	}
}

// Validate reconciles the figures. A derived total is never checked; a
// derived rate is not checked against the amount it came from.
func (v *TaxValidator) Validate(fig models.TaxFigures, prov Provenance) *ValidationResult {
	result := &ValidationResult{
		Valid:     true,
		Errors:    []ValidationError{},
		Warnings:  []ValidationWarning{},
		Corrected: fig,
	}

	expected := ExpectedTotal(fig)
	result.Computed = ComputedValues{
		Base:          round2(fig.Base.Decimal),
		TotalExpected: expected,
	}
	if fig.Base.Valid && fig.VATRate.Valid {
		result.Computed.VATExpected = percentOf(fig.Base.Decimal, fig.VATRate.Value)
	}
	if fig.Base.Valid && fig.IRPFRate.Valid {
		result.Computed.IRPFExpected = percentOf(fig.Base.Decimal, -fig.IRPFRate.Value)
	}

	// 1. Coherence of the amounts themselves
	v.validateCoherence(fig, result)

	// 2. VAT and IRPF against their rates
	if !prov.VATRateDerived {
		v.validateVAT(fig, result)
	}
	if !prov.IRPFRateDerived {
		v.validateIRPF(fig, result)
	}

	// 3. Total against the parts
	if !prov.TotalDerived {
		v.validateTotal(fig, result, expected)
	}

	result.Valid = len(result.Errors) == 0
	result.NeedsReview = len(result.Warnings) > 0 || result.Overridden
	return result
}

// validateTotal checks the total and replaces it when it is materially wrong
func (v *TaxValidator) validateTotal(fig models.TaxFigures, result *ValidationResult, expected decimal.Decimal) {
	if !fig.Total.Valid || !fig.Base.Valid {
		return
	}

	diff := fig.Total.Decimal.Sub(expected).Abs()
	result.Computed.Difference = diff
	if diff.LessThanOrEqual(v.tolerance) {
		return
	}

	result.Warnings = append(result.Warnings, ValidationWarning{
		Field: "total",
		Code:  "total_mismatch",
		Message: fmt.Sprintf("total %s does not match base + VAT - IRPF = %s (difference %s)",
			FormatAmount(fig.Total.Decimal), FormatAmount(expected), FormatAmount(diff)),
	})

	if diff.GreaterThan(v.overrideThreshold) {
		result.Corrected.Total = decimal.NewNullDecimal(expected)
		result.Overridden = true
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "total",
			Code:    "total_overridden",
			Message: fmt.Sprintf("total overridden with calculated %s", FormatAmount(expected)),
		})
	}
}

// validateVAT checks the VAT amount matches its rate over the base
func (v *TaxValidator) validateVAT(fig models.TaxFigures, result *ValidationResult) {
	if !fig.Base.Valid || !fig.VATAmount.Valid || !fig.VATRate.Valid {
		return
	}

	diff := fig.VATAmount.Decimal.Sub(result.Computed.VATExpected).Abs()
	if diff.GreaterThan(v.tolerance) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field: "vatAmount",
			Code:  "vat_mismatch",
			Message: fmt.Sprintf("VAT %s is not %d%% of the base (%s)",
				FormatAmount(fig.VATAmount.Decimal), fig.VATRate.Value, FormatAmount(result.Computed.VATExpected)),
		})
	}
}

// validateIRPF checks the withholding matches its rate over the base
func (v *TaxValidator) validateIRPF(fig models.TaxFigures, result *ValidationResult) {
	if !fig.Base.Valid || !fig.IRPFAmount.Valid || !fig.IRPFRate.Valid || fig.IRPFRate.Value == 0 {
		return
	}

	diff := fig.IRPFAmount.Decimal.Sub(result.Computed.IRPFExpected).Abs()
	if diff.GreaterThan(v.tolerance) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field: "irpfAmount",
			Code:  "irpf_mismatch",
			Message: fmt.Sprintf("IRPF %s is not %d%% of the base (%s)",
				FormatAmount(fig.IRPFAmount.Decimal), -fig.IRPFRate.Value, FormatAmount(result.Computed.IRPFExpected)),
		})
	}
}

// validateCoherence checks field coherence
func (v *TaxValidator) validateCoherence(fig models.TaxFigures, result *ValidationResult) {
	// Check at least one amount exists
	if !fig.Base.Valid && !fig.Total.Valid {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "base",
			Code:    "no_amounts",
			Message: "no base or total amount found",
		})
		return
	}

	amounts := []struct {
		field string
		value decimal.NullDecimal
	}{
		{"base", fig.Base},
		{"vatAmount", fig.VATAmount},
		{"irpfAmount", fig.IRPFAmount},
	}
	for _, a := range amounts {
		if a.value.Valid && a.value.Decimal.IsNegative() {
			result.Errors = append(result.Errors, ValidationError{
				Field:    a.field,
				Code:     "negative_amount",
				Expected: decimal.Zero,
				Actual:   a.value.Decimal,
				Message:  a.field + " is negative",
			})
		}
	}

	// Withholding larger than the base
	if fig.Base.Valid && fig.IRPFAmount.Valid && fig.IRPFAmount.Decimal.GreaterThan(fig.Base.Decimal) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "irpfAmount",
			Code:    "irpf_exceeds_base",
			Message: "IRPF withholding exceeds the base",
		})
	}
}
