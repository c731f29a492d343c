package engine

import (
	"math"

	"github.com/facturaIA/fiscal-extractor/internal/extract"
	"github.com/facturaIA/fiscal-extractor/internal/services"
)

// calculateConfidence scores how much of the record was read rather than
// inferred.
//
// Score breakdown (max 1.0):
//
//	Critical fields:  0.15 each (0.60 total):
//	  invoice number, issuer tax id, total, VAT amount or rate
//	Important fields: 0.05 each (0.20 total):
//	  date, base, concept, issuer name or vendor
//	Bonus:            0.10 each (0.20 total):
//	  issuer tax id passes its control check, printed total matches the parts
func calculateConfidence(f extract.Fields, v *services.ValidationResult) float64 {
	var score float64

	// --- Critical fields (0.15 each) ---

	if f.InvoiceNumber != "" {
		score += 0.15
	}
	if f.Issuer.TaxID != "" {
		score += 0.15
	}
	if f.Figures.Total.Valid && f.Figures.Total.Decimal.IsPositive() {
		score += 0.15
	}
	if f.Figures.VATAmount.Valid || f.Figures.VATRate.Valid {
		score += 0.15
	}

	// --- Important fields (0.05 each) ---

	if f.HasDate {
		score += 0.05
	}
	if f.Figures.Base.Valid && f.Figures.Base.Decimal.IsPositive() {
		score += 0.05
	}
	if f.Concept != "" {
		score += 0.05
	}
	if f.Issuer.Name != "" || f.Vendor != "" {
		score += 0.05
	}

	// --- Bonus ---

	if extract.ValidTaxID(f.Issuer.TaxID) {
		score += 0.10
	}

	// Printed total reconciles with base + VAT - IRPF
	if f.Figures.Total.Valid && f.Figures.Base.Valid && v != nil && !v.HasWarning("total_mismatch") {
		score += 0.10
	}

	// Cap at 1.0 to guard against floating-point drift
	if score > 1.0 {
		score = 1.0
	}
	return round2(score)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
