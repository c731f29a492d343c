// Package engine runs the extraction pipeline over one OCR text:
// Raw → Extracted → Inferred → Validated → Mapped.
//
// Each stage returns a new value plus its warnings. An Engine holds no
// mutable state and may be shared between goroutines.
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/facturaIA/fiscal-extractor/internal/extract"
	"github.com/facturaIA/fiscal-extractor/internal/mapper"
	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/services"
	"github.com/facturaIA/fiscal-extractor/internal/textnorm"
)

// AutoNumberPrefix marks a synthesized invoice number
const AutoNumberPrefix = "AUTO-"

const noContentWarning = "no extractable content in the document"

// Engine extracts fiscal records from OCR text
type Engine struct {
	clock      Clock
	log        *logrus.Logger
	validator  *services.TaxValidator
	classifier *services.Classifier
	defaults   services.TaxDefaults
}

// New creates an Engine with the standard rates, tolerances and categories
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:      systemClock{},
		log:        logrus.StandardLogger(),
		validator:  services.NewTaxValidator(),
		classifier: services.NewClassifier(nil),
		defaults:   services.DefaultTaxDefaults(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// validated is the pipeline state once the consistency check ran
type validated struct {
	fields     extract.Fields
	figures    models.TaxFigures
	validation *services.ValidationResult
	category   services.Category
	warnings   []string
}

func (e *Engine) run(raw string, now time.Time) validated {
	t := textnorm.New(raw)
	if t.IsEmpty() {
		return validated{category: services.CategoryOther, warnings: []string{noContentWarning}}
	}

	// Extracted
	fields := extract.Extract(t, now)

	// Inferred
	withholding := services.HasWithholdingContext(t.Folded)
	inferred, warnings := services.InferTaxes(fields.Figures, withholding, e.defaults)

	// Validated
	validation := e.validator.Validate(inferred, services.ProvenanceOf(fields.Figures))
	warnings = append(warnings, validation.Messages()...)

	category := e.classifier.Classify(t.Folded)

	e.log.WithFields(logrus.Fields{
		"strategies":  fields.Matched,
		"withholding": withholding,
		"overridden":  validation.Overridden,
		"category":    category,
		"warnings":    len(warnings),
	}).Debug("extraction pipeline finished")

	return validated{
		fields:     fields,
		figures:    validation.Corrected,
		validation: validation,
		category:   category,
		warnings:   warnings,
	}
}

// ExtractInvoice extracts a formal invoice. lastKnownNumber, when given,
// is compared with the extracted number.
func (e *Engine) ExtractInvoice(text, lastKnownNumber string) models.InvoiceResult {
	now := e.clock.Now()
	v := e.run(text, now)

	f := v.fields
	var warnings []string
	if f.InvoiceNumber == "" {
		f.InvoiceNumber = AutoNumberPrefix + now.Format("20060102")
		warnings = append(warnings, fmt.Sprintf("invoice number not found, using %s", f.InvoiceNumber))
	}
	if !f.HasDate {
		f.Date = today(now)
		warnings = append(warnings, fmt.Sprintf("issue date not found, using %s", f.Date.Format(extract.DateLayout)))
	}
	warnings = append(v.warnings, warnings...)

	inv := mapper.BuildInvoice(f, v.figures, string(v.category), calculateConfidence(v.fields, v.validation), warnings)

	sequential := true
	if lastKnownNumber != "" && !strings.HasPrefix(inv.InvoiceNumber, AutoNumberPrefix) {
		sequential = services.IsSequential(inv.InvoiceNumber, lastKnownNumber)
	}

	e.log.WithFields(logrus.Fields{
		"invoice":    inv.InvoiceNumber,
		"issuer":     inv.Issuer.TaxID,
		"sequential": sequential,
		"confidence": inv.Confidence,
	}).Debug("invoice extracted")

	return models.InvoiceResult{Invoice: inv, IsValidSequence: sequential}
}

// ExtractExpense extracts a receipt for the user and category in ec
func (e *Engine) ExtractExpense(text string, ec models.ExpenseContext) models.ExtractedExpense {
	now := e.clock.Now()
	v := e.run(text, now)

	f := v.fields
	var warnings []string
	if !f.HasDate {
		f.Date = today(now)
		warnings = append(warnings, fmt.Sprintf("date not found, using %s", f.Date.Format(extract.DateLayout)))
	}
	warnings = append(v.warnings, warnings...)

	exp := mapper.BuildExpense(f, v.figures, string(v.category), calculateConfidence(v.fields, v.validation), warnings)

	e.log.WithFields(logrus.Fields{
		"user":       ec.UserID,
		"vendor":     exp.Vendor,
		"category":   exp.CategoryHint,
		"confidence": exp.Confidence,
	}).Debug("expense extracted")

	return exp
}

func today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
