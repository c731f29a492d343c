// Package mapper assembles the final invoice, expense and transaction records.
package mapper

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/facturaIA/fiscal-extractor/internal/extract"
	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/textnorm"
)

// BuildInvoice assembles the invoice record. f must already carry the
// resolved number and date; fig are the validated figures.
func BuildInvoice(f extract.Fields, fig models.TaxFigures, category string, confidence float64, warnings []string) models.ExtractedInvoice {
	inv := models.ExtractedInvoice{
		InvoiceNumber: f.InvoiceNumber,
		IssueDate:     f.Date,
		Issuer:        f.Issuer,
		Client:        f.Client,
		Concept:       f.Concept,
		Base:          fig.Base.Decimal,
		VATAmount:     fig.VATAmount.Decimal,
		VATRate:       fig.VATRate,
		IRPFAmount:    fig.IRPFAmount.Decimal,
		IRPFRate:      fig.IRPFRate,
		Total:         fig.Total.Decimal,
		PaymentMethod: f.PaymentMethod,
		BankAccount:   f.BankAccount,
		CategoryHint:  category,
		Confidence:    confidence,
		Warnings:      append([]string{}, warnings...),
	}

	switch {
	case inv.IRPFAmount.IsZero():
		inv.IRPFPrinted = decimal.Zero
	case f.IRPFPrinted.Valid:
		inv.IRPFPrinted = f.IRPFPrinted.Decimal
	default:
		inv.IRPFPrinted = inv.IRPFAmount.Neg()
	}
	return inv
}

// BuildExpense assembles the receipt record
func BuildExpense(f extract.Fields, fig models.TaxFigures, category string, confidence float64, warnings []string) models.ExtractedExpense {
	exp := models.ExtractedExpense{
		Date:          f.Date,
		Description:   f.Concept,
		Amount:        fig.Total.Decimal,
		CategoryHint:  category,
		Vendor:        f.Vendor,
		Subtotal:      fig.Base,
		TaxAmount:     fig.VATAmount,
		VATRate:       fig.VATRate,
		IRPFAmount:    fig.IRPFAmount.Decimal,
		IRPFRate:      fig.IRPFRate,
		PaymentMethod: f.PaymentMethod,
		Confidence:    confidence,
		Warnings:      append([]string{}, warnings...),
	}
	if exp.IRPFRate.Value < 0 {
		exp.IRPFRate.Value = -exp.IRPFRate.Value
	}

	if exp.Description == "" {
		switch {
		case f.Vendor != "":
			exp.Description = f.Vendor
		default:
			exp.Description = "Gasto " + strings.ToLower(category)
		}
	}
	return exp
}

// FiscalBreakdown renders the human-readable summary. IRPF is shown as a
// deduction, with its sign.
func FiscalBreakdown(fig models.TaxFigures) string {
	var lines []string
	if fig.Base.Valid {
		lines = append(lines, "Base imponible: "+money(fig.Base.Decimal))
	}
	if fig.VATAmount.Valid {
		lines = append(lines, fmt.Sprintf("IVA%s: %s", rateLabel(fig.VATRate), money(fig.VATAmount.Decimal)))
	}
	if fig.IRPFAmount.Valid && !fig.IRPFAmount.Decimal.IsZero() {
		rate := fig.IRPFRate
		if rate.Valid && rate.Value > 0 {
			rate.Value = -rate.Value
		}
		lines = append(lines, fmt.Sprintf("IRPF%s: %s", rateLabel(rate), money(fig.IRPFAmount.Decimal.Abs().Neg())))
	}
	if fig.Total.Valid {
		lines = append(lines, "Total: "+money(fig.Total.Decimal))
	}
	return strings.Join(lines, "\n")
}

// AdditionalTaxes lists the VAT and IRPF lines stored next to a transaction.
// The IRPF rate is negative.
func AdditionalTaxes(fig models.TaxFigures) []models.AdditionalTax {
	taxes := []models.AdditionalTax{}
	if fig.VATRate.Valid && fig.VATAmount.Valid && fig.VATAmount.Decimal.IsPositive() {
		taxes = append(taxes, models.AdditionalTax{
			Name:         "IVA",
			Rate:         decimal.NewFromInt(int64(fig.VATRate.Value)),
			IsPercentage: true,
		})
	}
	if fig.IRPFAmount.Valid && fig.IRPFAmount.Decimal.IsPositive() {
		tax := models.AdditionalTax{Name: "IRPF", IsPercentage: true}
		if fig.IRPFRate.Valid && fig.IRPFRate.Value != 0 {
			tax.Rate = decimal.NewFromInt(-int64(abs(fig.IRPFRate.Value)))
		} else {
			// rate unknown, store the withheld amount
			tax.Rate = fig.IRPFAmount.Decimal.Neg()
			tax.IsPercentage = false
		}
		taxes = append(taxes, tax)
	}
	return taxes
}

// ExpenseFigures rebuilds the tax figures of an expense record
func ExpenseFigures(exp models.ExtractedExpense) models.TaxFigures {
	fig := models.TaxFigures{
		Base:       exp.Subtotal,
		VATAmount:  exp.TaxAmount,
		VATRate:    exp.VATRate,
		IRPFAmount: decimal.NewNullDecimal(exp.IRPFAmount),
		IRPFRate:   exp.IRPFRate,
		Total:      decimal.NewNullDecimal(exp.Amount),
	}
	if fig.IRPFRate.Value > 0 {
		fig.IRPFRate.Value = -fig.IRPFRate.Value
	}
	return fig
}

// InvoiceFigures rebuilds the tax figures of an invoice record
func InvoiceFigures(inv models.ExtractedInvoice) models.TaxFigures {
	return models.TaxFigures{
		Base:       decimal.NewNullDecimal(inv.Base),
		VATAmount:  decimal.NewNullDecimal(inv.VATAmount),
		VATRate:    inv.VATRate,
		IRPFAmount: decimal.NewNullDecimal(inv.IRPFAmount),
		IRPFRate:   inv.IRPFRate,
		Total:      decimal.NewNullDecimal(inv.Total),
	}
}

// ToTransaction maps an expense to the persistence payload
func ToTransaction(exp models.ExtractedExpense, ec models.ExpenseContext, id uuid.UUID) models.TransactionRecord {
	fig := ExpenseFigures(exp)
	return models.TransactionRecord{
		ID:              id,
		UserID:          ec.UserID,
		Description:     exp.Description,
		Amount:          exp.Amount.StringFixed(2),
		Date:            exp.Date,
		Type:            models.TransactionExpense,
		CategoryID:      ec.CategoryID,
		PaymentMethod:   exp.PaymentMethod,
		Notes:           notes(fig, exp.CategoryHint),
		AdditionalTaxes: AdditionalTaxes(fig),
	}
}

// InvoiceToTransaction maps an invoice to the persistence payload. An
// invoice the caller issued is income; anything else is an expense.
func InvoiceToTransaction(inv models.ExtractedInvoice, ec models.ExpenseContext, id uuid.UUID) models.TransactionRecord {
	fig := InvoiceFigures(inv)

	txType := models.TransactionExpense
	if ec.TaxID != "" && sameTaxID(ec.TaxID, inv.Issuer.TaxID) {
		txType = models.TransactionIncome
	}

	description := inv.Concept
	if description == "" {
		description = "Factura " + inv.InvoiceNumber
	}

	return models.TransactionRecord{
		ID:              id,
		UserID:          ec.UserID,
		Description:     description,
		Amount:          inv.Total.StringFixed(2),
		Date:            inv.IssueDate,
		Type:            txType,
		CategoryID:      ec.CategoryID,
		PaymentMethod:   inv.PaymentMethod,
		Notes:           notes(fig, inv.CategoryHint),
		AdditionalTaxes: AdditionalTaxes(fig),
		InvoiceNumber:   inv.InvoiceNumber,
		IssuerTaxID:     inv.Issuer.TaxID,
	}
}

func notes(fig models.TaxFigures, category string) string {
	n := FiscalBreakdown(fig)
	if category != "" {
		if n != "" {
			n += "\n"
		}
		n += "Categoría sugerida: " + category
	}
	return n
}

func sameTaxID(a, b string) bool {
	clean := func(s string) string {
		return strings.ToUpper(strings.NewReplacer("-", "", " ", "", ".", "").Replace(s))
	}
	return clean(a) == clean(b)
}

func money(d decimal.Decimal) string {
	return textnorm.FormatLocale(d) + " €"
}

func rateLabel(p models.Percent) string {
	if !p.Valid {
		return ""
	}
	return fmt.Sprintf(" (%d%%)", p.Value)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
