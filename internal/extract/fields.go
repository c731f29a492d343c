package extract

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/textnorm"
)

// Fields is the partial result of extraction. Strings are empty and
// optionals invalid when the field was not found.
type Fields struct {
	Date     time.Time
	HasDate  bool
	DateText string // DD/MM/YYYY

	InvoiceNumber string

	Issuer models.Party
	Client models.Party
	Vendor string

	Concept string

	Figures     models.TaxFigures
	IRPFPrinted decimal.NullDecimal

	PaymentMethod string
	BankAccount   string

	// Matched records which strategy produced each field
	Matched map[string]string
}

// Found reports how many of the key fields were located
func (f Fields) Found() int {
	n := 0
	for _, ok := range []bool{
		f.HasDate,
		f.InvoiceNumber != "",
		f.Figures.Base.Valid,
		f.Figures.VATAmount.Valid,
		f.Figures.Total.Valid,
		f.Issuer.TaxID != "",
		f.Concept != "",
	} {
		if ok {
			n++
		}
	}
	return n
}

// Extract runs every field extractor over t. now only anchors two-digit years.
func Extract(t textnorm.Text, now time.Time) Fields {
	f := Fields{Matched: map[string]string{}}
	if t.IsEmpty() {
		return f
	}

	if d, m, ok := ExtractDate(t.Folded, now); ok {
		f.Date, f.HasDate, f.DateText = d, true, d.Format(DateLayout)
		f.Matched["date"] = m
	}
	if n, m, ok := ExtractInvoiceNumber(t.Folded); ok {
		f.InvoiceNumber = n
		f.Matched["invoiceNumber"] = m
	}

	issuer, client := ExtractParties(t)
	f.Issuer, f.Client = issuer, client
	f.Vendor = ExtractVendor(t)

	if c, m, ok := ExtractConcept(t); ok {
		f.Concept = c
		f.Matched["concept"] = m
	}

	amounts := ExtractAmounts(t.Folded)
	f.Figures = amounts.Figures
	f.IRPFPrinted = amounts.IRPFPrinted
	for k, v := range amounts.Matched {
		f.Matched[k] = v
	}

	if p, m, ok := ExtractPaymentMethod(t); ok {
		f.PaymentMethod = p
		f.Matched["paymentMethod"] = m
	}
	if iban, m, ok := ExtractBankAccount(t.Folded); ok {
		f.BankAccount = iban
		f.Matched["bankAccount"] = m
	}

	return f
}
