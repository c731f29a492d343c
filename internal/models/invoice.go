package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Percent is an optional integer percentage (21 = 21%).
type Percent struct {
	Value int  `json:"value"`
	Valid bool `json:"valid"`
}

// NewPercent returns a present percentage
func NewPercent(v int) Percent {
	return Percent{Value: v, Valid: true}
}

// Party identifies the issuer or the client of an invoice
type Party struct {
	Name    string `json:"name,omitempty"`
	TaxID   string `json:"taxId,omitempty"` // NIF/CIF, upper-case, no separators
	Address string `json:"address,omitempty"`
}

// TaxFigures is the arithmetic core shared by the inference and validation stages.
// Every amount may be absent; IRPFAmount is always non-negative once set.
type TaxFigures struct {
	Base       decimal.NullDecimal `json:"base"`
	VATAmount  decimal.NullDecimal `json:"vatAmount"`
	VATRate    Percent             `json:"vatRate"`
	IRPFAmount decimal.NullDecimal `json:"irpfAmount"`
	IRPFRate   Percent             `json:"irpfRate"`
	Total      decimal.NullDecimal `json:"total"`
}

// ExtractedInvoice is the structured result of the formal invoice path
type ExtractedInvoice struct {
	InvoiceNumber string    `json:"invoiceNumber"`
	IssueDate     time.Time `json:"issueDate"`

	Issuer Party `json:"issuer"`
	Client Party `json:"client"`

	Concept string `json:"concept"`

	// Amounts
	Base        decimal.Decimal `json:"base"`
	VATAmount   decimal.Decimal `json:"vatAmount"`
	VATRate     Percent         `json:"vatRate"`
	IRPFAmount  decimal.Decimal `json:"irpfAmount"`            // non-negative
	IRPFPrinted decimal.Decimal `json:"irpfPrinted,omitempty"` // as printed on the document (usually negative)
	IRPFRate    Percent         `json:"irpfRate"`              // negative for withholdings
	Total       decimal.Decimal `json:"total"`

	PaymentMethod string `json:"paymentMethod,omitempty"`
	BankAccount   string `json:"bankAccount,omitempty"`
	CategoryHint  string `json:"categoryHint,omitempty"`

	// Metadata
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings"`
}

// ExtractedExpense is the structured result of the receipt/expense path
type ExtractedExpense struct {
	Date         time.Time           `json:"date"`
	Description  string              `json:"description"`
	Amount       decimal.Decimal     `json:"amount"` // total paid
	CategoryHint string              `json:"categoryHint"`
	Vendor       string              `json:"vendor,omitempty"`
	Subtotal     decimal.NullDecimal `json:"subtotal"`
	TaxAmount    decimal.NullDecimal `json:"taxAmount"`
	VATRate      Percent             `json:"vatRate"`
	IRPFAmount   decimal.Decimal     `json:"irpfAmount"` // non-negative
	IRPFRate     Percent             `json:"irpfRate"`

	PaymentMethod string `json:"paymentMethod,omitempty"`

	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings"`
}

// InvoiceResult pairs an extracted invoice with the sequence check
type InvoiceResult struct {
	Invoice         ExtractedInvoice `json:"invoice"`
	IsValidSequence bool             `json:"isValidSequence"`
}

// ExpenseContext carries the caller's target for the expense path
type ExpenseContext struct {
	UserID     string `json:"userId"`
	CategoryID string `json:"categoryId,omitempty"`
	TaxID      string `json:"taxId,omitempty"` // caller's own NIF, used to tell income from expense
}

// Transaction type tags
const (
	TransactionExpense = "expense"
	TransactionIncome  = "income"
)

// AdditionalTax is a structured tax line stored next to a transaction
type AdditionalTax struct {
	Name         string          `json:"name"`
	Rate         decimal.Decimal `json:"rate"`
	IsPercentage bool            `json:"isPercentage"`
}

// TransactionRecord is the payload handed to the persistence layer
type TransactionRecord struct {
	ID              uuid.UUID       `json:"id"`
	UserID          string          `json:"userId"`
	Description     string          `json:"description"`
	Amount          string          `json:"amount"` // decimal string, two places
	Date            time.Time       `json:"date"`
	Type            string          `json:"type"`
	CategoryID      string          `json:"categoryId,omitempty"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	AdditionalTaxes []AdditionalTax `json:"additionalTaxes"`
	InvoiceNumber   string          `json:"invoiceNumber,omitempty"`
	IssuerTaxID     string          `json:"issuerTaxId,omitempty"`
	ArchivePath     string          `json:"archivePath,omitempty"` // bucket/object of the OCR text
	TextURL         string          `json:"textUrl,omitempty"`     // presigned link, never stored
	CreatedAt       time.Time       `json:"createdAt"`
}
