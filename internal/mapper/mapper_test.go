package mapper

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/fiscal-extractor/internal/extract"
	"github.com/facturaIA/fiscal-extractor/internal/models"
)

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func professionalFigures() models.TaxFigures {
	return models.TaxFigures{
		Base:       amount("1000"),
		VATAmount:  amount("210"),
		VATRate:    models.NewPercent(21),
		IRPFAmount: amount("150"),
		IRPFRate:   models.NewPercent(-15),
		Total:      amount("1060"),
	}
}

func TestFiscalBreakdown(t *testing.T) {
	expected := "Base imponible: 1.000,00 €\n" +
		"IVA (21%): 210,00 €\n" +
		"IRPF (-15%): -150,00 €\n" +
		"Total: 1.060,00 €"
	assert.Equal(t, expected, FiscalBreakdown(professionalFigures()))

	noIRPF := models.TaxFigures{
		Base:       amount("45.90"),
		VATAmount:  amount("4.59"),
		VATRate:    models.NewPercent(10),
		IRPFAmount: amount("0"),
		IRPFRate:   models.NewPercent(0),
		Total:      amount("50.49"),
	}
	assert.Equal(t, "Base imponible: 45,90 €\nIVA (10%): 4,59 €\nTotal: 50,49 €", FiscalBreakdown(noIRPF))
}

func TestAdditionalTaxes(t *testing.T) {
	taxes := AdditionalTaxes(professionalFigures())
	require.Len(t, taxes, 2)

	assert.Equal(t, "IVA", taxes[0].Name)
	assert.True(t, decimal.NewFromInt(21).Equal(taxes[0].Rate))
	assert.True(t, taxes[0].IsPercentage)

	assert.Equal(t, "IRPF", taxes[1].Name)
	assert.True(t, decimal.NewFromInt(-15).Equal(taxes[1].Rate))
	assert.True(t, taxes[1].IsPercentage)

	assert.Empty(t, AdditionalTaxes(models.TaxFigures{Total: amount("10")}))
}

func TestBuildInvoice(t *testing.T) {
	f := extract.Fields{
		InvoiceNumber: "F-2025/0042",
		Date:          time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Issuer:        models.Party{Name: "Estudio Luna", TaxID: "B12345678"},
		Concept:       "Diseño web",
		IRPFPrinted:   amount("-150"),
	}
	warnings := []string{"VAT rate assumed 21%"}

	inv := BuildInvoice(f, professionalFigures(), "Servicios profesionales", 0.9, warnings)

	assert.Equal(t, "F-2025/0042", inv.InvoiceNumber)
	assert.Equal(t, "B12345678", inv.Issuer.TaxID)
	assert.True(t, decimal.NewFromInt(150).Equal(inv.IRPFAmount))
	assert.True(t, decimal.NewFromInt(-150).Equal(inv.IRPFPrinted))
	assert.Equal(t, models.NewPercent(-15), inv.IRPFRate)
	assert.True(t, decimal.NewFromInt(1060).Equal(inv.Total))
	assert.Equal(t, "Servicios profesionales", inv.CategoryHint)

	// the record owns its warnings
	warnings[0] = "changed"
	assert.Equal(t, []string{"VAT rate assumed 21%"}, inv.Warnings)
}

func TestBuildInvoiceDropsSpuriousPrintedIRPF(t *testing.T) {
	fig := professionalFigures()
	fig.IRPFAmount = amount("0")
	fig.IRPFRate = models.NewPercent(0)

	inv := BuildInvoice(extract.Fields{IRPFPrinted: amount("15")}, fig, "", 0, nil)

	assert.True(t, inv.IRPFPrinted.IsZero())
	assert.NotNil(t, inv.Warnings)
}

func TestBuildExpense(t *testing.T) {
	f := extract.Fields{Vendor: "BAR EL RINCÓN", PaymentMethod: "Tarjeta"}
	exp := BuildExpense(f, professionalFigures(), "Restauración", 0.5, nil)

	assert.Equal(t, "BAR EL RINCÓN", exp.Description)
	assert.True(t, decimal.NewFromInt(1060).Equal(exp.Amount))
	assert.Equal(t, models.NewPercent(15), exp.IRPFRate)
	assert.True(t, exp.Subtotal.Valid)

	exp = BuildExpense(extract.Fields{}, professionalFigures(), "Otros", 0, nil)
	assert.Equal(t, "Gasto otros", exp.Description)
}

func TestToTransaction(t *testing.T) {
	exp := BuildExpense(extract.Fields{Concept: "Comida con cliente"}, professionalFigures(), "Restauración", 0.5, nil)
	id := uuid.MustParse("9b2d3c1e-8f4a-4b5c-9d6e-7f8a9b0c1d2e")
	ec := models.ExpenseContext{UserID: "user-1", CategoryID: "cat-7"}

	rec := ToTransaction(exp, ec, id)

	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "1060.00", rec.Amount)
	assert.Equal(t, models.TransactionExpense, rec.Type)
	assert.Equal(t, "cat-7", rec.CategoryID)
	assert.Contains(t, rec.Notes, "IRPF (-15%): -150,00 €")
	assert.Contains(t, rec.Notes, "Categoría sugerida: Restauración")
	assert.Len(t, rec.AdditionalTaxes, 2)
}

func TestInvoiceToTransaction(t *testing.T) {
	inv := BuildInvoice(extract.Fields{
		InvoiceNumber: "2025/007",
		Issuer:        models.Party{TaxID: "B12345678"},
	}, professionalFigures(), "", 1, nil)
	id := uuid.New()

	rec := InvoiceToTransaction(inv, models.ExpenseContext{UserID: "u", TaxID: "b-12345678"}, id)
	assert.Equal(t, models.TransactionIncome, rec.Type)
	assert.Equal(t, "Factura 2025/007", rec.Description)
	assert.Equal(t, "2025/007", rec.InvoiceNumber)
	assert.Equal(t, "B12345678", rec.IssuerTaxID)
	assert.NotContains(t, rec.Notes, "Categoría")

	rec = InvoiceToTransaction(inv, models.ExpenseContext{UserID: "u", TaxID: "12345678Z"}, id)
	assert.Equal(t, models.TransactionExpense, rec.Type)

	rec = InvoiceToTransaction(inv, models.ExpenseContext{UserID: "u"}, id)
	assert.Equal(t, models.TransactionExpense, rec.Type)
}
