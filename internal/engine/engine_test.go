package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/services"
)

var fixedNow = time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)

const professionalInvoice = `ESTUDIO GRÁFICO LUNA S.L.
CIF: B12345678
Calle Mayor 12, 2º B
28013 Madrid

FACTURA Nº: F-2025/0042
Fecha de emisión: 14/03/2025

Cliente: José Martín Pérez
NIF: 12345678Z

Descripción            Uds   Precio   Importe
Diseño de identidad corporativa   1   1.000,00   1.000,00

Base imponible: 1.000,00 €
IVA (21%): 210,00 €
IRPF (15%): -150,00 €
Total: 1.060,00 €

Forma de pago: Transferencia bancaria
IBAN: ES91 2100 0418 4502 0005 1332`

func newTestEngine(opts ...Option) *Engine {
	logger, _ := test.NewNullLogger()
	return New(append([]Option{WithClock(FixedClock(fixedNow)), WithLogger(logger)}, opts...)...)
}

func requireDecimal(t *testing.T, expected string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(got), "expected %s, got %s", expected, got)
}

func TestExtractInvoiceComplete(t *testing.T) {
	res := newTestEngine().ExtractInvoice(professionalInvoice, "F-2025/0041")
	inv := res.Invoice

	assert.True(t, res.IsValidSequence)
	assert.Equal(t, "F-2025/0042", inv.InvoiceNumber)
	assert.Equal(t, time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, "B12345678", inv.Issuer.TaxID)
	assert.Equal(t, "12345678Z", inv.Client.TaxID)
	assert.Equal(t, "Diseño de identidad corporativa", inv.Concept)

	requireDecimal(t, "1000", inv.Base)
	requireDecimal(t, "210", inv.VATAmount)
	assert.Equal(t, models.NewPercent(21), inv.VATRate)
	requireDecimal(t, "150", inv.IRPFAmount)
	requireDecimal(t, "-150", inv.IRPFPrinted)
	assert.Equal(t, models.NewPercent(-15), inv.IRPFRate)
	requireDecimal(t, "1060", inv.Total)

	assert.Equal(t, "Transferencia bancaria", inv.PaymentMethod)
	assert.Equal(t, "ES91 2100 0418 4502 0005 1332", inv.BankAccount)
	assert.Equal(t, string(services.CategoryProfessional), inv.CategoryHint)
	assert.Empty(t, inv.Warnings)

	// B12345678 fails its control check, so only that bonus is missing
	assert.InDelta(t, 0.9, inv.Confidence, 0.001)
}

func TestExtractInvoiceEndToEnd(t *testing.T) {
	text := "Factura nº: 2025-118\nFecha: 05/02/2025\n" +
		"Base imponible: 1.000,00\nIVA (21%): 210,00\nIRPF (15%): 150,00\nTotal: 1.060,00"

	inv := newTestEngine().ExtractInvoice(text, "").Invoice

	requireDecimal(t, "1000", inv.Base)
	requireDecimal(t, "210", inv.VATAmount)
	assert.Equal(t, models.NewPercent(21), inv.VATRate)
	requireDecimal(t, "150", inv.IRPFAmount)
	assert.Equal(t, models.NewPercent(-15), inv.IRPFRate)
	requireDecimal(t, "1060", inv.Total)
	assert.Empty(t, inv.Warnings)
}

func TestExtractInvoiceDerivedTotal(t *testing.T) {
	text := "Factura nº: 2025-119\nFecha: 05/02/2025\nBase imponible: 200,00\nIVA (21%): 42,00"

	inv := newTestEngine().ExtractInvoice(text, "").Invoice

	requireDecimal(t, "242", inv.Total)
	assert.True(t, inv.IRPFAmount.IsZero())
	assert.Empty(t, inv.Warnings)
}

func TestExtractInvoiceUnprintedNonIntegerRate(t *testing.T) {
	text := "Factura nº: 2025-122\nFecha: 05/02/2025\nBase imponible: 100,00\nIVA: 10,50\nTotal: 110,50"

	inv := newTestEngine().ExtractInvoice(text, "").Invoice

	requireDecimal(t, "10.5", inv.VATAmount)
	requireDecimal(t, "110.5", inv.Total)
	assert.Equal(t, models.NewPercent(11), inv.VATRate)
	assert.Empty(t, inv.Warnings)
}

func TestExtractInvoiceRateAnomaly(t *testing.T) {
	text := "Factura nº: 2025-120\nFecha: 05/02/2025\nBase imponible: 1.000,00\nIVA 150%"

	inv := newTestEngine().ExtractInvoice(text, "").Invoice

	assert.Equal(t, models.NewPercent(21), inv.VATRate)
	requireDecimal(t, "210", inv.VATAmount)
	requireDecimal(t, "1210", inv.Total)
	require.NotEmpty(t, inv.Warnings)
	assert.Contains(t, inv.Warnings[0], "150%")
}

func TestExtractInvoiceNoWithholdingWithoutContext(t *testing.T) {
	text := "Factura nº: 2025-121\nFecha: 05/02/2025\nBase imponible: 100,00\nOtro concepto: 15\nTotal: 121,00"

	inv := newTestEngine().ExtractInvoice(text, "").Invoice

	assert.True(t, inv.IRPFAmount.IsZero())
	assert.Equal(t, models.NewPercent(0), inv.IRPFRate)
	requireDecimal(t, "121", inv.Total)
	for _, w := range inv.Warnings {
		assert.NotContains(t, w, "IRPF")
	}
}

func TestExtractInvoiceTotalOverride(t *testing.T) {
	text := "Factura nº: 2025-122\nFecha: 05/02/2025\nBase imponible: 1.000,00\nIVA (21%): 210,00\nTotal: 1.215,00"

	t.Run("default thresholds override", func(t *testing.T) {
		inv := newTestEngine().ExtractInvoice(text, "").Invoice

		requireDecimal(t, "1210", inv.Total)
		require.Len(t, inv.Warnings, 2)
		assert.Contains(t, inv.Warnings[0], "does not match")
		assert.Contains(t, inv.Warnings[1], "overridden")
	})

	t.Run("high override threshold keeps the printed total", func(t *testing.T) {
		inv := newTestEngine(WithTolerances(0.5, 100)).ExtractInvoice(text, "").Invoice

		requireDecimal(t, "1215", inv.Total)
		require.Len(t, inv.Warnings, 1)
		assert.Contains(t, inv.Warnings[0], "does not match")
	})
}

func TestExtractInvoiceEmptyInput(t *testing.T) {
	res := newTestEngine().ExtractInvoice("  \n ", "123")
	inv := res.Invoice

	assert.True(t, res.IsValidSequence)
	assert.Equal(t, "AUTO-20250601", inv.InvoiceNumber)
	assert.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.True(t, inv.Total.IsZero())
	assert.Equal(t, string(services.CategoryOther), inv.CategoryHint)
	assert.Zero(t, inv.Confidence)

	require.Len(t, inv.Warnings, 3)
	assert.Equal(t, noContentWarning, inv.Warnings[0])
	assert.Contains(t, inv.Warnings[1], "AUTO-20250601")
	assert.Contains(t, inv.Warnings[2], "01/06/2025")
}

func TestExtractInvoiceFallbacksUseClock(t *testing.T) {
	text := "Base imponible: 100,00\nIVA (21%): 21,00"
	clock := FixedClock(time.Date(2024, time.December, 31, 23, 0, 0, 0, time.UTC))

	inv := newTestEngine(WithClock(clock)).ExtractInvoice(text, "").Invoice

	assert.Equal(t, "AUTO-20241231", inv.InvoiceNumber)
	assert.Equal(t, time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	require.Len(t, inv.Warnings, 2)
	assert.True(t, strings.HasPrefix(inv.Warnings[0], "invoice number not found"))
	assert.True(t, strings.HasPrefix(inv.Warnings[1], "issue date not found"))
}

func TestExtractInvoiceSequence(t *testing.T) {
	e := newTestEngine()

	assert.True(t, e.ExtractInvoice(professionalInvoice, "").IsValidSequence)
	assert.True(t, e.ExtractInvoice(professionalInvoice, "F-2025/0041").IsValidSequence)
	assert.False(t, e.ExtractInvoice(professionalInvoice, "F-2025/0030").IsValidSequence)
	assert.True(t, e.ExtractInvoice(professionalInvoice, "ABC").IsValidSequence)
}

func TestExtractInvoiceSingleDigitNumber(t *testing.T) {
	text := "Factura nº: 7\nFecha: 01/03/2025\nBase imponible: 100,00\nIVA (21%): 21,00\nTotal: 121,00"

	res := newTestEngine().ExtractInvoice(text, "6")

	assert.Equal(t, "7", res.Invoice.InvoiceNumber)
	assert.True(t, res.IsValidSequence)
	for _, w := range res.Invoice.Warnings {
		assert.NotContains(t, w, "invoice number not found")
	}
}

func TestExtractInvoiceIsDeterministic(t *testing.T) {
	e := newTestEngine()
	first := e.ExtractInvoice(professionalInvoice, "F-2025/0041")
	second := e.ExtractInvoice(professionalInvoice, "F-2025/0041")
	assert.Equal(t, first, second)
}

func TestExtractInvoiceArithmeticCloses(t *testing.T) {
	texts := []string{
		professionalInvoice,
		"Factura nº: 9-1\nSubtotal: 45,90\nIVA: 10%\nTotal 50,49",
		"Total a pagar: 121,00\nIVA (21%) incluido",
		"Honorarios profesionales\nBase: 500,00\nRetención IRPF 15%\nTotal: 530,00",
	}
	tolerance := decimal.NewFromFloat(services.DefaultTolerance)

	for _, text := range texts {
		inv := newTestEngine().ExtractInvoice(text, "").Invoice
		expected := inv.Base.Add(inv.VATAmount).Sub(inv.IRPFAmount)
		assert.True(t, inv.Total.Sub(expected).Abs().LessThanOrEqual(tolerance),
			"total %s vs parts %s for %q", inv.Total, expected, text)
		assert.False(t, inv.IRPFAmount.IsNegative())
	}
}

func TestExtractExpense(t *testing.T) {
	text := "BAR EL RINCÓN\nCIF B11111111\n14/03/2025\nCafé 1,50\nMenú del día 12,00\nTotal: 13,50\nIVA 10% incluido\nPagado con tarjeta"
	ec := models.ExpenseContext{UserID: "u-1", CategoryID: "food"}

	exp := newTestEngine().ExtractExpense(text, ec)

	requireDecimal(t, "13.50", exp.Amount)
	assert.Equal(t, time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC), exp.Date)
	assert.Equal(t, "BAR EL RINCÓN", exp.Vendor)
	assert.Equal(t, "BAR EL RINCÓN", exp.Description)
	assert.Equal(t, string(services.CategoryRestaurants), exp.CategoryHint)
	assert.Equal(t, models.NewPercent(10), exp.VATRate)
	assert.Equal(t, "Tarjeta", exp.PaymentMethod)
	assert.True(t, exp.IRPFAmount.IsZero())
}

func TestExtractExpenseEmptyInput(t *testing.T) {
	exp := newTestEngine().ExtractExpense("", models.ExpenseContext{UserID: "u-1"})

	assert.Equal(t, "Gasto otros", exp.Description)
	assert.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), exp.Date)
	require.Len(t, exp.Warnings, 2)
	assert.Equal(t, noContentWarning, exp.Warnings[0])
}

func TestEngineLogsPipeline(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	newTestEngine(WithLogger(logger)).ExtractInvoice(professionalInvoice, "")

	require.NotEmpty(t, hook.AllEntries())
	last := hook.LastEntry()
	assert.Equal(t, "invoice extracted", last.Message)
	assert.Equal(t, "F-2025/0042", last.Data["invoice"])
}
