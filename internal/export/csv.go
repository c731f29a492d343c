// Package export writes stored transactions as CSV for spreadsheets and
// accounting tools.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/facturaIA/fiscal-extractor/internal/models"
)

// DefaultDelimiter suits spreadsheets configured for a Spanish locale,
// where the comma is the decimal separator
const DefaultDelimiter = ';'

// Row is one exported transaction
type Row struct {
	Date          string `csv:"fecha"`
	Type          string `csv:"tipo"`
	Description   string `csv:"descripcion"`
	Amount        string `csv:"importe"`
	VATRate       string `csv:"iva"`
	Withholding   string `csv:"irpf"`
	InvoiceNumber string `csv:"factura"`
	IssuerTaxID   string `csv:"nif_emisor"`
	PaymentMethod string `csv:"forma_pago"`
	CategoryID    string `csv:"categoria"`
	ID            string `csv:"id"`
}

// Rows flattens transactions into export rows
func Rows(records []models.TransactionRecord) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := Row{
			Date:          rec.Date.Format("02/01/2006"),
			Type:          rec.Type,
			Description:   rec.Description,
			Amount:        rec.Amount,
			InvoiceNumber: rec.InvoiceNumber,
			IssuerTaxID:   rec.IssuerTaxID,
			PaymentMethod: rec.PaymentMethod,
			CategoryID:    rec.CategoryID,
			ID:            rec.ID.String(),
		}
		for _, tax := range rec.AdditionalTaxes {
			value := tax.Rate.String()
			if tax.IsPercentage {
				value += "%"
			}
			switch tax.Name {
			case "IVA":
				row.VATRate = value
			case "IRPF":
				row.Withholding = value
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes the transactions with a header row
func WriteCSV(w io.Writer, records []models.TransactionRecord, delimiter rune) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = delimiter

	if err := gocsv.MarshalCSV(Rows(records), gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
