package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/fiscal-extractor/internal/auth"
	"github.com/facturaIA/fiscal-extractor/internal/db"
	"github.com/facturaIA/fiscal-extractor/internal/engine"
	"github.com/facturaIA/fiscal-extractor/internal/models"
)

const invoiceText = `ESTUDIO GRÁFICO LUNA S.L.
CIF: B12345678
FACTURA Nº: F-2025/0042
Fecha: 14/03/2025
Base imponible: 1.000,00 €
IVA (21%): 210,00 €
IRPF (15%): -150,00 €
Total: 1.060,00 €`

type fakeStore struct {
	saved   []models.TransactionRecord
	last    map[string]string
	deleted []uuid.UUID
	saveErr error
}

func (f *fakeStore) SaveTransaction(_ context.Context, rec *models.TransactionRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	rec.CreatedAt = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	f.saved = append(f.saved, *rec)
	return nil
}

func (f *fakeStore) LastInvoiceNumber(_ context.Context, userID, issuerTaxID string) (string, error) {
	return f.last[userID+"/"+issuerTaxID], nil
}

func (f *fakeStore) ListTransactions(_ context.Context, userID string, limit int) ([]models.TransactionRecord, error) {
	if limit < len(f.saved) {
		return f.saved[:limit], nil
	}
	return f.saved, nil
}

func (f *fakeStore) GetMonthlyStats(_ context.Context, userID string, month time.Time) (*db.MonthlyStats, error) {
	return &db.MonthlyStats{Month: month.Format("2006-01"), Transactions: len(f.saved), Expenses: "0.00", Income: "0.00"}, nil
}

func (f *fakeStore) DeleteTransaction(_ context.Context, userID string, id uuid.UUID) (string, error) {
	for _, rec := range f.saved {
		if rec.ID == id {
			f.deleted = append(f.deleted, id)
			return rec.ArchivePath, nil
		}
	}
	return "", db.ErrNotFound
}

type fakeArchive struct {
	texts   map[string]string
	removed []string
	err     error
}

func (f *fakeArchive) ArchiveText(_ context.Context, userID, name, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := "ocr-text/" + userID + "/" + name + ".txt"
	f.texts[path] = text
	return path, nil
}

func (f *fakeArchive) PresignedURL(_ context.Context, objectPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://minio.local/" + objectPath + "?X-Amz-Expires=3600", nil
}

func (f *fakeArchive) Delete(_ context.Context, objectPath string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.texts, objectPath)
	f.removed = append(f.removed, objectPath)
	return nil
}

func newTestRouter(t *testing.T, store TransactionStore, archive TextArchive) http.Handler {
	t.Helper()
	logger, _ := test.NewNullLogger()
	SetLogger(logger)

	eng := engine.New(
		engine.WithClock(engine.FixedClock(time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))),
		engine.WithLogger(logger),
	)
	return NewHandler(&models.Config{}, eng, store, archive).SetupRoutes()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{UserID: "user-1", TaxID: "B12345678"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestExtractInvoiceEndpoint(t *testing.T) {
	archive := &fakeArchive{texts: map[string]string{}}
	router := newTestRouter(t, nil, archive)

	rec := do(t, router, http.MethodPost, "/api/extract/invoice", ExtractInvoiceRequest{
		Text:              invoiceText,
		LastInvoiceNumber: "F-2025/0041",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ExtractInvoiceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.IsValidSequence)
	assert.Equal(t, "F-2025/0042", resp.Invoice.InvoiceNumber)
	assert.Equal(t, "1060", resp.Invoice.Total.String())
	assert.Nil(t, resp.Transaction)

	require.NotEmpty(t, resp.ArchivePath)
	assert.Equal(t, invoiceText, archive.texts[resp.ArchivePath])
}

func TestExtractInvoiceUsesStoredLastNumber(t *testing.T) {
	store := &fakeStore{last: map[string]string{"user-1/B12345678": "F-2025/0030"}}
	archive := &fakeArchive{texts: map[string]string{}}
	router := newTestRouter(t, store, archive)

	rec := do(t, router, http.MethodPost, "/api/extract/invoice", ExtractInvoiceRequest{Text: invoiceText, Save: true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ExtractInvoiceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.IsValidSequence)
	assert.Equal(t, "F-2025/0030", resp.LastInvoiceNumber)

	require.NotNil(t, resp.Transaction)
	assert.Equal(t, models.TransactionIncome, resp.Transaction.Type)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "F-2025/0042", store.saved[0].InvoiceNumber)
	assert.Equal(t, resp.ArchivePath, store.saved[0].ArchivePath)
	assert.Contains(t, archive.texts, store.saved[0].ArchivePath)
}

func TestExtractInvoiceSaveWithoutDatabase(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := do(t, router, http.MethodPost, "/api/extract/invoice", ExtractInvoiceRequest{Text: invoiceText, Save: true})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExtractExpenseEndpoint(t *testing.T) {
	store := &fakeStore{}
	archive := &fakeArchive{err: errors.New("bucket missing")}
	router := newTestRouter(t, store, archive)

	text := "BAR EL RINCÓN\n14/03/2025\nMenú del día 12,00\nTotal: 13,50\nIVA 10% incluido"
	rec := do(t, router, http.MethodPost, "/api/extract/expense", ExtractExpenseRequest{Text: text, CategoryID: "food"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ExtractExpenseResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Saved)
	assert.Empty(t, resp.ArchivePath)
	assert.Equal(t, "13.50", resp.Transaction.Amount)
	assert.Equal(t, models.TransactionExpense, resp.Transaction.Type)
	assert.Equal(t, "food", resp.Transaction.CategoryID)
	assert.Contains(t, resp.Transaction.Notes, "Categoría sugerida: Restauración")

	require.Len(t, store.saved, 1)
	assert.Equal(t, "user-1", store.saved[0].UserID)
}

func TestExtractExpenseSaveFailure(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("connection refused")}
	archive := &fakeArchive{texts: map[string]string{}}
	router := newTestRouter(t, store, archive)

	rec := do(t, router, http.MethodPost, "/api/extract/expense", ExtractExpenseRequest{Text: "Total: 5,00"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// the text of an unsaved transaction is not kept
	require.Len(t, archive.removed, 1)
	assert.Empty(t, archive.texts)
}

func TestExtractInvoiceSaveFailureDiscardsText(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("connection refused")}
	archive := &fakeArchive{texts: map[string]string{}}
	router := newTestRouter(t, store, archive)

	rec := do(t, router, http.MethodPost, "/api/extract/invoice", ExtractInvoiceRequest{Text: invoiceText, Save: true})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, archive.removed, 1)
	assert.Empty(t, archive.texts)
}

func TestExtractRequiresClaims(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/extract/invoice", strings.NewReader(`{"text":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractInvalidBody(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/extract/expense", strings.NewReader(`{"text":`))
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{UserID: "user-1"}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckSequenceEndpoint(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	tests := []struct {
		number, last string
		expected     bool
	}{
		{"124", "123", true},
		{"F-124", "F-123", true},
		{"2026/001", "2025/045", true},
		{"2025/050", "2025/045", false},
		{"ABC", "123", true},
	}

	for _, tc := range tests {
		rec := do(t, router, http.MethodPost, "/api/invoices/sequence", SequenceRequest{Number: tc.number, LastNumber: tc.last})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			IsValidSequence bool `json:"isValidSequence"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, tc.expected, resp.IsValidSequence, "%s after %s", tc.number, tc.last)
	}

	rec := do(t, router, http.MethodPost, "/api/invoices/sequence", SequenceRequest{LastNumber: "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactionEndpoints(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{saved: []models.TransactionRecord{{ID: id, UserID: "user-1", Amount: "10.00"}}}
	router := newTestRouter(t, store, nil)

	rec := do(t, router, http.MethodGet, "/api/transactions?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(t, router, http.MethodGet, "/api/transactions?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/stats?month=2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"month":"2025-03"`)

	rec = do(t, router, http.MethodGet, "/api/stats?month=march", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/transactions/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "fecha;tipo;"))
	assert.Contains(t, rec.Body.String(), id.String())

	rec = do(t, router, http.MethodDelete, "/api/transactions/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{id}, store.deleted)

	rec = do(t, router, http.MethodDelete, "/api/transactions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/transactions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransactionEndpointsWithArchive(t *testing.T) {
	id := uuid.New()
	path := "ocr-text/user-1/" + id.String() + ".txt"
	store := &fakeStore{saved: []models.TransactionRecord{{ID: id, UserID: "user-1", Amount: "10.00", ArchivePath: path}}}
	archive := &fakeArchive{texts: map[string]string{path: invoiceText}}
	router := newTestRouter(t, store, archive)

	rec := do(t, router, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Transactions []models.TransactionRecord `json:"transactions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, "https://minio.local/"+path+"?X-Amz-Expires=3600", list.Transactions[0].TextURL)

	rec = do(t, router, http.MethodDelete, "/api/transactions/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{path}, archive.removed)
	assert.Empty(t, archive.texts)
}

func TestDeleteTransactionIgnoresArchiveFailure(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{saved: []models.TransactionRecord{{ID: id, UserID: "user-1", ArchivePath: "ocr-text/x.txt"}}}
	router := newTestRouter(t, store, &fakeArchive{err: errors.New("bucket missing")})

	rec := do(t, router, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "textUrl")

	rec = do(t, router, http.MethodDelete, "/api/transactions/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{id}, store.deleted)
}

func TestTransactionEndpointsWithoutDatabase(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := do(t, router, http.MethodGet, "/api/transactions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.Database.Available)
	assert.False(t, health.Storage.Available)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fiscal_http_requests_total")
}
