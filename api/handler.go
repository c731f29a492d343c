package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/facturaIA/fiscal-extractor/internal/auth"
	"github.com/facturaIA/fiscal-extractor/internal/db"
	"github.com/facturaIA/fiscal-extractor/internal/engine"
	"github.com/facturaIA/fiscal-extractor/internal/export"
	"github.com/facturaIA/fiscal-extractor/internal/mapper"
	"github.com/facturaIA/fiscal-extractor/internal/metrics"
	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/services"
)

const (
	MaxTextSize = 1 * 1024 * 1024 // 1MB of OCR text
	Version     = "1.0.0"

	defaultListLimit = 100
)

var log = logrus.New()

var tracer = otel.Tracer("fiscal-extractor/api")

// SetLogger replaces the package logger
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

// TransactionStore persists mapped records
type TransactionStore interface {
	SaveTransaction(ctx context.Context, rec *models.TransactionRecord) error
	LastInvoiceNumber(ctx context.Context, userID, issuerTaxID string) (string, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.TransactionRecord, error)
	GetMonthlyStats(ctx context.Context, userID string, month time.Time) (*db.MonthlyStats, error)
	DeleteTransaction(ctx context.Context, userID string, id uuid.UUID) (string, error)
}

// TextArchive keeps the submitted OCR text
type TextArchive interface {
	ArchiveText(ctx context.Context, userID, name, text string) (string, error)
	PresignedURL(ctx context.Context, objectPath string) (string, error)
	Delete(ctx context.Context, objectPath string) error
}

// Handler handles HTTP requests for fiscal extraction
type Handler struct {
	config  *models.Config
	engine  *engine.Engine
	store   TransactionStore
	archive TextArchive
	limiter *rate.Limiter
}

// NewHandler creates a new API handler. store and archive may be nil.
func NewHandler(config *models.Config, eng *engine.Engine, store TransactionStore, archive TextArchive) *Handler {
	return &Handler{
		config:  config,
		engine:  eng,
		store:   store,
		archive: archive,
		limiter: NewRateLimiter(config.RateLimit),
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(metrics.Middleware)

	apiRouter := router.PathPrefix("/api").Subrouter()
	if h.limiter != nil {
		apiRouter.Use(RateLimit(h.limiter))
	}

	// Extraction
	apiRouter.HandleFunc("/extract/invoice", h.ExtractInvoice).Methods("POST")
	apiRouter.HandleFunc("/extract/expense", h.ExtractExpense).Methods("POST")
	apiRouter.HandleFunc("/invoices/sequence", h.CheckSequence).Methods("POST")

	// Stored transactions
	apiRouter.HandleFunc("/transactions", h.GetTransactions).Methods("GET")
	apiRouter.HandleFunc("/transactions/export", h.ExportTransactions).Methods("GET")
	apiRouter.HandleFunc("/transactions/{id}", h.DeleteTransaction).Methods("DELETE")
	apiRouter.HandleFunc("/stats", h.GetStats).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	Database  ServiceStatus `json:"database"`
	Storage   ServiceStatus `json:"storage"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint. The extraction core has no dependencies, so missing
// persistence or storage never makes the service unhealthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Database: status(h.store != nil, "database pool not initialized"),
		Storage:  status(h.archive != nil, "storage client not initialized"),
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func status(available bool, reason string) ServiceStatus {
	if !available {
		return ServiceStatus{Available: false, Error: reason}
	}
	return ServiceStatus{Available: true}
}

// ExtractInvoiceRequest is the body of POST /api/extract/invoice
type ExtractInvoiceRequest struct {
	Text              string `json:"text"`
	LastInvoiceNumber string `json:"lastInvoiceNumber,omitempty"`
	Save              bool   `json:"save,omitempty"`
}

// ExtractInvoiceResponse is returned by POST /api/extract/invoice
type ExtractInvoiceResponse struct {
	Success           bool                      `json:"success"`
	Invoice           models.ExtractedInvoice   `json:"invoice"`
	IsValidSequence   bool                      `json:"isValidSequence"`
	LastInvoiceNumber string                    `json:"lastInvoiceNumber,omitempty"`
	Transaction       *models.TransactionRecord `json:"transaction,omitempty"`
	ArchivePath       string                    `json:"archivePath,omitempty"`
}

// ExtractInvoice extracts a formal invoice from OCR text
func (h *Handler) ExtractInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ExtractInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, span := tracer.Start(ctx, "ExtractInvoice")
	defer span.End()

	res := h.engine.ExtractInvoice(req.Text, req.LastInvoiceNumber)
	inv := res.Invoice
	last := req.LastInvoiceNumber

	// Without a caller-supplied number, compare with the last one stored for this issuer
	if last == "" && h.store != nil && inv.Issuer.TaxID != "" && !strings.HasPrefix(inv.InvoiceNumber, engine.AutoNumberPrefix) {
		stored, err := h.store.LastInvoiceNumber(ctx, claims.UserID, inv.Issuer.TaxID)
		if err != nil {
			log.WithError(err).Warn("last invoice number lookup failed")
		} else if stored != "" {
			last = stored
			res.IsValidSequence = services.IsSequential(inv.InvoiceNumber, stored)
		}
	}

	metrics.ObserveExtraction("invoice", len(inv.Warnings), inv.Confidence)
	span.SetAttributes(
		attribute.Int("extraction.warnings", len(inv.Warnings)),
		attribute.Float64("extraction.confidence", inv.Confidence),
		attribute.Bool("invoice.sequential", res.IsValidSequence),
	)
	if !res.IsValidSequence {
		metrics.NonSequentialInvoices.Inc()
	}

	response := ExtractInvoiceResponse{
		Success:           true,
		Invoice:           inv,
		IsValidSequence:   res.IsValidSequence,
		LastInvoiceNumber: last,
	}

	if req.Save && h.store == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	id := uuid.New()
	response.ArchivePath = h.archiveText(ctx, claims.UserID, id, req.Text)

	if req.Save {
		ec := models.ExpenseContext{UserID: claims.UserID, TaxID: claims.TaxID}
		txn := mapper.InvoiceToTransaction(inv, ec, id)
		txn.ArchivePath = response.ArchivePath
		if err := h.store.SaveTransaction(ctx, &txn); err != nil {
			log.WithError(err).Error("failed to save invoice transaction")
			h.discardArchive(ctx, response.ArchivePath)
			h.sendError(w, http.StatusInternalServerError, "failed to save transaction")
			return
		}
		response.Transaction = &txn
	}

	json.NewEncoder(w).Encode(response)
}

// ExtractExpenseRequest is the body of POST /api/extract/expense
type ExtractExpenseRequest struct {
	Text       string `json:"text"`
	CategoryID string `json:"categoryId,omitempty"`
}

// ExtractExpenseResponse is returned by POST /api/extract/expense
type ExtractExpenseResponse struct {
	Success     bool                     `json:"success"`
	Expense     models.ExtractedExpense  `json:"expense"`
	Transaction models.TransactionRecord `json:"transaction"`
	Saved       bool                     `json:"saved"`
	ArchivePath string                   `json:"archivePath,omitempty"`
}

// ExtractExpense extracts a receipt and stores it as an expense transaction
func (h *Handler) ExtractExpense(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ExtractExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, span := tracer.Start(ctx, "ExtractExpense")
	defer span.End()

	ec := models.ExpenseContext{UserID: claims.UserID, CategoryID: req.CategoryID, TaxID: claims.TaxID}
	exp := h.engine.ExtractExpense(req.Text, ec)
	metrics.ObserveExtraction("expense", len(exp.Warnings), exp.Confidence)
	span.SetAttributes(
		attribute.Int("extraction.warnings", len(exp.Warnings)),
		attribute.Float64("extraction.confidence", exp.Confidence),
	)

	id := uuid.New()
	response := ExtractExpenseResponse{
		Success:     true,
		Expense:     exp,
		Transaction: mapper.ToTransaction(exp, ec, id),
		ArchivePath: h.archiveText(ctx, claims.UserID, id, req.Text),
	}
	response.Transaction.ArchivePath = response.ArchivePath

	if h.store != nil {
		if err := h.store.SaveTransaction(ctx, &response.Transaction); err != nil {
			log.WithError(err).Error("failed to save expense transaction")
			h.discardArchive(ctx, response.ArchivePath)
			h.sendError(w, http.StatusInternalServerError, "failed to save transaction")
			return
		}
		response.Saved = true
	}

	json.NewEncoder(w).Encode(response)
}

// SequenceRequest is the body of POST /api/invoices/sequence
type SequenceRequest struct {
	Number     string `json:"number"`
	LastNumber string `json:"lastNumber"`
}

// CheckSequence compares two invoice numbers
func (h *Handler) CheckSequence(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req SequenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Number == "" {
		h.sendError(w, http.StatusBadRequest, "number is required")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":         true,
		"isValidSequence": services.IsSequential(req.Number, req.LastNumber),
		"convention":      services.DetectConvention(req.Number),
	})
}

// GetTransactions returns the user's stored transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if h.store == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	transactions, err := h.store.ListTransactions(ctx, claims.UserID, limit)
	if err != nil {
		log.WithError(err).Error("failed to list transactions")
		h.sendError(w, http.StatusInternalServerError, "failed to get transactions")
		return
	}

	if h.archive != nil {
		for i := range transactions {
			if transactions[i].ArchivePath == "" {
				continue
			}
			url, err := h.archive.PresignedURL(ctx, transactions[i].ArchivePath)
			if err != nil {
				log.WithError(err).WithField("path", transactions[i].ArchivePath).Warn("failed to presign OCR text")
				continue
			}
			transactions[i].TextURL = url
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      true,
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// ExportTransactions returns the user's stored transactions as CSV
func (h *Handler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if h.store == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	transactions, err := h.store.ListTransactions(ctx, claims.UserID, limit)
	if err != nil {
		log.WithError(err).Error("failed to list transactions for export")
		h.sendError(w, http.StatusInternalServerError, "failed to get transactions")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transacciones.csv"`)
	if err := export.WriteCSV(w, transactions, export.DefaultDelimiter); err != nil {
		log.WithError(err).Error("failed to write CSV export")
	}
}

// limit reads ?limit=N; on failure it writes the error response
func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		h.sendError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return n, true
}

// DeleteTransaction removes a stored transaction
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if h.store == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	archivePath, err := h.store.DeleteTransaction(ctx, claims.UserID, id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		h.sendError(w, http.StatusNotFound, "transaction not found")
		return
	case err != nil:
		log.WithError(err).Error("failed to delete transaction")
		h.sendError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}

	// the record is already gone, a leftover text object is only logged
	h.discardArchive(ctx, archivePath)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "transaction deleted",
	})
}

// GetStats returns monthly totals. ?month=YYYY-MM, default the current month.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	claims, err := auth.GetClaimsFromContext(ctx)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if h.store == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	month := time.Now()
	if v := r.URL.Query().Get("month"); v != "" {
		month, err = time.Parse("2006-01", v)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid month, expected YYYY-MM")
			return
		}
	}

	stats, err := h.store.GetMonthlyStats(ctx, claims.UserID, month)
	if err != nil {
		log.WithError(err).Error("failed to get stats")
		h.sendError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

// archiveText stores the OCR text when an archive is configured. Failures
// are logged, never returned: archiving is optional.
func (h *Handler) archiveText(ctx context.Context, userID string, id uuid.UUID, text string) string {
	if h.archive == nil {
		return ""
	}
	path, err := h.archive.ArchiveText(ctx, userID, id.String(), text)
	if err != nil {
		log.WithError(err).WithField("user", userID).Warn("failed to archive OCR text")
		return ""
	}
	return path
}

// discardArchive removes archived text no stored transaction points to.
// Failures are logged.
func (h *Handler) discardArchive(ctx context.Context, path string) {
	if path == "" || h.archive == nil {
		return
	}
	if err := h.archive.Delete(ctx, path); err != nil {
		log.WithError(err).WithField("path", path).Warn("failed to delete archived OCR text")
	}
}

// decode reads a JSON body; on failure it writes the error response
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxTextSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.sendError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
