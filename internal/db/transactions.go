package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/facturaIA/fiscal-extractor/internal/models"
)

// PgxPool is the subset of pgxpool.Pool the store needs
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxPool = (*pgxpool.Pool)(nil)

const insertTransactionQuery = `
		INSERT INTO transactions (
			id, user_id, description, amount, date, type, category_id,
			payment_method, notes, additional_taxes, invoice_number, issuer_tax_id, archive_path
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10::jsonb, $11, $12, $13)
		RETURNING created_at
	`

const lastInvoiceNumberQuery = `
		SELECT invoice_number
		FROM transactions
		WHERE user_id = $1 AND issuer_tax_id = $2 AND invoice_number <> ''
		ORDER BY date DESC, created_at DESC
		LIMIT 1
	`

const listTransactionsQuery = `
		SELECT id, user_id, description, amount::text, date, type, COALESCE(category_id, ''),
		       COALESCE(payment_method, ''), COALESCE(notes, ''), COALESCE(additional_taxes::text, '[]'),
		       COALESCE(invoice_number, ''), COALESCE(issuer_tax_id, ''), COALESCE(archive_path, ''), created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

const monthlyStatsQuery = `
		SELECT
			COUNT(*),
			COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0)::text,
			COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0)::text
		FROM transactions
		WHERE user_id = $1 AND DATE_TRUNC('month', date) = DATE_TRUNC('month', $2::date)
	`

const deleteTransactionQuery = `DELETE FROM transactions WHERE id = $1 AND user_id = $2 RETURNING COALESCE(archive_path, '')`

// ErrNotFound is returned when a transaction does not exist for the user
var ErrNotFound = errors.New("transaction not found")

// TransactionStore persists mapped transactions
type TransactionStore struct {
	pool PgxPool
}

// NewTransactionStore creates a store over pool
func NewTransactionStore(pool PgxPool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// SaveTransaction inserts rec and fills its CreatedAt. A nil ID is replaced
// with a new one.
func (s *TransactionStore) SaveTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	if s == nil || s.pool == nil {
		return ErrNoDatabase
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	ctx, span := otel.Tracer("TransactionStore").Start(ctx, "SaveTransaction", trace.WithAttributes(
		attribute.String("transaction.id", rec.ID.String()),
		attribute.String("transaction.type", rec.Type),
	))
	defer span.End()

	taxes := rec.AdditionalTaxes
	if taxes == nil {
		taxes = []models.AdditionalTax{}
	}
	taxesJSON, err := json.Marshal(taxes)
	if err != nil {
		return fmt.Errorf("failed to encode additional taxes: %w", err)
	}

	err = s.pool.QueryRow(ctx, insertTransactionQuery,
		rec.ID, rec.UserID, rec.Description, rec.Amount, rec.Date, rec.Type, rec.CategoryID,
		rec.PaymentMethod, rec.Notes, string(taxesJSON), rec.InvoiceNumber, rec.IssuerTaxID, rec.ArchivePath,
	).Scan(&rec.CreatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	span.SetStatus(codes.Ok, "Transaction saved")

	log.WithFields(logrus.Fields{
		"id":   rec.ID,
		"user": rec.UserID,
		"type": rec.Type,
	}).Debug("transaction saved")
	return nil
}

// LastInvoiceNumber returns the most recent invoice number the user recorded
// for an issuer, or "" when there is none
func (s *TransactionStore) LastInvoiceNumber(ctx context.Context, userID, issuerTaxID string) (string, error) {
	if s == nil || s.pool == nil {
		return "", ErrNoDatabase
	}

	ctx, span := otel.Tracer("TransactionStore").Start(ctx, "LastInvoiceNumber", trace.WithAttributes(
		attribute.String("issuer.tax_id", issuerTaxID),
	))
	defer span.End()

	var number string
	err := s.pool.QueryRow(ctx, lastInvoiceNumberQuery, userID, issuerTaxID).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB SELECT failed")
		return "", fmt.Errorf("failed to look up last invoice number: %w", err)
	}
	span.SetAttributes(attribute.String("invoice.last_number", number))
	return number, nil
}

// ListTransactions returns the user's latest transactions, newest first
func (s *TransactionStore) ListTransactions(ctx context.Context, userID string, limit int) ([]models.TransactionRecord, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNoDatabase
	}

	rows, err := s.pool.Query(ctx, listTransactionsQuery, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.TransactionRecord
	for rows.Next() {
		var rec models.TransactionRecord
		var taxesJSON string
		err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.Description, &rec.Amount, &rec.Date, &rec.Type, &rec.CategoryID,
			&rec.PaymentMethod, &rec.Notes, &taxesJSON,
			&rec.InvoiceNumber, &rec.IssuerTaxID, &rec.ArchivePath, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(taxesJSON), &rec.AdditionalTaxes); err != nil {
			return nil, fmt.Errorf("failed to decode additional taxes of %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// MonthlyStats summarizes one month of a user's transactions
type MonthlyStats struct {
	Month        string `json:"month"`
	Transactions int    `json:"transactions"`
	Expenses     string `json:"expenses"`
	Income       string `json:"income"`
}

// GetMonthlyStats returns the totals for the month containing month
func (s *TransactionStore) GetMonthlyStats(ctx context.Context, userID string, month time.Time) (*MonthlyStats, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNoDatabase
	}

	stats := &MonthlyStats{
		Month: month.Format("2006-01"),
	}

	err := s.pool.QueryRow(ctx, monthlyStatsQuery, userID, month).Scan(
		&stats.Transactions,
		&stats.Expenses,
		&stats.Income,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute monthly stats: %w", err)
	}

	return stats, nil
}

// DeleteTransaction removes one of the user's transactions and returns the
// archive path of its OCR text ("" when none was archived)
func (s *TransactionStore) DeleteTransaction(ctx context.Context, userID string, id uuid.UUID) (string, error) {
	if s == nil || s.pool == nil {
		return "", ErrNoDatabase
	}

	var archivePath string
	err := s.pool.QueryRow(ctx, deleteTransactionQuery, id, userID).Scan(&archivePath)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete transaction: %w", err)
	}
	return archivePath, nil
}
