package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/facturaIA/fiscal-extractor/internal/models"
)

var ErrNoDatabase = errors.New("database not available")

var log = logrus.New()

// SetLogger replaces the package logger
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

// Pool is the global database connection pool
var Pool *pgxpool.Pool

// Init initializes the database connection pool. Without any database
// configuration it returns ErrNoDatabase and the service runs extraction-only.
func Init(cfg models.DatabaseConfig) error {
	databaseURL := cfg.URL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		// Build from individual environment variables
		host := os.Getenv("DB_HOST")
		port := os.Getenv("DB_PORT")
		user := os.Getenv("DB_USER")
		password := os.Getenv("DB_PASSWORD")
		dbname := os.Getenv("DB_NAME")

		if host == "" || user == "" || dbname == "" {
			log.Info("No database configuration found - running in extraction-only mode")
			return ErrNoDatabase
		}
		if port == "" {
			port = "5432"
		}
		databaseURL = fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
			user, password, host, port, dbname)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	Pool = pool
	log.Info("Database connection pool initialized successfully")
	return nil
}

// Close closes the database connection pool
func Close() {
	if Pool != nil {
		Pool.Close()
		log.Info("Database connection pool closed")
	}
}

// DefaultStore returns a store over the global pool, or nil when Init did
// not succeed
func DefaultStore() *TransactionStore {
	if Pool == nil {
		return nil
	}
	return NewTransactionStore(Pool)
}
