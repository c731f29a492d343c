package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// Migrate applies pending schema migrations on the global pool
func Migrate(ctx context.Context) error {
	if Pool == nil {
		return ErrNoDatabase
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(log)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(Pool)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	log.Info("Database schema up to date")
	return nil
}
