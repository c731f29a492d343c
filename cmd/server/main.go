package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/facturaIA/fiscal-extractor/api"
	"github.com/facturaIA/fiscal-extractor/internal/auth"
	"github.com/facturaIA/fiscal-extractor/internal/config"
	"github.com/facturaIA/fiscal-extractor/internal/db"
	"github.com/facturaIA/fiscal-extractor/internal/engine"
	"github.com/facturaIA/fiscal-extractor/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("Failed to load .env: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	db.SetLogger(log)
	api.SetLogger(log)

	// Initialize JWT
	if err := auth.Init(cfg.Auth.JWTSecret); err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	log.Info("JWT authentication initialized")

	// Initialize database connection pool
	var store api.TransactionStore
	if err := db.Init(cfg.Database); err != nil {
		log.Warnf("Database not available: %v", err)
		log.Info("Running in extraction-only mode (no persistence)")
	} else {
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		store = db.DefaultStore()
	}

	// Initialize MinIO storage
	var archive api.TextArchive
	if a, err := storage.Init(cfg.Storage); err != nil {
		log.Warnf("MinIO storage not available: %v", err)
		log.Info("OCR text will not be archived")
	} else {
		archive = a
		log.Info("MinIO storage initialized")
	}

	eng := engine.New(config.EngineOptions(cfg, log)...)

	handler := api.NewHandler(cfg, eng, store, archive)
	router := handler.SetupRoutes()

	// Wrap router with JWT middleware (skips /health and /metrics), then CORS
	protectedRouter := api.CORS(cfg.CORS)(auth.JWTMiddleware(router))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           protectedRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.WithFields(logrus.Fields{
		"addr":      addr,
		"version":   api.Version,
		"database":  store != nil,
		"storage":   archive != nil,
		"rateLimit": cfg.RateLimit.PerSecond,
	}).Info("Starting fiscal extraction service")
	log.Infof("  POST http://%s/api/extract/invoice    - Extract an invoice (requires JWT)", addr)
	log.Infof("  POST http://%s/api/extract/expense    - Extract an expense receipt (requires JWT)", addr)
	log.Infof("  POST http://%s/api/invoices/sequence  - Check invoice numbering (requires JWT)", addr)
	log.Infof("  GET  http://%s/api/transactions       - List stored transactions (requires JWT)", addr)
	log.Infof("  GET  http://%s/api/transactions/export - CSV export (requires JWT)", addr)
	log.Infof("  GET  http://%s/api/stats              - Monthly totals (requires JWT)", addr)
	log.Infof("  GET  http://%s/health                 - Health check", addr)
	log.Infof("  GET  http://%s/metrics                - Prometheus metrics", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Shutdown failed: %v", err)
	}
	log.Info("Server stopped")
}
