// Package config loads the service configuration and builds the logger
// and engine options from it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/facturaIA/fiscal-extractor/internal/engine"
	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/services"
)

// Defaults returns the configuration used when no file is present
func Defaults() models.Config {
	return models.Config{
		Port: 8080,
		Host: "0.0.0.0",
		CORS: models.CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Log: models.LogConfig{
			Level:  "info",
			Format: "text",
		},
		Extraction: models.ExtractionConfig{
			Tolerance:         services.DefaultTolerance,
			OverrideThreshold: services.DefaultOverrideThreshold,
			DefaultVATRate:    21,
			DefaultIRPFRate:   15,
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*models.Config, error) {
	config := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// defaults + environment only
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := applyEnv(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnv(config *models.Config) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		config.Port = p
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Log.Format = format
	}
	if tol := os.Getenv("EXTRACTION_TOLERANCE"); tol != "" {
		v, err := strconv.ParseFloat(tol, 64)
		if err != nil {
			return fmt.Errorf("invalid EXTRACTION_TOLERANCE %q: %w", tol, err)
		}
		config.Extraction.Tolerance = v
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = strings.Split(origins, ",")
	}
	if rps := os.Getenv("RATE_LIMIT_PER_SECOND"); rps != "" {
		v, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_PER_SECOND %q: %w", rps, err)
		}
		config.RateLimit.PerSecond = v
		if config.RateLimit.Burst == 0 {
			config.RateLimit.Burst = int(v) + 1
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
	}
	if bucket := os.Getenv("MINIO_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	return nil
}

// NewLogger builds a logrus logger from the log section
func NewLogger(cfg models.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
	return logger, nil
}

// EngineOptions translates the configuration into engine options
func EngineOptions(config *models.Config, logger *logrus.Logger) []engine.Option {
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTolerances(config.Extraction.Tolerance, config.Extraction.OverrideThreshold),
		engine.WithTaxDefaults(services.TaxDefaults{
			VATRate:  config.Extraction.DefaultVATRate,
			IRPFRate: config.Extraction.DefaultIRPFRate,
		}),
	}
	if len(config.Categories) > 0 {
		opts = append(opts, engine.WithCategories(services.RulesFromConfig(config.Categories)))
	}
	return opts
}
