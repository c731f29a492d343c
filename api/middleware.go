package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/facturaIA/fiscal-extractor/internal/models"
)

// CORS lets browser clients from the configured origins call the API.
// It must wrap the JWT middleware so preflight requests are answered
// without a token.
func CORS(cfg models.CORSConfig) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         7200,
	})
	return c.Handler
}

// NewRateLimiter returns nil when the limit is disabled
func NewRateLimiter(cfg models.RateLimitConfig) *rate.Limiter {
	if cfg.PerSecond <= 0 || cfg.Burst <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst)
}

// RateLimit rejects requests beyond the limiter's budget with 429
func RateLimit(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
