// Package metrics exposes Prometheus collectors for the extraction service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExtractionsTotal counts extractions per document kind
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fiscal_extractions_total",
			Help: "Total number of OCR text extractions",
		},
		[]string{"kind"},
	)

	// ExtractionWarnings counts warnings attached to extracted records
	ExtractionWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fiscal_extraction_warnings_total",
			Help: "Total number of warnings attached to extracted records",
		},
		[]string{"kind"},
	)

	// ExtractionConfidence tracks the confidence score of extracted records
	ExtractionConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fiscal_extraction_confidence",
			Help:    "Confidence score of extracted records",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"kind"},
	)

	// NonSequentialInvoices counts invoices whose number does not follow the last known one
	NonSequentialInvoices = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fiscal_non_sequential_invoices_total",
			Help: "Total number of invoices flagged as non-sequential",
		},
	)

	// RequestsTotal tracks HTTP requests per route and status
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fiscal_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fiscal_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// ObserveExtraction records one extracted record
func ObserveExtraction(kind string, warnings int, confidence float64) {
	ExtractionsTotal.WithLabelValues(kind).Inc()
	ExtractionWarnings.WithLabelValues(kind).Add(float64(warnings))
	ExtractionConfidence.WithLabelValues(kind).Observe(confidence)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and durations labelled by route template
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
