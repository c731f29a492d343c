package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveExtraction(t *testing.T) {
	before := testutil.ToFloat64(ExtractionsTotal.WithLabelValues("invoice"))
	warningsBefore := testutil.ToFloat64(ExtractionWarnings.WithLabelValues("invoice"))

	ObserveExtraction("invoice", 2, 0.85)

	assert.Equal(t, before+1, testutil.ToFloat64(ExtractionsTotal.WithLabelValues("invoice")))
	assert.Equal(t, warningsBefore+2, testutil.ToFloat64(ExtractionWarnings.WithLabelValues("invoice")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Middleware)
	router.HandleFunc("/api/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := RequestsTotal.WithLabelValues("/api/transactions/{id}", "404")
	before := testutil.ToFloat64(counter)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/transactions/abc", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
