package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"marketplace-bff/internal/logging"
)

func TestMiddlewareAssignsRequestIDAndCountsPattern(t *testing.T) {
	var seenID string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products/{productId}", func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	handler := Middleware(logging.Discard(), mux)
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/products/{productId}", "418"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/42", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rec.Header().Get(RequestIDHeader))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/products/{productId}", "418"))
	assert.Equal(t, before+1, after)
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	handler := Middleware(logging.Discard(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestMiddlewareAllowsFlush(t *testing.T) {
	var flushErr error
	handler := Middleware(logging.Discard(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		flushErr = http.NewResponseController(w).Flush()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	assert.NoError(t, flushErr)
	assert.True(t, rec.Flushed)
}
