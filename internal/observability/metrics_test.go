package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/freshline/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("summary:refresh").End(nil)

	body := scrape(t, metrics)
	assert.Contains(t, body, `freshline_jobs_total{job="summary:refresh",status="success"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `freshline_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `freshline_http_request_duration_seconds_bucket{route="/test"`)
}

func TestObserveOrderTransition(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveOrderTransition("PURCHASE", "receive")
	metrics.ObserveOrderTransition("PURCHASE", "receive")
	metrics.ObserveOrderTransition("SALE", "delete")

	body := scrape(t, metrics)
	assert.Contains(t, body, `freshline_order_transitions_total{action="receive",direction="PURCHASE"} 2`)
	assert.Contains(t, body, `freshline_order_transitions_total{action="delete",direction="SALE"} 1`)

	var nilMetrics *Metrics
	nilMetrics.ObserveOrderTransition("SALE", "place")
}
