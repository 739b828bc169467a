package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/observability"
	"github.com/odyssey-erp/freshline/internal/shortfall"
	_ "github.com/odyssey-erp/freshline/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://test@localhost/test")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "@every 30s", cfg.SummaryRefreshSpec)
	assert.Equal(t, 2*time.Minute, cfg.SummaryTTL)
	assert.Equal(t, 72*time.Hour, cfg.IdempotencyRetention)
	assert.Equal(t, language.Czech, cfg.Locale())
	assert.False(t, cfg.IsProduction())
}

func TestTestModeFlag(t *testing.T) {
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())

	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad locale":  {"COLLATION_LOCALE": "not a tag!"},
		"zero ttl":    {"SUMMARY_TTL": "0s"},
		"bad timeout": {"APP_READ_TIMEOUT": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", AppEnv: "production"}, &buf).Info("hello", slog.Int("n", 1))
	assert.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())
	assert.Contains(t, buf.String(), `"service":"freshline"`)

	buf.Reset()
	newLogger(&Config{AppEnv: "production"}, &buf).Debug("hidden")
	assert.Empty(t, buf.String())
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubStock []catalog.StockItem

func (s stubStock) ListStockItems(context.Context) ([]catalog.StockItem, error) { return s, nil }

func newTestRouter(cfg *Config, db Pinger) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          observability.NewMetrics(),
		DB:               db,
		ShortfallHandler: shortfall.NewHandler(logger, shortfall.NewService(stubStock{}, nil)),
	})
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouterHealthz(t *testing.T) {
	rec := get(newTestRouter(&Config{}, stubPinger{}), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(newTestRouter(&Config{}, stubPinger{err: errors.New("dial tcp: refused")}), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterMountsAPIAndSecurityHeaders(t *testing.T) {
	router := newTestRouter(&Config{}, nil)

	rec := get(router, "/api/shortfall")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = get(router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `freshline_http_requests_total{code="200",route="/api/shortfall"} 1`)

	assert.Equal(t, http.StatusNotFound, get(router, "/api/unknown").Code)
}

func TestRouterRateLimit(t *testing.T) {
	router := newTestRouter(&Config{RateLimitPerMinute: 2}, nil)

	assert.Equal(t, http.StatusOK, get(router, "/api/shortfall").Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/shortfall").Code)
	rec := get(router, "/api/shortfall")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}
