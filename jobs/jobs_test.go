package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/freshline/internal/jobs"
	"github.com/odyssey-erp/freshline/internal/summary"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubRefresher struct {
	counters summary.Counters
	err      error
	calls    int
}

func (s *stubRefresher) Refresh(context.Context) (summary.Counters, error) {
	s.calls++
	return s.counters, s.err
}

type stubPurger struct {
	removed   int64
	retention time.Duration
}

func (s *stubPurger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.retention = olderThan
	return s.removed, nil
}

func TestSummaryRefreshJobPublishesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	refresher := &stubRefresher{counters: summary.Counters{UnreadMessages: 4, ShortfallItems: 2}}
	job := NewSummaryRefreshJob(refresher, quietLogger, jobmetrics.NewMetrics(reg))

	task, err := NewSummaryRefreshTask(SummaryRefreshPayload{Reason: "cron"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, refresher.calls)

	expected := `
# HELP freshline_summary_counter Latest dashboard counter values computed by the summary refresh job.
# TYPE freshline_summary_counter gauge
freshline_summary_counter{counter="open_purchase_orders"} 0
freshline_summary_counter{counter="pending_registrations"} 0
freshline_summary_counter{counter="shortfall_items"} 2
freshline_summary_counter{counter="unread_messages"} 4
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "freshline_summary_counter"))
}

func TestSummaryRefreshJobReportsFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	boom := errors.New("redis down")
	job := NewSummaryRefreshJob(&stubRefresher{err: boom}, quietLogger, jobmetrics.NewMetrics(reg))

	err := job.Handle(context.Background(), asynq.NewTask(TaskSummaryRefresh, nil))
	require.ErrorIs(t, err, boom)

	count, err := testutil.GatherAndCount(reg, "freshline_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSummaryRefreshJobSkipsMalformedPayload(t *testing.T) {
	refresher := &stubRefresher{}
	job := NewSummaryRefreshJob(refresher, quietLogger, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSummaryRefresh, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, refresher.calls)
}

func TestIdempotencyCleanupUsesPayloadRetention(t *testing.T) {
	purger := &stubPurger{removed: 12}
	job := NewIdempotencyCleanupJob(purger, 72*time.Hour, quietLogger, nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, 72*time.Hour, purger.retention)

	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{Retention: time.Hour})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Hour, purger.retention)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   float64
	}{
		{"no inspector", nil, http.StatusOK, 0},
		{"queue info", stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, http.StatusOK, 3},
		{"redis unavailable", stubInspector{err: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, quietLogger).MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, QueueDefault, body["queue"])
			assert.Equal(t, tc.pending, body["pending"])
		})
	}
}
