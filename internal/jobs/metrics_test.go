package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("summary:refresh").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("summary:refresh").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("summary:refresh", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("summary:refresh", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("summary:refresh")))
}

func TestSummaryGaugeAndPurgeCounter(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetSummary("unread_messages", 3)
	m.SetSummary("unread_messages", 1)
	m.AddPurgedKeys(5)
	m.AddPurgedKeys(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.summary.WithLabelValues("unread_messages")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.purged))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.SetSummary("x", 1)
	m.AddPurgedKeys(1)
	err := errors.New("kept")
	assert.Same(t, err, m.Track("job").End(err))
}
