package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/freshline/internal/jobs"
	"github.com/odyssey-erp/freshline/internal/summary"
)

// SummaryRefresher is the part of summary.Service the job needs.
type SummaryRefresher interface {
	Refresh(ctx context.Context) (summary.Counters, error)
}

// SummaryRefreshJob recomputes the dashboard counters on a schedule.
type SummaryRefreshJob struct {
	Refresher SummaryRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewSummaryRefreshJob wires dependencies for the refresh handler.
func NewSummaryRefreshJob(refresher SummaryRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *SummaryRefreshJob {
	return &SummaryRefreshJob{Refresher: refresher, Logger: logger, Metrics: metrics}
}

// Handle processes summary refresh tasks.
func (j *SummaryRefreshJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Refresher == nil {
		return errors.New("summary refresh: handler not configured")
	}
	var payload SummaryRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskSummaryRefresh)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	counters, err := j.Refresher.Refresh(ctx)
	if err != nil {
		j.logger().Error("refresh summary counters", slog.String("reason", payload.Reason), slog.Any("error", err))
		return err
	}
	for name, value := range counters.Fields() {
		j.Metrics.SetSummary(name, value)
	}
	j.logger().Debug("summary counters refreshed",
		slog.String("reason", payload.Reason),
		slog.Int64("shortfall_items", counters.ShortfallItems),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *SummaryRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
