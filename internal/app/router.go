package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/freshline/internal/observability"
	"github.com/odyssey-erp/freshline/internal/orders"
	"github.com/odyssey-erp/freshline/internal/platform/httpx"
	"github.com/odyssey-erp/freshline/internal/replenishment"
	"github.com/odyssey-erp/freshline/internal/routes"
	"github.com/odyssey-erp/freshline/internal/shortfall"
	"github.com/odyssey-erp/freshline/internal/summary"
	"github.com/odyssey-erp/freshline/jobs"
	"github.com/odyssey-erp/freshline/report"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	DB      Pinger

	ShortfallHandler     *shortfall.Handler
	ReplenishmentHandler *replenishment.Handler
	OrdersHandler        *orders.Handler
	RoutesHandler        *routes.Handler
	SummaryHandler       *summary.Handler
	ReportHandler        *report.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with Freshline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.DB.Ping(ctx); err != nil {
				params.Logger.Warn("healthz database ping", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.ShortfallHandler != nil {
			params.ShortfallHandler.MountRoutes(r)
		}
		if params.ReplenishmentHandler != nil {
			params.ReplenishmentHandler.MountRoutes(r)
		}
		if params.OrdersHandler != nil {
			params.OrdersHandler.MountRoutes(r)
		}
		if params.RoutesHandler != nil {
			params.RoutesHandler.MountRoutes(r)
		}
		if params.SummaryHandler != nil {
			params.SummaryHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			params.ReportHandler.MountRoutes(r)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
