package summary

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/freshline/internal/platform/httpx"
)

// Handler exposes the counters endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers summary routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.show)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	counters, err := h.service.Current(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, "load summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, counters)
}
