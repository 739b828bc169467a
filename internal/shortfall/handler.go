package shortfall

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/freshline/internal/platform/httpx"
)

// Handler exposes the shortfall view.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers shortfall routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/shortfall", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Items(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, "list shortfall", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}
