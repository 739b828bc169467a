package routes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/freshline/internal/platform/httpx"
	"github.com/odyssey-erp/freshline/internal/shared"
)

// Handler exposes route and document endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers route endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/routes/{date}", h.list)
	r.Get("/routes/{date}/checklist", h.checklist)
	r.Get("/routes/{date}/blind-summary", h.blindSummary)
	r.Put("/customers/{id}/sequence", h.setSequence)
}

type sequenceRequest struct {
	Position int `json:"position" validate:"required,gte=1"`
}

type document interface {
	Text() (string, error)
	HTML() (string, error)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) ([]Route, bool) {
	date, err := httpx.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	routes, err := h.service.ForDate(r.Context(), date)
	if err != nil {
		httpx.Fail(w, r, h.logger, "compose routes", err)
		return nil, false
	}
	routes, err = Select(routes, r.URL.Query().Get("route"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("route %q: %w", r.URL.Query().Get("route"), err))
		return nil, false
	}
	return routes, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	routes, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"routes": routes})
}

func (h *Handler) checklist(w http.ResponseWriter, r *http.Request) {
	routes, ok := h.load(w, r)
	if !ok {
		return
	}
	docs := make([]document, 0, len(routes))
	payload := make([]Checklist, 0, len(routes))
	for _, rt := range routes {
		c := NewChecklist(rt)
		docs = append(docs, c)
		payload = append(payload, c)
	}
	h.respondDocuments(w, r, "checklist", docs, map[string]any{"checklists": payload})
}

func (h *Handler) blindSummary(w http.ResponseWriter, r *http.Request) {
	routes, ok := h.load(w, r)
	if !ok {
		return
	}
	docs := make([]document, 0, len(routes))
	payload := make([]BlindSummary, 0, len(routes))
	for _, rt := range routes {
		b := NewBlindSummary(rt)
		docs = append(docs, b)
		payload = append(payload, b)
	}
	h.respondDocuments(w, r, "blind-summary", docs, map[string]any{"summaries": payload})
}

func (h *Handler) respondDocuments(w http.ResponseWriter, r *http.Request, kind string, docs []document, payload any) {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		httpx.JSON(w, http.StatusOK, payload)
	case "text":
		parts := make([]string, 0, len(docs))
		for _, d := range docs {
			txt, err := d.Text()
			if err != nil {
				httpx.Fail(w, r, h.logger, "render "+kind, err)
				return
			}
			parts = append(parts, txt)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Join(parts, "\f\n")))
	case "pdf":
		if len(docs) != 1 {
			httpx.RespondError(w, shared.Validationf("pdf output needs exactly one route, pass ?route="))
			return
		}
		html, err := docs[0].HTML()
		if err != nil {
			httpx.Fail(w, r, h.logger, "render "+kind, err)
			return
		}
		pdf, err := h.service.RenderPDF(r.Context(), html)
		if err != nil {
			if errors.Is(err, ErrPDFUnavailable) {
				httpx.Problem(w, http.StatusServiceUnavailable, "PDF Unavailable", err.Error())
				return
			}
			h.logger.Error("render pdf", slog.String("kind", kind), slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "PDF Rendering Failed", "document service unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s-%s.pdf", kind, chi.URLParam(r, "date")))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	default:
		httpx.RespondError(w, shared.Validationf("unsupported format %q", r.URL.Query().Get("format")))
	}
}

func (h *Handler) setSequence(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req sequenceRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetStopSequence(r.Context(), id, req.Position); err != nil {
		httpx.Fail(w, r, h.logger, "set stop sequence", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}
