package replenishment

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/platform/httpx"
	"github.com/odyssey-erp/freshline/internal/shared"
)

// Handler exposes replenishment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers replenishment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/replenishment/drafts", h.drafts)
	r.Post("/replenishment/drafts/submit", h.submitDraft)
	r.Post("/purchase-orders", h.submit)
}

type submitLine struct {
	ItemID        *int64              `json:"item_id"`
	ItemName      string              `json:"item_name" validate:"required_without=ItemID,max=200"`
	Unit          string              `json:"unit" validate:"required"`
	Quantity      decimal.Decimal     `json:"quantity"`
	ExpectedPrice decimal.NullDecimal `json:"expected_price"`
	Selected      *bool               `json:"selected"`
}

type submitRequest struct {
	SupplierID    *int64       `json:"supplier_id"`
	SupplierName  string       `json:"supplier_name" validate:"max=200"`
	RequestedDate string       `json:"requested_date"`
	Note          string       `json:"note" validate:"max=1000"`
	Lines         []submitLine `json:"lines" validate:"dive"`
}

type draftEdit struct {
	ItemID   int64               `json:"item_id" validate:"required,gt=0"`
	Quantity decimal.NullDecimal `json:"quantity"`
	Price    decimal.NullDecimal `json:"price"`
	Selected *bool               `json:"selected"`
}

type draftSubmitRequest struct {
	SupplierID    *int64      `json:"supplier_id"`
	SupplierName  string      `json:"supplier_name" validate:"max=200"`
	SelectAll     *bool       `json:"select_all"`
	RequestedDate string      `json:"requested_date"`
	Note          string      `json:"note" validate:"max=1000"`
	Edits         []draftEdit `json:"edits" validate:"dive"`
}

// draftView adds the state of the group's select-all toggle.
type draftView struct {
	Group
	AllSelected bool `json:"all_selected"`
}

func submitOptions(r *http.Request, date, note string) (SubmitOptions, error) {
	opts := SubmitOptions{Note: note, IdempotencyKey: r.Header.Get("Idempotency-Key")}
	if date != "" {
		parsed, err := httpx.ParseDate(date)
		if err != nil {
			return SubmitOptions{}, err
		}
		opts.RequestedDate = parsed
	}
	return opts, nil
}

func (req submitRequest) group() (Group, error) {
	g := Group{Key: GroupKey{ID: req.SupplierID, Name: strings.TrimSpace(req.SupplierName)}}
	for i, l := range req.Lines {
		unit, ok := catalog.ParseUnit(l.Unit)
		if !ok {
			return Group{}, shared.Validationf("line %d: unsupported unit %q", i+1, l.Unit)
		}
		selected := l.Selected == nil || *l.Selected
		g.Rows = append(g.Rows, Row{
			ItemID:   l.ItemID,
			ItemName: strings.TrimSpace(l.ItemName),
			Unit:     unit,
			Quantity: l.Quantity,
			Price:    l.ExpectedPrice,
			Selected: selected,
		})
	}
	return g, nil
}

func (h *Handler) drafts(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Drafts(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, "build replenishment drafts", err)
		return
	}
	views := make([]draftView, 0, len(groups))
	for _, g := range groups {
		views = append(views, draftView{Group: g, AllSelected: g.AllSelected()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": views})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	group, err := req.group()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	opts, err := submitOptions(r, req.RequestedDate, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	number, err := h.service.Submit(r.Context(), group, opts)
	if err != nil {
		httpx.Fail(w, r, h.logger, "submit purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"order_number": number})
}

func (h *Handler) submitDraft(w http.ResponseWriter, r *http.Request) {
	var req draftSubmitRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	opts, err := submitOptions(r, req.RequestedDate, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	review := Review{
		Supplier:  GroupKey{ID: req.SupplierID, Name: strings.TrimSpace(req.SupplierName)},
		SelectAll: req.SelectAll,
	}
	for _, e := range req.Edits {
		review.Edits = append(review.Edits, Edit{ItemID: e.ItemID, Quantity: e.Quantity, Price: e.Price, Selected: e.Selected})
	}
	number, err := h.service.SubmitDraft(r.Context(), review, opts)
	if err != nil {
		httpx.Fail(w, r, h.logger, "submit replenishment draft", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"order_number": number})
}
