package orders

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

// Handler exposes order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.list)
	r.Post("/orders", h.create)
	r.Get("/orders/{id}", h.show)
	r.Delete("/orders/{id}", h.delete)
	r.Post("/orders/{id}/place", h.place)
	r.Post("/orders/{id}/receive", h.receive)
	r.Post("/orders/{id}/cancel", h.cancel)
}

type lineRequest struct {
	ItemID        *int64              `json:"item_id"`
	ItemName      string              `json:"item_name" validate:"required_without=ItemID,max=200"`
	Unit          string              `json:"unit" validate:"required"`
	Quantity      decimal.Decimal     `json:"quantity"`
	ExpectedPrice decimal.Decimal     `json:"expected_price"`
	VATRate       decimal.NullDecimal `json:"vat_rate"`
	Note          string              `json:"note" validate:"max=500"`
}

type createRequest struct {
	Direction        string        `json:"direction" validate:"required,oneof=PURCHASE SALE"`
	CounterpartyID   *int64        `json:"counterparty_id"`
	CounterpartyName string        `json:"counterparty_name" validate:"max=200"`
	RequestedDate    string        `json:"requested_date" validate:"required"`
	Note             string        `json:"note" validate:"max=1000"`
	Lines            []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type receiveLineRequest struct {
	LineID            int64               `json:"line_id" validate:"required,gt=0"`
	DeliveredQuantity decimal.NullDecimal `json:"delivered_quantity"`
	ActualPrice       decimal.NullDecimal `json:"actual_price"`
}

type receiveRequest struct {
	Lines []receiveLineRequest `json:"lines" validate:"dive"`
}

type receiveResponse struct {
	ActualTotal decimal.Decimal `json:"actual_total"`
	Order       WithLines       `json:"order"`
}

type deleteRequest struct {
	ConfirmIntent       bool `json:"confirm_intent"`
	ConfirmIrreversible bool `json:"confirm_irreversible"`
}

// ToInput converts the request into service input.
func (req createRequest) ToInput() (CreateInput, error) {
	date, err := httpx.ParseDate(req.RequestedDate)
	if err != nil {
		return CreateInput{}, err
	}
	input := CreateInput{
		Direction:     Direction(req.Direction),
		Counterparty:  Counterparty{ID: req.CounterpartyID, Name: req.CounterpartyName},
		RequestedDate: date,
		Note:          req.Note,
	}
	lines, err := toLineInputs(req.Lines)
	if err != nil {
		return CreateInput{}, err
	}
	input.Lines = lines
	return input, nil
}

func toLineInputs(reqs []lineRequest) ([]LineInput, error) {
	out := make([]LineInput, 0, len(reqs))
	for i, l := range reqs {
		unit, ok := catalog.ParseUnit(l.Unit)
		if !ok {
			return nil, shared.Validationf("line %d: unsupported unit %q", i+1, l.Unit)
		}
		out = append(out, LineInput{
			Item:          ItemRef{ItemID: l.ItemID, Name: l.ItemName},
			Unit:          unit,
			Quantity:      l.Quantity,
			ExpectedPrice: l.ExpectedPrice,
			VATRate:       l.VATRate,
			Note:          l.Note,
		})
	}
	return out, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Direction:     Direction(strings.ToUpper(q.Get("direction"))),
		Status:        Status(strings.ToUpper(q.Get("status"))),
		Counterparty:  q.Get("counterparty"),
		Query:         q.Get("q"),
		IncludeClosed: httpx.QueryBool(r, "include_closed"),
	}
	var err error
	if filter.DateFrom, err = httpx.QueryDate(r, "date_from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.DateTo, err = httpx.QueryDate(r, "date_to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Limit, err = httpx.QueryInt(r, "limit"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Offset, err = httpx.QueryInt(r, "offset"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input, err := req.ToInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, r, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Place(r.Context(), id)
	if err != nil {
		h.fail(w, r, "place order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req receiveRequest
	if err := httpx.DecodeOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := ReceiveInput{Lines: make([]ReceiveLine, 0, len(req.Lines))}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, ReceiveLine{LineID: l.LineID, DeliveredQuantity: l.DeliveredQuantity, ActualPrice: l.ActualPrice})
	}
	received, err := h.service.Receive(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, "receive order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, receiveResponse{ActualTotal: received.Order.ActualTotal.Decimal, Order: received})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.fail(w, r, "cancel order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

// delete requires both confirmations in the body before the order is removed.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req deleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !req.ConfirmIntent || !req.ConfirmIrreversible {
		httpx.RespondError(w, shared.Validationf("deletion requires confirm_intent and confirm_irreversible"))
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	httpx.Fail(w, r, h.logger, op, err)
}
