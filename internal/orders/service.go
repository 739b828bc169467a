package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, []Line, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Summary, int, error)
	InTransitByItem(ctx context.Context) (map[int64]decimal.Decimal, error)
	LastPurchasePrices(ctx context.Context) ([]PriceQuote, error)
	SaleOrdersForDate(ctx context.Context, date time.Time, statuses []Status) ([]WithLines, error)
}

// TxRepository exposes transactional operations. LockOrder must block
// concurrent mutations of the same order until the transaction ends.
type TxRepository interface {
	NextNumber(ctx context.Context, prefix string, at time.Time) (string, error)
	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertLine(ctx context.Context, l Line) (int64, error)
	LockOrder(ctx context.Context, id int64) (Order, []Line, error)
	UpdateOrder(ctx context.Context, o Order) error
	UpdateLineReceipt(ctx context.Context, l Line) error
	AdjustStock(ctx context.Context, itemID int64, delta decimal.Decimal) error
	DeleteOrder(ctx context.Context, id int64) error
}

// ErrInsufficientStock is returned by AdjustStock when a change would take
// on-hand below zero.
var ErrInsufficientStock = errors.New("orders: insufficient stock")

// PartyPort resolves counterparties referenced by id.
type PartyPort interface {
	GetParty(ctx context.Context, id int64) (catalog.Party, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards purchase submissions against double posting.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Recorder receives lifecycle events for metrics.
type Recorder interface {
	ObserveOrderTransition(direction, action string)
}

const idempotencyModule = "orders.purchase"

// Service orchestrates the order lifecycle for both directions.
type Service struct {
	repo        RepositoryPort
	parties     PartyPort
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// Option customises Service construction.
type Option func(*Service)

// WithAudit records lifecycle events.
func WithAudit(a AuditPort) Option { return func(s *Service) { s.audit = a } }

// WithIdempotency enables Idempotency-Key handling on purchase submission.
func WithIdempotency(i IdempotencyPort) Option { return func(s *Service) { s.idempotency = i } }

// WithRecorder wires a metrics sink.
func WithRecorder(r Recorder) Option { return func(s *Service) { s.metrics = r } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService constructs the order service.
func NewService(repo RepositoryPort, parties PartyPort, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, parties: parties, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput describes a new order.
type CreateInput struct {
	Direction      Direction
	Counterparty   Counterparty
	RequestedDate  time.Time
	Note           string
	Lines          []LineInput
	IdempotencyKey string
}

// LineInput describes an order line.
type LineInput struct {
	Item          ItemRef
	Unit          catalog.Unit
	Quantity      decimal.Decimal
	ExpectedPrice decimal.Decimal
	VATRate       decimal.NullDecimal
	Note          string
}

// ReceiveInput reconciles delivered quantities and prices. Lines not listed
// are taken as delivered in full at the expected price.
type ReceiveInput struct {
	Lines []ReceiveLine
}

// ReceiveLine overrides one line on receipt.
type ReceiveLine struct {
	LineID            int64
	DeliveredQuantity decimal.NullDecimal
	ActualPrice       decimal.NullDecimal
}

// Create stores a new order in DRAFT.
func (s *Service) Create(ctx context.Context, input CreateInput) (WithLines, error) {
	policy, order, lines, err := s.prepare(ctx, input)
	if err != nil {
		return WithLines{}, err
	}
	var out WithLines
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		out, err = s.insert(ctx, tx, policy, order, lines)
		return err
	})
	if err != nil {
		return WithLines{}, err
	}
	s.observe(out.Order, "create")
	return out, nil
}

// CreatePurchaseOrder creates and places a purchase order in one step.
// A non-empty IdempotencyKey makes repeated submissions fail with ErrConflict.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreateInput) (WithLines, error) {
	input.Direction = DirectionPurchase
	policy, order, lines, err := s.prepare(ctx, input)
	if err != nil {
		return WithLines{}, err
	}
	if err := policy.CheckPlaceable(order, lines); err != nil {
		return WithLines{}, err
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	inserted := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return WithLines{}, err
		}
		inserted = true
	}

	var out WithLines
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := s.insert(ctx, tx, policy, order, lines)
		if err != nil {
			return err
		}
		placedAt := s.now().UTC()
		created.Order.Status = StatusPlaced
		created.Order.PlacedAt = &placedAt
		if err := tx.UpdateOrder(ctx, created.Order); err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		if inserted {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return WithLines{}, err
	}
	s.observe(out.Order, "place")
	s.recordAudit(ctx, "ORDER_PLACE", out.Order, map[string]any{"lines": len(out.Lines), "expected_total": out.Order.ExpectedTotal.String()})
	return out, nil
}

// Place moves a DRAFT order to PLACED.
func (s *Service) Place(ctx context.Context, id int64) (Order, error) {
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, lines, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.CanPlace() {
			return &shared.StateError{Action: "place", Current: string(order.Status)}
		}
		policy, err := PolicyFor(order.Direction)
		if err != nil {
			return err
		}
		if err := policy.CheckPlaceable(order, lines); err != nil {
			return err
		}
		placedAt := s.now().UTC()
		order.Status = StatusPlaced
		order.PlacedAt = &placedAt
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.observe(out, "place")
	s.recordAudit(ctx, "ORDER_PLACE", out, nil)
	return out, nil
}

// Receive reconciles a PLACED order: it records delivered quantities and
// actual prices, applies stock changes for catalog lines and closes the
// order as RECEIVED. Either everything is stored or nothing is.
func (s *Service) Receive(ctx context.Context, id int64, input ReceiveInput) (WithLines, error) {
	overrides := make(map[int64]ReceiveLine, len(input.Lines))
	for _, rl := range input.Lines {
		if rl.DeliveredQuantity.Valid && rl.DeliveredQuantity.Decimal.IsNegative() {
			return WithLines{}, shared.Validationf("line %d: delivered quantity must not be negative", rl.LineID)
		}
		if rl.ActualPrice.Valid && rl.ActualPrice.Decimal.IsNegative() {
			return WithLines{}, shared.Validationf("line %d: actual price must not be negative", rl.LineID)
		}
		overrides[rl.LineID] = rl
	}

	var out WithLines
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, lines, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.CanReceive() {
			return &shared.StateError{Action: "receive", Current: string(order.Status)}
		}
		policy, err := PolicyFor(order.Direction)
		if err != nil {
			return err
		}

		known := make(map[int64]struct{}, len(lines))
		for _, l := range lines {
			known[l.ID] = struct{}{}
		}
		for lineID := range overrides {
			if _, ok := known[lineID]; !ok {
				return shared.Validationf("line %d does not belong to order %s", lineID, order.Number)
			}
		}

		for i := range lines {
			line := &lines[i]
			delivered := line.Quantity
			price := line.ExpectedPrice
			if ov, ok := overrides[line.ID]; ok {
				if ov.DeliveredQuantity.Valid {
					delivered = ov.DeliveredQuantity.Decimal
				}
				if ov.ActualPrice.Valid {
					price = ov.ActualPrice.Decimal
				}
			}
			line.DeliveredQuantity = decimal.NewNullDecimal(RoundQty(delivered))
			line.ActualPrice = decimal.NewNullDecimal(RoundMoney(price))
			if err := tx.UpdateLineReceipt(ctx, *line); err != nil {
				return err
			}
			if line.Item.ItemID == nil || delivered.IsZero() {
				continue
			}
			err := tx.AdjustStock(ctx, *line.Item.ItemID, policy.StockDelta(line.DeliveredQuantity.Decimal))
			switch {
			case errors.Is(err, ErrInsufficientStock):
				return shared.Validationf("line %d: insufficient stock for %s", line.ID, line.Item.Name)
			case errors.Is(err, shared.ErrNotFound):
				return shared.Validationf("line %d: stock item %d no longer exists", line.ID, *line.Item.ItemID)
			case err != nil:
				return err
			}
		}

		receivedAt := s.now().UTC()
		order.Status = StatusReceived
		order.ReceivedAt = &receivedAt
		order.ActualTotal = decimal.NewNullDecimal(policy.ActualTotal(lines))
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		out = WithLines{Order: order, Lines: lines}
		return nil
	})
	if err != nil {
		return WithLines{}, err
	}
	s.observe(out.Order, "receive")
	s.recordAudit(ctx, "ORDER_RECEIVE", out.Order, map[string]any{"actual_total": out.Order.ActualTotal.Decimal.String()})
	return out, nil
}

// Cancel closes a DRAFT or PLACED order without touching stock.
func (s *Service) Cancel(ctx context.Context, id int64) (Order, error) {
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, _, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.CanCancel() {
			return &shared.StateError{Action: "cancel", Current: string(order.Status)}
		}
		order.Status = StatusCancelled
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.observe(out, "cancel")
	s.recordAudit(ctx, "ORDER_CANCEL", out, nil)
	return out, nil
}

// Delete removes an order together with its lines. Stock is never touched.
// Deleting an order that no longer exists returns ErrNotFound.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var removed Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, _, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, id); err != nil {
			return err
		}
		removed = order
		return nil
	})
	if err != nil {
		return err
	}
	s.observe(removed, "delete")
	s.recordAudit(ctx, "ORDER_DELETE", removed, nil)
	return nil
}

// Get returns an order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (WithLines, error) {
	order, lines, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return WithLines{}, err
	}
	return WithLines{Order: order, Lines: lines}, nil
}

// ListResult is a page of order summaries.
type ListResult struct {
	Orders     []Summary         `json:"orders"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns orders matching filter. Without an explicit status, closed
// orders are hidden unless IncludeClosed is set.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	if filter.Direction != "" && !filter.Direction.Valid() {
		return ListResult{}, shared.Validationf("unknown direction %q", filter.Direction)
	}
	switch {
	case filter.Status != "":
		if !filter.Status.Valid() {
			return ListResult{}, shared.Validationf("unknown status %q", filter.Status)
		}
		filter.Statuses = []Status{filter.Status}
	case !filter.IncludeClosed:
		filter.Statuses = OpenStatuses
	default:
		filter.Statuses = nil
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return ListResult{}, shared.Validationf("date_to precedes date_from")
	}
	filter.Counterparty = strings.TrimSpace(filter.Counterparty)
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Limit, filter.Offset = shared.NormalizePage(filter.Limit, filter.Offset)

	rows, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	if rows == nil {
		rows = []Summary{}
	}
	return ListResult{Orders: rows, Pagination: shared.NewPagination(filter.Limit, filter.Offset, total)}, nil
}

// InTransitByItem sums ordered quantities of PLACED purchase orders per catalog item.
func (s *Service) InTransitByItem(ctx context.Context) (map[int64]decimal.Decimal, error) {
	return s.repo.InTransitByItem(ctx)
}

// LastPurchasePrices returns the newest purchase price per item and supplier.
func (s *Service) LastPurchasePrices(ctx context.Context) ([]PriceQuote, error) {
	return s.repo.LastPurchasePrices(ctx)
}

// deliveryStatuses are the sale orders that belong on a delivery route.
var deliveryStatuses = []Status{StatusPlaced, StatusReceived}

// SaleOrdersForDate returns sale orders requested for date that are placed or already fulfilled.
func (s *Service) SaleOrdersForDate(ctx context.Context, date time.Time) ([]WithLines, error) {
	return s.repo.SaleOrdersForDate(ctx, date, deliveryStatuses)
}

func (s *Service) prepare(ctx context.Context, input CreateInput) (Policy, Order, []Line, error) {
	policy, err := PolicyFor(input.Direction)
	if err != nil {
		return Policy{}, Order{}, nil, err
	}
	cp := input.Counterparty
	cp.Name = strings.TrimSpace(cp.Name)
	if !cp.Resolved() {
		return Policy{}, Order{}, nil, shared.Validationf("counterparty required")
	}
	if cp.ID != nil && s.parties != nil {
		party, err := s.parties.GetParty(ctx, *cp.ID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return Policy{}, Order{}, nil, shared.Validationf("counterparty %d not found", *cp.ID)
			}
			return Policy{}, Order{}, nil, err
		}
		if party.Kind != policy.CounterpartyKind {
			return Policy{}, Order{}, nil, shared.Validationf("counterparty %d is not a %s", *cp.ID, strings.ToLower(string(policy.CounterpartyKind)))
		}
		cp.Name = party.Name
	}
	if input.RequestedDate.IsZero() {
		return Policy{}, Order{}, nil, shared.Validationf("requested date required")
	}
	if len(input.Lines) == 0 {
		return Policy{}, Order{}, nil, shared.Validationf("at least one line required")
	}

	lines := make([]Line, 0, len(input.Lines))
	for i, li := range input.Lines {
		li.Item.Name = strings.TrimSpace(li.Item.Name)
		line := Line{
			Item:          li.Item,
			Unit:          li.Unit,
			Quantity:      RoundQty(li.Quantity),
			ExpectedPrice: RoundMoney(li.ExpectedPrice),
			VATRate:       li.VATRate,
			Note:          strings.TrimSpace(li.Note),
		}
		if err := policy.CheckLine(i, line); err != nil {
			return Policy{}, Order{}, nil, err
		}
		lines = append(lines, line)
	}

	y, m, d := input.RequestedDate.Date()
	order := Order{
		Direction:     policy.Direction,
		Counterparty:  cp,
		CreatedAt:     s.now().UTC(),
		RequestedDate: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Status:        StatusDraft,
		ExpectedTotal: policy.ExpectedTotal(lines),
		Note:          strings.TrimSpace(input.Note),
	}
	return policy, order, lines, nil
}

func (s *Service) insert(ctx context.Context, tx TxRepository, policy Policy, order Order, lines []Line) (WithLines, error) {
	number, err := tx.NextNumber(ctx, policy.NumberPrefix, order.CreatedAt)
	if err != nil {
		return WithLines{}, err
	}
	order.Number = number
	id, err := tx.InsertOrder(ctx, order)
	if err != nil {
		return WithLines{}, err
	}
	order.ID = id
	stored := make([]Line, 0, len(lines))
	for _, l := range lines {
		l.OrderID = id
		lineID, err := tx.InsertLine(ctx, l)
		if err != nil {
			return WithLines{}, err
		}
		l.ID = lineID
		stored = append(stored, l)
	}
	return WithLines{Order: order, Lines: stored}, nil
}

func (s *Service) observe(o Order, action string) {
	if s.metrics != nil {
		s.metrics.ObserveOrderTransition(string(o.Direction), action)
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, o Order, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	if o.Number != "" {
		meta["number"] = o.Number
	}
	if o.Status != "" {
		meta["status"] = string(o.Status)
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", o.ID),
		RefID:    shared.AuditRef("order", o.ID),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("record order audit", slog.String("action", action), slog.Int64("order_id", o.ID), slog.Any("error", err))
	}
}
