package replenishment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freshline/internal/orders"
	"github.com/odyssey-erp/freshline/internal/shared"
	"github.com/odyssey-erp/freshline/internal/shortfall"
)

// ShortfallSource yields the items that currently need buying.
type ShortfallSource interface {
	Items(ctx context.Context) ([]shortfall.Item, error)
}

// PriceSource yields last known purchase prices.
type PriceSource interface {
	LastPurchasePrices(ctx context.Context) ([]orders.PriceQuote, error)
}

// OrderPort places purchase orders.
type OrderPort interface {
	CreatePurchaseOrder(ctx context.Context, input orders.CreateInput) (orders.WithLines, error)
}

// Service builds drafts and submits them.
type Service struct {
	shortfall ShortfallSource
	prices    PriceSource
	orders    OrderPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the drafter.
func NewService(sf ShortfallSource, prices PriceSource, orders OrderPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{shortfall: sf, prices: prices, orders: orders, logger: logger, now: time.Now}
}

// Drafts returns one group per supplier for every item with a shortfall.
func (s *Service) Drafts(ctx context.Context) ([]Group, error) {
	items, err := s.shortfall.Items(ctx)
	if err != nil {
		return nil, err
	}
	var quotes []orders.PriceQuote
	if s.prices != nil {
		if quotes, err = s.prices.LastPurchasePrices(ctx); err != nil {
			return nil, err
		}
	}
	groups := BuildGroups(items, quotes)
	if groups == nil {
		groups = []Group{}
	}
	return groups, nil
}

// SubmitOptions carries the header fields chosen at submission.
type SubmitOptions struct {
	RequestedDate  time.Time
	Note           string
	IdempotencyKey string
}

// Submit validates a reviewed group and places it as a purchase order. Only
// selected rows with a positive quantity become order lines; a row without
// price is ordered at zero expected price. It returns the new order number.
func (s *Service) Submit(ctx context.Context, g Group, opts SubmitOptions) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	requested := opts.RequestedDate
	if requested.IsZero() {
		requested = s.now()
	}
	input := orders.CreateInput{
		Direction:      orders.DirectionPurchase,
		Counterparty:   orders.Counterparty{ID: g.Key.ID, Name: g.Key.Name},
		RequestedDate:  requested,
		Note:           opts.Note,
		IdempotencyKey: opts.IdempotencyKey,
	}
	for _, r := range g.submittable() {
		line := orders.LineInput{
			Item:     orders.ItemRef{ItemID: r.ItemID, Name: r.ItemName},
			Unit:     r.Unit,
			Quantity: r.Quantity,
		}
		if r.Price.Valid {
			line.ExpectedPrice = r.Price.Decimal
		}
		input.Lines = append(input.Lines, line)
	}
	created, err := s.orders.CreatePurchaseOrder(ctx, input)
	if err != nil {
		return "", err
	}
	s.logger.Info("purchase order submitted",
		slog.String("number", created.Order.Number),
		slog.String("supplier", created.Order.Counterparty.Name),
		slog.Int("lines", len(created.Lines)))
	return created.Order.Number, nil
}

// Edit is one operator change to a draft row. Unset fields keep the suggestion.
type Edit struct {
	ItemID   int64
	Quantity decimal.NullDecimal
	Price    decimal.NullDecimal
	Selected *bool
}

// Review carries the operator's changes to the server-side draft of one supplier.
type Review struct {
	Supplier  GroupKey
	SelectAll *bool
	Edits     []Edit
}

// SubmitDraft rebuilds the current draft for the reviewed supplier, applies
// the edits in order and submits the result. A supplier id sent together with
// the name of a group keyed by name only binds the id before submission.
func (s *Service) SubmitDraft(ctx context.Context, review Review, opts SubmitOptions) (string, error) {
	groups, err := s.Drafts(ctx)
	if err != nil {
		return "", err
	}
	g, err := findGroup(groups, review.Supplier)
	if err != nil {
		return "", err
	}
	if review.SelectAll != nil {
		g.ToggleAll(*review.SelectAll)
	}
	for _, e := range review.Edits {
		if e.Quantity.Valid {
			if err := g.SetQuantity(e.ItemID, e.Quantity.Decimal); err != nil {
				return "", err
			}
		}
		if e.Price.Valid {
			if err := g.SetPrice(e.ItemID, e.Price); err != nil {
				return "", err
			}
		}
		if e.Selected != nil {
			if err := g.SetSelected(e.ItemID, *e.Selected); err != nil {
				return "", err
			}
		}
	}
	return s.Submit(ctx, g, opts)
}

func findGroup(groups []Group, key GroupKey) (Group, error) {
	for _, g := range groups {
		if g.Key.Equal(key) {
			return g, nil
		}
	}
	if key.ID != nil && foldName(key.Name) != "" {
		byName := GroupKey{Name: key.Name}
		for _, g := range groups {
			if g.Key.ID == nil && g.Key.Equal(byName) {
				g.BindSupplier(*key.ID, key.Name)
				return g, nil
			}
		}
	}
	return Group{}, fmt.Errorf("draft for supplier %q: %w", key.Name, shared.ErrNotFound)
}
