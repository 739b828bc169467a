// Package shortfall computes how much of each stock item still needs buying
// once on-hand stock and open purchase orders are taken into account.
package shortfall

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freshline/internal/catalog"
)

const places = 3

// Compute returns max(minimum - (onHand + inTransit), 0) rounded to three decimals.
// Quantities already on order count as covered so they are not suggested again.
func Compute(onHand, minimum, inTransit decimal.Decimal) decimal.Decimal {
	gap := minimum.Sub(onHand.Add(inTransit)).Round(places)
	if gap.IsPositive() {
		return gap
	}
	return decimal.Zero
}

// Item is one row of the shortfall view.
type Item struct {
	ItemID       int64               `json:"item_id"`
	Name         string              `json:"item"`
	Unit         catalog.Unit        `json:"unit"`
	OnHand       decimal.Decimal     `json:"on_hand"`
	Minimum      decimal.Decimal     `json:"minimum"`
	InTransit    decimal.Decimal     `json:"in_transit"`
	Shortfall    decimal.Decimal     `json:"shortfall"`
	SupplierID   *int64              `json:"supplier_id,omitempty"`
	SupplierName string              `json:"supplier,omitempty"`
	Category     string              `json:"category,omitempty"`
	Packaging    string              `json:"packaging,omitempty"`
	DefaultPrice decimal.NullDecimal `json:"-"`
}

// StockSource lists catalog items.
type StockSource interface {
	ListStockItems(ctx context.Context) ([]catalog.StockItem, error)
}

// TransitSource reports quantities on PLACED purchase orders per item.
type TransitSource interface {
	InTransitByItem(ctx context.Context) (map[int64]decimal.Decimal, error)
}

// Service assembles the shortfall view.
type Service struct {
	stock   StockSource
	transit TransitSource
}

// NewService constructs the service. transit may be nil, in which case
// nothing is considered in transit.
func NewService(stock StockSource, transit TransitSource) *Service {
	return &Service{stock: stock, transit: transit}
}

// Items returns every item with a positive shortfall, ordered by supplier then item name.
func (s *Service) Items(ctx context.Context) ([]Item, error) {
	stock, err := s.stock.ListStockItems(ctx)
	if err != nil {
		return nil, err
	}
	var inTransit map[int64]decimal.Decimal
	if s.transit != nil {
		if inTransit, err = s.transit.InTransitByItem(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]Item, 0)
	for _, si := range stock {
		transit := inTransit[si.ID]
		qty := Compute(si.OnHand, si.Minimum, transit)
		if !qty.IsPositive() {
			continue
		}
		out = append(out, Item{
			ItemID:       si.ID,
			Name:         si.Name,
			Unit:         si.Unit,
			OnHand:       si.OnHand,
			Minimum:      si.Minimum,
			InTransit:    transit,
			Shortfall:    qty,
			SupplierID:   si.SupplierID,
			SupplierName: si.SupplierName,
			Category:     si.Category,
			Packaging:    si.Packaging,
			DefaultPrice: si.DefaultPrice,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].SupplierName), strings.ToLower(out[j].SupplierName)
		if a != b {
			return a < b
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Count returns how many items currently need buying.
func (s *Service) Count(ctx context.Context) (int, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
