// Package replenishment turns shortfall rows into supplier-grouped purchase
// order drafts and submits reviewed drafts as placed purchase orders.
package replenishment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/orders"
	"github.com/odyssey-erp/freshline/internal/shared"
	"github.com/odyssey-erp/freshline/internal/shortfall"
)

// GroupKey identifies a supplier group: by id when known, otherwise by display name.
type GroupKey struct {
	ID   *int64 `json:"supplier_id,omitempty"`
	Name string `json:"supplier_name"`
}

func foldName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Equal compares ids when either side has one, names otherwise.
func (k GroupKey) Equal(other GroupKey) bool {
	if k.ID != nil || other.ID != nil {
		return k.ID != nil && other.ID != nil && *k.ID == *other.ID
	}
	return foldName(k.Name) == foldName(other.Name)
}

// Resolved reports whether the group names a supplier at all.
func (k GroupKey) Resolved() bool {
	return k.ID != nil || foldName(k.Name) != ""
}

// mapKey is a comparable form of the key consistent with Equal.
func (k GroupKey) mapKey() string {
	if k.ID != nil {
		return fmt.Sprintf("id:%d", *k.ID)
	}
	return "name:" + foldName(k.Name)
}

// Price sources reported on each row.
const (
	PriceFromLastPurchase = "last_purchase"
	PriceFromCatalog      = "catalog"
)

// Row is one editable draft line.
type Row struct {
	ItemID      *int64              `json:"item_id,omitempty"`
	ItemName    string              `json:"item_name"`
	Unit        catalog.Unit        `json:"unit"`
	Category    string              `json:"category,omitempty"`
	Shortfall   decimal.Decimal     `json:"shortfall"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Price       decimal.NullDecimal `json:"price"`
	PriceSource string              `json:"price_source,omitempty"`
	Selected    bool                `json:"selected"`
}

// Group is a draft purchase order for one supplier.
type Group struct {
	Key  GroupKey `json:"supplier"`
	Rows []Row    `json:"rows"`
}

func (g *Group) row(itemID int64) (*Row, error) {
	for i := range g.Rows {
		if g.Rows[i].ItemID != nil && *g.Rows[i].ItemID == itemID {
			return &g.Rows[i], nil
		}
	}
	return nil, shared.Validationf("item %d is not part of this draft", itemID)
}

// SetQuantity overrides the suggested quantity of one row.
func (g *Group) SetQuantity(itemID int64, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return shared.Validationf("quantity must not be negative")
	}
	r, err := g.row(itemID)
	if err != nil {
		return err
	}
	r.Quantity = orders.RoundQty(qty)
	return nil
}

// SetPrice overrides the price of one row; an invalid NullDecimal clears it.
func (g *Group) SetPrice(itemID int64, price decimal.NullDecimal) error {
	if price.Valid && price.Decimal.IsNegative() {
		return shared.Validationf("price must not be negative")
	}
	r, err := g.row(itemID)
	if err != nil {
		return err
	}
	r.Price = price
	r.PriceSource = ""
	return nil
}

// SetSelected toggles a single row.
func (g *Group) SetSelected(itemID int64, selected bool) error {
	r, err := g.row(itemID)
	if err != nil {
		return err
	}
	r.Selected = selected
	return nil
}

// ToggleAll sets every row to selected, never inverting rows individually.
func (g *Group) ToggleAll(selected bool) {
	for i := range g.Rows {
		g.Rows[i].Selected = selected
	}
}

// AllSelected reports whether every row is selected.
func (g *Group) AllSelected() bool {
	for _, r := range g.Rows {
		if !r.Selected {
			return false
		}
	}
	return len(g.Rows) > 0
}

// BindSupplier attaches a supplier id to a group that was keyed by name.
func (g *Group) BindSupplier(id int64, name string) {
	g.Key.ID = &id
	if strings.TrimSpace(name) != "" {
		g.Key.Name = name
	}
}

// submittable returns the selected rows with a positive quantity.
func (g Group) submittable() []Row {
	var out []Row
	for _, r := range g.Rows {
		if r.Selected && r.Quantity.IsPositive() {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks the submission preconditions.
func (g Group) Validate() error {
	if !g.Key.Resolved() {
		return shared.Validationf("supplier required: bind a supplier id or name before submitting")
	}
	for _, r := range g.Rows {
		if r.Quantity.IsNegative() {
			return shared.Validationf("%s: quantity must not be negative", r.ItemName)
		}
	}
	if len(g.submittable()) == 0 {
		return shared.Validationf("no selected line with a positive quantity")
	}
	return nil
}

type priceIndex struct {
	byID   map[string]decimal.Decimal
	byName map[string]decimal.Decimal
}

func newPriceIndex(quotes []orders.PriceQuote) priceIndex {
	idx := priceIndex{byID: make(map[string]decimal.Decimal), byName: make(map[string]decimal.Decimal)}
	for _, q := range quotes {
		if q.SupplierID != nil {
			idx.byID[fmt.Sprintf("%d|%d", q.ItemID, *q.SupplierID)] = q.Price
		}
		if name := foldName(q.SupplierName); name != "" {
			idx.byName[fmt.Sprintf("%d|%s", q.ItemID, name)] = q.Price
		}
	}
	return idx
}

func (p priceIndex) lookup(itemID int64, key GroupKey) (decimal.Decimal, bool) {
	if key.ID != nil {
		if v, ok := p.byID[fmt.Sprintf("%d|%d", itemID, *key.ID)]; ok {
			return v, true
		}
	}
	if name := foldName(key.Name); name != "" {
		if v, ok := p.byName[fmt.Sprintf("%d|%s", itemID, name)]; ok {
			return v, true
		}
	}
	return decimal.Decimal{}, false
}

// BuildGroups clusters shortfall rows by supplier. Every row starts selected
// with the shortfall as quantity and the best known price.
func BuildGroups(items []shortfall.Item, quotes []orders.PriceQuote) []Group {
	prices := newPriceIndex(quotes)
	index := make(map[string]int)
	var groups []Group
	for _, it := range items {
		key := GroupKey{ID: it.SupplierID, Name: strings.TrimSpace(it.SupplierName)}
		pos, ok := index[key.mapKey()]
		if !ok {
			pos = len(groups)
			index[key.mapKey()] = pos
			groups = append(groups, Group{Key: key})
		}
		itemID := it.ItemID
		row := Row{
			ItemID:    &itemID,
			ItemName:  it.Name,
			Unit:      it.Unit,
			Category:  it.Category,
			Shortfall: it.Shortfall,
			Quantity:  orders.RoundQty(it.Shortfall),
			Selected:  true,
		}
		if price, ok := prices.lookup(it.ItemID, key); ok {
			row.Price = decimal.NewNullDecimal(price)
			row.PriceSource = PriceFromLastPurchase
		} else if it.DefaultPrice.Valid {
			row.Price = it.DefaultPrice
			row.PriceSource = PriceFromCatalog
		}
		groups[pos].Rows = append(groups[pos].Rows, row)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		// unresolved suppliers go last so they are noticed before submission
		ri, rj := groups[i].Key.Resolved(), groups[j].Key.Resolved()
		if ri != rj {
			return ri
		}
		return foldName(groups[i].Key.Name) < foldName(groups[j].Key.Name)
	})
	return groups
}
