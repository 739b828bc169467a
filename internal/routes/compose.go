// Package routes derives delivery routes for a date from sale orders. Routes
// are recomputed on every request; the only stored attribute is each
// customer's stop sequence.
package routes

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/orders"
)

// UncategorizedLabel names the bucket for items without a category tag.
const UncategorizedLabel = "Uncategorized"

// Stop is one customer on a route.
type Stop struct {
	CustomerID     *int64   `json:"customer_id,omitempty"`
	Customer       string   `json:"customer"`
	Address        string   `json:"address,omitempty"`
	Sequence       int      `json:"sequence"`
	StoredSequence *int     `json:"stored_sequence,omitempty"`
	OrderNumbers   []string `json:"order_numbers"`
	OrderCount     int      `json:"order_count"`

	firstOrderID int64
}

// SummaryItem is the loaded quantity of one item in one unit.
type SummaryItem struct {
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     catalog.Unit    `json:"unit"`
}

// CategorySummary groups loaded items by category.
type CategorySummary struct {
	Category string        `json:"category"`
	Items    []SummaryItem `json:"items"`
}

// Route is the derived view for one delivery round on one date.
type Route struct {
	Name       string            `json:"route_name"`
	Date       time.Time         `json:"date"`
	Stops      []Stop            `json:"stops"`
	Categories []CategorySummary `json:"category_summary"`
}

// ComposeInput carries everything Compose needs; it performs no I/O.
type ComposeInput struct {
	Date         time.Time
	Orders       []orders.WithLines
	Customers    map[int64]catalog.Party
	Items        map[int64]catalog.StockItem
	Locale       language.Tag
	DefaultLabel string
}

type customerKey struct {
	id   int64
	name string
}

func keyFor(cp orders.Counterparty) customerKey {
	if cp.ID != nil {
		return customerKey{id: *cp.ID}
	}
	return customerKey{name: strings.ToLower(strings.TrimSpace(cp.Name))}
}

type summaryKey struct {
	category string
	item     string
	unit     catalog.Unit
}

type routeBuilder struct {
	route  Route
	stops  map[customerKey]int
	totals map[summaryKey]decimal.Decimal
	names  map[summaryKey]string
}

// Compose groups sale orders into routes and stops. Orders are expected in
// insertion order (ascending id); unsequenced customers keep that order.
func Compose(in ComposeInput) []Route {
	label := strings.TrimSpace(in.DefaultLabel)
	builders := make(map[string]*routeBuilder)
	var routeOrder []string

	sorted := append([]orders.WithLines(nil), in.Orders...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order.ID < sorted[j].Order.ID })

	for _, o := range sorted {
		cp := o.Order.Counterparty
		var party catalog.Party
		known := false
		if cp.ID != nil {
			party, known = in.Customers[*cp.ID]
		}
		routeName := label
		if known && strings.TrimSpace(party.RouteName) != "" {
			routeName = strings.TrimSpace(party.RouteName)
		}
		b, ok := builders[routeName]
		if !ok {
			b = &routeBuilder{
				route:  Route{Name: routeName, Date: in.Date},
				stops:  make(map[customerKey]int),
				totals: make(map[summaryKey]decimal.Decimal),
				names:  make(map[summaryKey]string),
			}
			builders[routeName] = b
			routeOrder = append(routeOrder, routeName)
		}

		key := keyFor(cp)
		idx, ok := b.stops[key]
		if !ok {
			stop := Stop{CustomerID: cp.ID, Customer: strings.TrimSpace(cp.Name), firstOrderID: o.Order.ID}
			if known {
				stop.Customer = party.Name
				stop.Address = party.Address
				stop.StoredSequence = party.RoutePosition
			}
			idx = len(b.route.Stops)
			b.stops[key] = idx
			b.route.Stops = append(b.route.Stops, stop)
		}
		stop := &b.route.Stops[idx]
		stop.OrderNumbers = append(stop.OrderNumbers, o.Order.Number)
		stop.OrderCount++

		for _, l := range o.Lines {
			name, category := strings.TrimSpace(l.Item.Name), ""
			if l.Item.ItemID != nil {
				if item, ok := in.Items[*l.Item.ItemID]; ok {
					name, category = item.Name, strings.TrimSpace(item.Category)
				}
			}
			if category == "" {
				category = UncategorizedLabel
			}
			sk := summaryKey{category: category, item: strings.ToLower(name), unit: l.Unit}
			b.totals[sk] = b.totals[sk].Add(l.Quantity)
			if _, ok := b.names[sk]; !ok {
				b.names[sk] = name
			}
		}
	}

	coll := collate.New(in.Locale, collate.IgnoreCase)
	out := make([]Route, 0, len(routeOrder))
	for _, name := range routeOrder {
		b := builders[name]
		orderStops(coll, b.route.Stops)
		b.route.Categories = summarize(coll, b.totals, b.names)
		out = append(out, b.route)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Name == label) != (out[j].Name == label) {
			return out[j].Name == label
		}
		return coll.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out
}

// orderStops puts sequenced customers first by stored position, ties broken
// by locale-aware name, then unsequenced customers in insertion order.
func orderStops(coll *collate.Collator, stops []Stop) {
	sort.SliceStable(stops, func(i, j int) bool {
		a, b := stops[i], stops[j]
		switch {
		case a.StoredSequence != nil && b.StoredSequence != nil:
			if *a.StoredSequence != *b.StoredSequence {
				return *a.StoredSequence < *b.StoredSequence
			}
			if c := coll.CompareString(a.Customer, b.Customer); c != 0 {
				return c < 0
			}
			return a.firstOrderID < b.firstOrderID
		case a.StoredSequence != nil:
			return true
		case b.StoredSequence != nil:
			return false
		default:
			return a.firstOrderID < b.firstOrderID
		}
	})
	last := 0
	for i := range stops {
		if stops[i].StoredSequence != nil {
			stops[i].Sequence = *stops[i].StoredSequence
		} else {
			stops[i].Sequence = last + 1
		}
		if stops[i].Sequence > last {
			last = stops[i].Sequence
		}
	}
}

func summarize(coll *collate.Collator, totals map[summaryKey]decimal.Decimal, names map[summaryKey]string) []CategorySummary {
	byCategory := make(map[string][]SummaryItem)
	for k, qty := range totals {
		byCategory[k.category] = append(byCategory[k.category], SummaryItem{Name: names[k], Quantity: orders.RoundQty(qty), Unit: k.unit})
	}
	out := make([]CategorySummary, 0, len(byCategory))
	for cat, items := range byCategory {
		sort.Slice(items, func(i, j int) bool {
			if c := coll.CompareString(items[i].Name, items[j].Name); c != 0 {
				return c < 0
			}
			return items[i].Unit < items[j].Unit
		})
		out = append(out, CategorySummary{Category: cat, Items: items})
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Category == UncategorizedLabel) != (out[j].Category == UncategorizedLabel) {
			return out[j].Category == UncategorizedLabel
		}
		return coll.CompareString(out[i].Category, out[j].Category) < 0
	})
	return out
}
