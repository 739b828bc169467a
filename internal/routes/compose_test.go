package routes

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/orders"
)

var deliveryDay = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func i64(v int64) *int64 { return &v }

func pos(v int) *int { return &v }

func saleOrder(id, customerID int64, customer string, lines ...orders.Line) orders.WithLines {
	return orders.WithLines{
		Order: orders.Order{
			ID:            id,
			Number:        fmt.Sprintf("SO-20260303-%05d", id),
			Direction:     orders.DirectionSale,
			Counterparty:  orders.Counterparty{ID: i64(customerID), Name: customer},
			RequestedDate: deliveryDay,
			Status:        orders.StatusPlaced,
		},
		Lines: lines,
	}
}

func line(itemID int64, name string, unit catalog.Unit, qty string) orders.Line {
	l := orders.Line{Item: orders.ItemRef{Name: name}, Unit: unit, Quantity: dec(qty)}
	if itemID != 0 {
		l.Item.ItemID = i64(itemID)
	}
	return l
}

func testItems() map[int64]catalog.StockItem {
	return map[int64]catalog.StockItem{
		10: {ID: 10, Name: "Mrkev", Unit: catalog.UnitKilogram, Category: "Zelenina"},
		11: {ID: 11, Name: "Mléko", Unit: catalog.UnitPiece},
		12: {ID: 12, Name: "Brambory", Unit: catalog.UnitKilogram, Category: "Zelenina"},
	}
}

func compose(sales []orders.WithLines, customers map[int64]catalog.Party) []Route {
	return Compose(ComposeInput{
		Date:         deliveryDay,
		Orders:       sales,
		Customers:    customers,
		Items:        testItems(),
		Locale:       language.Czech,
		DefaultLabel: "Unassigned route",
	})
}

func TestComposeOneStopPerCustomerAndCategoryTotals(t *testing.T) {
	customers := map[int64]catalog.Party{
		1: {ID: 1, Kind: catalog.PartyCustomer, Name: "Alfa", Address: "Hlavní 1"},
		2: {ID: 2, Kind: catalog.PartyCustomer, Name: "Beta"},
	}
	sales := []orders.WithLines{
		saleOrder(1, 1, "Alfa", line(10, "Mrkev", catalog.UnitKilogram, "2.5"), line(11, "Mléko", catalog.UnitPiece, "6")),
		saleOrder(2, 2, "Beta", line(10, "Mrkev", catalog.UnitKilogram, "1"), line(0, "Chléb", catalog.UnitPiece, "3")),
		saleOrder(3, 1, "Alfa", line(10, "Mrkev", catalog.UnitKilogram, "0.75"), line(12, "Brambory", catalog.UnitKilogram, "10")),
	}

	routes := compose(sales, customers)
	require.Len(t, routes, 1)
	r := routes[0]
	assert.Equal(t, "Unassigned route", r.Name)
	require.Len(t, r.Stops, 2)
	assert.Equal(t, "Alfa", r.Stops[0].Customer)
	assert.Equal(t, 2, r.Stops[0].OrderCount)
	assert.Len(t, r.Stops[0].OrderNumbers, 2)
	assert.Equal(t, "Hlavní 1", r.Stops[0].Address)
	assert.Equal(t, 1, r.Stops[0].Sequence)
	assert.Equal(t, "Beta", r.Stops[1].Customer)
	assert.Equal(t, 2, r.Stops[1].Sequence)

	require.Len(t, r.Categories, 2)
	veg := r.Categories[0]
	assert.Equal(t, "Zelenina", veg.Category)
	require.Len(t, veg.Items, 2)
	assert.Equal(t, "Brambory", veg.Items[0].Name)
	assert.Equal(t, "Mrkev", veg.Items[1].Name)
	assert.True(t, dec("4.25").Equal(veg.Items[1].Quantity), "sum across all three orders")

	other := r.Categories[1]
	assert.Equal(t, UncategorizedLabel, other.Category)
	require.Len(t, other.Items, 2)
	assert.Equal(t, "Chléb", other.Items[0].Name)
	assert.Equal(t, "Mléko", other.Items[1].Name)
}

func TestComposeStoredSequenceWinsOverInsertionOrder(t *testing.T) {
	customers := map[int64]catalog.Party{
		1: {ID: 1, Name: "Alfa", RoutePosition: pos(1)},
		2: {ID: 2, Name: "Beta"},
	}
	sales := []orders.WithLines{
		saleOrder(1, 2, "Beta", line(10, "Mrkev", catalog.UnitKilogram, "1")),
		saleOrder(2, 1, "Alfa", line(10, "Mrkev", catalog.UnitKilogram, "1")),
	}
	first := compose(sales, customers)
	for i := 0; i < 5; i++ {
		again := compose(sales, customers)
		require.Equal(t, first, again, "composition is stable across reads")
	}
	stops := first[0].Stops
	require.Len(t, stops, 2)
	assert.Equal(t, "Alfa", stops[0].Customer)
	assert.Equal(t, 1, stops[0].Sequence)
	assert.Equal(t, "Beta", stops[1].Customer)
	assert.Equal(t, 2, stops[1].Sequence)
}

func TestComposeTieBreakUsesLocaleCollation(t *testing.T) {
	names := map[int64]string{1: "Hora", 2: "Chalupa", 3: "Čermák", 4: "Cibulka", 5: "Dvořák"}
	customers := make(map[int64]catalog.Party)
	var sales []orders.WithLines
	for id := int64(1); id <= 5; id++ {
		customers[id] = catalog.Party{ID: id, Name: names[id], RoutePosition: pos(3)}
		sales = append(sales, saleOrder(id, id, names[id], line(10, "Mrkev", catalog.UnitKilogram, "1")))
	}
	stops := compose(sales, customers)[0].Stops
	got := make([]string, 0, len(stops))
	for _, s := range stops {
		got = append(got, s.Customer)
		assert.Equal(t, 3, s.Sequence)
	}
	assert.Equal(t, []string{"Cibulka", "Čermák", "Dvořák", "Hora", "Chalupa"}, got)
}

func TestComposeUnsequencedStopsContinueAfterStoredPositions(t *testing.T) {
	customers := map[int64]catalog.Party{
		1: {ID: 1, Name: "Alfa", RoutePosition: pos(5)},
		2: {ID: 2, Name: "Beta"},
		3: {ID: 3, Name: "Gama"},
	}
	sales := []orders.WithLines{
		saleOrder(1, 3, "Gama", line(10, "Mrkev", catalog.UnitKilogram, "1")),
		saleOrder(2, 2, "Beta", line(10, "Mrkev", catalog.UnitKilogram, "1")),
		saleOrder(3, 1, "Alfa", line(10, "Mrkev", catalog.UnitKilogram, "1")),
	}
	stops := compose(sales, customers)[0].Stops
	require.Len(t, stops, 3)
	assert.Equal(t, []int{5, 6, 7}, []int{stops[0].Sequence, stops[1].Sequence, stops[2].Sequence})
	assert.Equal(t, "Gama", stops[1].Customer, "insertion order among unsequenced customers")
}

func TestComposeGroupsByCustomerRoute(t *testing.T) {
	customers := map[int64]catalog.Party{
		1: {ID: 1, Name: "Alfa", RouteName: "Sever"},
		2: {ID: 2, Name: "Beta", RouteName: "Jih"},
		3: {ID: 3, Name: "Gama"},
	}
	sales := []orders.WithLines{
		saleOrder(1, 3, "Gama", line(10, "Mrkev", catalog.UnitKilogram, "1")),
		saleOrder(2, 1, "Alfa", line(10, "Mrkev", catalog.UnitKilogram, "1")),
		saleOrder(3, 2, "Beta", line(10, "Mrkev", catalog.UnitKilogram, "1")),
	}
	routes := compose(sales, customers)
	require.Len(t, routes, 3)
	assert.Equal(t, "Jih", routes[0].Name)
	assert.Equal(t, "Sever", routes[1].Name)
	assert.Equal(t, "Unassigned route", routes[2].Name)
	assert.Equal(t, deliveryDay, routes[0].Date)
}

func TestComposeEmptyDay(t *testing.T) {
	assert.Empty(t, compose(nil, nil))
}

func TestDocumentsAreProjections(t *testing.T) {
	customers := map[int64]catalog.Party{1: {ID: 1, Name: "Alfa", Address: "Hlavní 1"}}
	r := compose([]orders.WithLines{saleOrder(1, 1, "Alfa", line(10, "Mrkev", catalog.UnitKilogram, "2"))}, customers)[0]

	checklist := NewChecklist(r)
	require.Len(t, checklist.Rows, 1)
	assert.False(t, checklist.Rows[0].Prepared)
	assert.False(t, checklist.Rows[0].Loaded)
	txt, err := checklist.Text()
	require.NoError(t, err)
	assert.Contains(t, txt, "Alfa, Hlavní 1")
	assert.Contains(t, txt, "prepared [ ]  loaded [ ]")

	blind := NewBlindSummary(r)
	txt, err = blind.Text()
	require.NoError(t, err)
	assert.Contains(t, txt, "Zelenina")
	assert.Contains(t, txt, "2.000 kg")
	assert.NotContains(t, txt, "Alfa")

	html, err := blind.HTML()
	require.NoError(t, err)
	assert.Contains(t, html, "<h2>Zelenina</h2>")
}
