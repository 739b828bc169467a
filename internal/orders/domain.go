package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freshline/internal/catalog"
)

// Direction discriminates supplier-bound purchase orders from customer-bound sale orders.
type Direction string

const (
	DirectionPurchase Direction = "PURCHASE"
	DirectionSale     Direction = "SALE"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionPurchase || d == DirectionSale
}

// Status represents the lifecycle of an order.
type Status string

const (
	StatusDraft     Status = "DRAFT"     // intake state, editable
	StatusPlaced    Status = "PLACED"    // sent to counterparty, in transit for purchases
	StatusReceived  Status = "RECEIVED"  // reconciled, terminal
	StatusCancelled Status = "CANCELLED" // terminal
)

// Valid checks if the status is known.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPlaced, StatusReceived, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanPlace checks if the order can be placed.
func (s Status) CanPlace() bool {
	return s == StatusDraft
}

// CanReceive checks if the order can be received or fulfilled.
func (s Status) CanReceive() bool {
	return s == StatusPlaced
}

// CanCancel checks if the order can be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusDraft || s == StatusPlaced
}

// OpenStatuses are listed when callers do not ask for closed orders.
var OpenStatuses = []Status{StatusDraft, StatusPlaced}

// Counterparty references the supplier or customer of an order. Name is kept
// even when ID is set so listings do not need a join.
type Counterparty struct {
	ID   *int64 `json:"id,omitempty"`
	Name string `json:"name"`
}

// Resolved reports whether the order has someone to be placed with.
func (c Counterparty) Resolved() bool {
	return c.ID != nil || strings.TrimSpace(c.Name) != ""
}

// ItemRef points at a catalog item, or carries a free-text name when no catalog match exists.
type ItemRef struct {
	ItemID *int64 `json:"item_id,omitempty"`
	Name   string `json:"item_name"`
}

// Resolved reports whether the reference identifies anything.
func (r ItemRef) Resolved() bool {
	return r.ItemID != nil || strings.TrimSpace(r.Name) != ""
}

// Order is the header shared by both directions.
type Order struct {
	ID            int64               `json:"id"`
	Number        string              `json:"number"`
	Direction     Direction           `json:"direction"`
	Counterparty  Counterparty        `json:"counterparty"`
	CreatedAt     time.Time           `json:"created_at"`
	PlacedAt      *time.Time          `json:"placed_at,omitempty"`
	ReceivedAt    *time.Time          `json:"received_at,omitempty"`
	RequestedDate time.Time           `json:"requested_date"`
	Status        Status              `json:"status"`
	ExpectedTotal decimal.Decimal     `json:"expected_total"`
	ActualTotal   decimal.NullDecimal `json:"actual_total"`
	Note          string              `json:"note,omitempty"`
}

// Line belongs to exactly one order.
type Line struct {
	ID                int64               `json:"id"`
	OrderID           int64               `json:"order_id"`
	Item              ItemRef             `json:"item"`
	Unit              catalog.Unit        `json:"unit"`
	Quantity          decimal.Decimal     `json:"quantity"`
	ExpectedPrice     decimal.Decimal     `json:"expected_price"`
	DeliveredQuantity decimal.NullDecimal `json:"delivered_quantity"`
	ActualPrice       decimal.NullDecimal `json:"actual_price"`
	Note              string              `json:"note,omitempty"`
	VATRate           decimal.NullDecimal `json:"vat_rate"`
}

// Summary is a listing row.
type Summary struct {
	Order
	LineCount int `json:"line_count"`
}

// WithLines pairs a header with its lines.
type WithLines struct {
	Order Order  `json:"header"`
	Lines []Line `json:"lines"`
}

// ListFilter narrows order listings. Statuses is resolved by the service from
// Status and IncludeClosed before reaching the repository.
type ListFilter struct {
	Direction     Direction
	Status        Status
	Counterparty  string
	DateFrom      *time.Time
	DateTo        *time.Time
	Query         string
	IncludeClosed bool
	Limit         int
	Offset        int

	Statuses []Status
}

// PriceQuote is the latest known purchase price for an item from a supplier.
type PriceQuote struct {
	ItemID       int64
	SupplierID   *int64
	SupplierName string
	Price        decimal.Decimal
	OrderedAt    time.Time
}

const (
	qtyPlaces   = 3
	moneyPlaces = 2
)

// RoundQty rounds quantities to the precision used across the system.
func RoundQty(d decimal.Decimal) decimal.Decimal {
	return d.Round(qtyPlaces)
}

// RoundMoney rounds totals to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}
