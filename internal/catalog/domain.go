// Package catalog holds long-lived master records: stock items and parties.
// They are maintained outside this service; the core only reads them and
// adjusts on-hand quantities through the order lifecycle.
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Unit of measure used on stock items and order lines.
type Unit string

const (
	UnitKilogram  Unit = "kg"
	UnitPiece     Unit = "ks"
	UnitLinearMtr Unit = "bm"
)

// Valid reports whether u is one of the supported units.
func (u Unit) Valid() bool {
	switch u {
	case UnitKilogram, UnitPiece, UnitLinearMtr:
		return true
	default:
		return false
	}
}

// ParseUnit normalises free-form unit text.
func ParseUnit(raw string) (Unit, bool) {
	u := Unit(strings.ToLower(strings.TrimSpace(raw)))
	return u, u.Valid()
}

// StockItem is a warehouse article with its replenishment threshold.
type StockItem struct {
	ID           int64
	Name         string
	Unit         Unit
	OnHand       decimal.Decimal
	Minimum      decimal.Decimal
	Packaging    string
	Category     string
	SupplierID   *int64
	SupplierName string
	DefaultPrice decimal.NullDecimal
}

// PartyKind distinguishes suppliers from customers.
type PartyKind string

const (
	PartySupplier PartyKind = "SUPPLIER"
	PartyCustomer PartyKind = "CUSTOMER"
)

// Party is a supplier or a customer.
type Party struct {
	ID      int64
	Kind    PartyKind
	Name    string
	Address string
	// RouteName is the customer's default delivery round.
	RouteName string
	// RoutePosition is the stored stop sequence; nil when never set.
	RoutePosition *int
}
