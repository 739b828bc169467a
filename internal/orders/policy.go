package orders

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/shared"
)

// Policy carries the direction-specific rules plugged into the shared state machine.
type Policy struct {
	Direction    Direction
	NumberPrefix string
	// StockSign is applied to delivered quantities when an order is received.
	StockSign int64
	// CounterpartyKind is the party kind an order of this direction must reference.
	CounterpartyKind catalog.PartyKind
	// ValidateLine runs after the common line checks.
	ValidateLine func(Line) error
}

var hundred = decimal.NewFromInt(100)

var policies = map[Direction]Policy{
	DirectionPurchase: {
		Direction:        DirectionPurchase,
		NumberPrefix:     "PO",
		StockSign:        1,
		CounterpartyKind: catalog.PartySupplier,
		ValidateLine: func(l Line) error {
			if l.VATRate.Valid {
				return shared.Validationf("purchase lines do not carry a VAT rate")
			}
			return nil
		},
	},
	DirectionSale: {
		Direction:        DirectionSale,
		NumberPrefix:     "SO",
		StockSign:        -1,
		CounterpartyKind: catalog.PartyCustomer,
		ValidateLine: func(l Line) error {
			if l.VATRate.Valid && (l.VATRate.Decimal.IsNegative() || l.VATRate.Decimal.GreaterThan(hundred)) {
				return shared.Validationf("VAT rate must be between 0 and 100")
			}
			return nil
		},
	},
}

// PolicyFor returns the rules for d.
func PolicyFor(d Direction) (Policy, error) {
	p, ok := policies[d]
	if !ok {
		return Policy{}, shared.Validationf("unknown direction %q", d)
	}
	return p, nil
}

// CheckLine applies the common and direction-specific line rules.
func (p Policy) CheckLine(idx int, l Line) error {
	if !l.Item.Resolved() {
		return shared.Validationf("line %d: item reference required", idx+1)
	}
	if !l.Unit.Valid() {
		return shared.Validationf("line %d: unsupported unit %q", idx+1, l.Unit)
	}
	if l.Quantity.IsNegative() {
		return shared.Validationf("line %d: quantity must not be negative", idx+1)
	}
	if l.ExpectedPrice.IsNegative() {
		return shared.Validationf("line %d: price must not be negative", idx+1)
	}
	if p.ValidateLine != nil {
		if err := p.ValidateLine(l); err != nil {
			return fmt.Errorf("line %d: %w", idx+1, err)
		}
	}
	return nil
}

// CheckPlaceable enforces the preconditions of Place.
func (p Policy) CheckPlaceable(o Order, lines []Line) error {
	if !o.Counterparty.Resolved() {
		return shared.Validationf("counterparty required")
	}
	for _, l := range lines {
		if l.Quantity.IsPositive() {
			return nil
		}
	}
	return shared.Validationf("at least one line with positive quantity required")
}

func (p Policy) lineAmount(qty, price decimal.Decimal, vat decimal.NullDecimal) decimal.Decimal {
	amount := qty.Mul(price)
	if p.Direction == DirectionSale && vat.Valid {
		amount = amount.Mul(hundred.Add(vat.Decimal)).Div(hundred)
	}
	return amount
}

// ExpectedTotal sums ordered quantity times expected price.
func (p Policy) ExpectedTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(p.lineAmount(l.Quantity, l.ExpectedPrice, l.VATRate))
	}
	return RoundMoney(total)
}

// ActualTotal sums delivered quantity times actual price. Lines not yet
// reconciled fall back to their ordered values.
func (p Policy) ActualTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		qty := l.Quantity
		if l.DeliveredQuantity.Valid {
			qty = l.DeliveredQuantity.Decimal
		}
		price := l.ExpectedPrice
		if l.ActualPrice.Valid {
			price = l.ActualPrice.Decimal
		}
		total = total.Add(p.lineAmount(qty, price, l.VATRate))
	}
	return RoundMoney(total)
}

// StockDelta is the on-hand change caused by receiving delivered units.
func (p Policy) StockDelta(delivered decimal.Decimal) decimal.Decimal {
	return delivered.Mul(decimal.NewFromInt(p.StockSign))
}
