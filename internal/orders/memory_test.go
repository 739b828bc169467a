package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	seq    int64
	nextID int64
	orders map[int64]Order
	lines  map[int64][]Line
	stock  map[int64]decimal.Decimal
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders: make(map[int64]Order),
		lines:  make(map[int64][]Line),
		stock:  make(map[int64]decimal.Decimal),
	}
}

type memorySnapshot struct {
	seq, nextID int64
	orders      map[int64]Order
	lines       map[int64][]Line
	stock       map[int64]decimal.Decimal
}

func (m *memoryRepo) snapshot() memorySnapshot {
	s := memorySnapshot{seq: m.seq, nextID: m.nextID,
		orders: make(map[int64]Order, len(m.orders)),
		lines:  make(map[int64][]Line, len(m.lines)),
		stock:  make(map[int64]decimal.Decimal, len(m.stock)),
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	for k, v := range m.lines {
		s.lines[k] = append([]Line(nil), v...)
	}
	for k, v := range m.stock {
		s.stock[k] = v
	}
	return s
}

func (m *memoryRepo) restore(s memorySnapshot) {
	m.seq, m.nextID, m.orders, m.lines, m.stock = s.seq, s.nextID, s.orders, s.lines, s.stock
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memoryRepo) GetOrder(_ context.Context, id int64) (Order, []Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, nil, shared.ErrNotFound
	}
	return o, append([]Line(nil), m.lines[id]...), nil
}

func (m *memoryRepo) ListOrders(_ context.Context, f ListFilter) ([]Summary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []Summary
	for _, o := range m.orders {
		if f.Direction != "" && o.Direction != f.Direction {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, o.Status) {
			continue
		}
		name := strings.ToLower(o.Counterparty.Name)
		if f.Counterparty != "" && !strings.Contains(name, strings.ToLower(f.Counterparty)) {
			continue
		}
		if f.DateFrom != nil && o.RequestedDate.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && o.RequestedDate.After(*f.DateTo) {
			continue
		}
		if f.Query != "" {
			q := strings.ToLower(f.Query)
			if !strings.Contains(strings.ToLower(o.Number), q) && !strings.Contains(name, q) {
				continue
			}
		}
		matched = append(matched, Summary{Order: o, LineCount: len(m.lines[o.ID])})
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].RequestedDate.Equal(matched[j].RequestedDate) {
			return matched[i].RequestedDate.After(matched[j].RequestedDate)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memoryRepo) InTransitByItem(context.Context) (map[int64]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]decimal.Decimal)
	for id, o := range m.orders {
		if o.Direction != DirectionPurchase || o.Status != StatusPlaced {
			continue
		}
		for _, l := range m.lines[id] {
			if l.Item.ItemID != nil {
				out[*l.Item.ItemID] = out[*l.Item.ItemID].Add(l.Quantity)
			}
		}
	}
	return out, nil
}

func (m *memoryRepo) LastPurchasePrices(context.Context) ([]PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]PriceQuote)
	for id, o := range m.orders {
		if o.Direction != DirectionPurchase || o.Status == StatusCancelled {
			continue
		}
		for _, l := range m.lines[id] {
			if l.Item.ItemID == nil {
				continue
			}
			supplier := strings.ToLower(strings.TrimSpace(o.Counterparty.Name))
			if o.Counterparty.ID != nil {
				supplier = fmt.Sprintf("#%d", *o.Counterparty.ID)
			}
			key := fmt.Sprintf("%d|%s", *l.Item.ItemID, supplier)
			price := l.ExpectedPrice
			if l.ActualPrice.Valid {
				price = l.ActualPrice.Decimal
			}
			if prev, ok := latest[key]; ok && prev.OrderedAt.After(o.CreatedAt) {
				continue
			}
			latest[key] = PriceQuote{ItemID: *l.Item.ItemID, SupplierID: o.Counterparty.ID, SupplierName: o.Counterparty.Name, Price: price, OrderedAt: o.CreatedAt}
		}
	}
	out := make([]PriceQuote, 0, len(latest))
	for _, q := range latest {
		out = append(out, q)
	}
	return out, nil
}

func (m *memoryRepo) SaleOrdersForDate(_ context.Context, date time.Time, statuses []Status) ([]WithLines, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WithLines
	for id, o := range m.orders {
		if o.Direction == DirectionSale && o.RequestedDate.Equal(date) && containsStatus(statuses, o.Status) {
			out = append(out, WithLines{Order: o, Lines: append([]Line(nil), m.lines[id]...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order.ID < out[j].Order.ID })
	return out, nil
}

func (m *memoryRepo) onHand(itemID int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[itemID]
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) NextNumber(_ context.Context, prefix string, at time.Time) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("%s-%s-%05d", prefix, at.Format("20060102"), t.repo.seq), nil
}

func (t *memoryTx) InsertOrder(_ context.Context, o Order) (int64, error) {
	t.repo.nextID++
	o.ID = t.repo.nextID
	t.repo.orders[o.ID] = o
	return o.ID, nil
}

func (t *memoryTx) InsertLine(_ context.Context, l Line) (int64, error) {
	if _, ok := t.repo.orders[l.OrderID]; !ok {
		return 0, shared.Storage("insert order line", fmt.Errorf("order %d missing", l.OrderID))
	}
	t.repo.nextID++
	l.ID = t.repo.nextID
	t.repo.lines[l.OrderID] = append(t.repo.lines[l.OrderID], l)
	return l.ID, nil
}

func (t *memoryTx) LockOrder(_ context.Context, id int64) (Order, []Line, error) {
	o, ok := t.repo.orders[id]
	if !ok {
		return Order{}, nil, shared.ErrNotFound
	}
	return o, append([]Line(nil), t.repo.lines[id]...), nil
}

func (t *memoryTx) UpdateOrder(_ context.Context, o Order) error {
	stored, ok := t.repo.orders[o.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Status = o.Status
	stored.PlacedAt = o.PlacedAt
	stored.ReceivedAt = o.ReceivedAt
	stored.ActualTotal = o.ActualTotal
	t.repo.orders[o.ID] = stored
	return nil
}

func (t *memoryTx) UpdateLineReceipt(_ context.Context, l Line) error {
	lines := t.repo.lines[l.OrderID]
	for i := range lines {
		if lines[i].ID == l.ID {
			lines[i].DeliveredQuantity = l.DeliveredQuantity
			lines[i].ActualPrice = l.ActualPrice
			return nil
		}
	}
	return shared.ErrNotFound
}

func (t *memoryTx) AdjustStock(_ context.Context, itemID int64, delta decimal.Decimal) error {
	current, ok := t.repo.stock[itemID]
	if !ok {
		return shared.ErrNotFound
	}
	next := current.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientStock
	}
	t.repo.stock[itemID] = next
	return nil
}

func (t *memoryTx) DeleteOrder(_ context.Context, id int64) error {
	if _, ok := t.repo.orders[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.repo.orders, id)
	delete(t.repo.lines, id)
	return nil
}

type memoryParties map[int64]catalog.Party

func (p memoryParties) GetParty(_ context.Context, id int64) (catalog.Party, error) {
	party, ok := p[id]
	if !ok {
		return catalog.Party{}, shared.ErrNotFound
	}
	return party, nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]string)
	}
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}
