package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/platform/db"
	"github.com/odyssey-erp/freshline/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction; LockOrder takes row locks.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	return shared.Storage("order transaction", err)
}

const orderColumns = `o.id, o.number, o.direction, o.counterparty_id, o.counterparty_name, o.created_at,
	o.placed_at, o.received_at, o.requested_date, o.status, o.expected_total, o.actual_total, COALESCE(o.note, '')`

const lineColumns = `l.id, l.order_id, l.item_id, l.item_name, l.unit, l.quantity, l.expected_price,
	l.delivered_quantity, l.actual_price, COALESCE(l.note, ''), l.vat_rate`

func scanOrder(row pgx.Row, o *Order, extra ...any) error {
	var direction, status string
	dest := []any{&o.ID, &o.Number, &direction, &o.Counterparty.ID, &o.Counterparty.Name, &o.CreatedAt,
		&o.PlacedAt, &o.ReceivedAt, &o.RequestedDate, &status, &o.ExpectedTotal, &o.ActualTotal, &o.Note}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	o.Direction = Direction(direction)
	o.Status = Status(status)
	return nil
}

func scanLine(row pgx.Row, l *Line) error {
	var unit string
	if err := row.Scan(&l.ID, &l.OrderID, &l.Item.ItemID, &l.Item.Name, &unit, &l.Quantity, &l.ExpectedPrice,
		&l.DeliveredQuantity, &l.ActualPrice, &l.Note, &l.VATRate); err != nil {
		return err
	}
	l.Unit = catalog.Unit(unit)
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadOrder(ctx context.Context, q querier, id int64, forUpdate bool) (Order, []Line, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var o Order
	if err := scanOrder(q.QueryRow(ctx, query, id), &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, nil, shared.ErrNotFound
		}
		return Order{}, nil, shared.Storage("get order", err)
	}
	lines, err := loadLines(ctx, q, []int64{id})
	if err != nil {
		return Order{}, nil, err
	}
	return o, lines[id], nil
}

func loadLines(ctx context.Context, q querier, orderIDs []int64) (map[int64][]Line, error) {
	out := make(map[int64][]Line, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM order_lines l WHERE l.order_id = ANY($1) ORDER BY l.order_id, l.id`, orderIDs)
	if err != nil {
		return nil, shared.Storage("get order lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := scanLine(rows, &l); err != nil {
			return nil, shared.Storage("scan order line", err)
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("get order lines", err)
	}
	return out, nil
}

// GetOrder returns an order and its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, []Line, error) {
	return loadOrder(ctx, r.pool, id, false)
}

// ListOrders retrieves order summaries with filters.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Direction != "" {
		conditions = append(conditions, fmt.Sprintf("o.direction = $%d", argPos))
		args = append(args, string(filter.Direction))
		argPos++
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		conditions = append(conditions, fmt.Sprintf("o.status = ANY($%d)", argPos))
		args = append(args, statuses)
		argPos++
	}

	if filter.Counterparty != "" {
		conditions = append(conditions, fmt.Sprintf("o.counterparty_name ILIKE $%d", argPos))
		args = append(args, "%"+filter.Counterparty+"%")
		argPos++
	}

	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("o.requested_date >= $%d", argPos))
		args = append(args, *filter.DateFrom)
		argPos++
	}

	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("o.requested_date <= $%d", argPos))
		args = append(args, *filter.DateTo)
		argPos++
	}

	if filter.Query != "" {
		conditions = append(conditions, fmt.Sprintf("(o.number ILIKE $%d OR o.counterparty_name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+filter.Query+"%")
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM orders o %s`, whereClause), args...).Scan(&total); err != nil {
		return nil, 0, shared.Storage("count orders", err)
	}

	query := fmt.Sprintf(`
		SELECT %s, (SELECT COUNT(*) FROM order_lines l WHERE l.order_id = o.id) AS line_count
		FROM orders o
		%s
		ORDER BY o.requested_date DESC, o.id DESC
		LIMIT $%d OFFSET $%d`, orderColumns, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, shared.Storage("list orders", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := scanOrder(rows, &s.Order, &s.LineCount); err != nil {
			return nil, 0, shared.Storage("scan order", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, shared.Storage("list orders", err)
	}
	return out, total, nil
}

// InTransitByItem sums open purchase quantities per catalog item.
func (r *Repository) InTransitByItem(ctx context.Context) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.item_id, SUM(l.quantity)
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		WHERE o.direction = 'PURCHASE' AND o.status = 'PLACED' AND l.item_id IS NOT NULL
		GROUP BY l.item_id`)
	if err != nil {
		return nil, shared.Storage("in-transit quantities", err)
	}
	defer rows.Close()
	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var itemID int64
		var qty decimal.Decimal
		if err := rows.Scan(&itemID, &qty); err != nil {
			return nil, shared.Storage("scan in-transit", err)
		}
		out[itemID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("in-transit quantities", err)
	}
	return out, nil
}

// LastPurchasePrices returns the newest non-cancelled purchase price per item and supplier.
func (r *Repository) LastPurchasePrices(ctx context.Context) ([]PriceQuote, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (l.item_id, COALESCE(o.counterparty_id::text, LOWER(TRIM(o.counterparty_name))))
		       l.item_id, o.counterparty_id, o.counterparty_name,
		       COALESCE(l.actual_price, l.expected_price), o.created_at
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		WHERE o.direction = 'PURCHASE' AND o.status <> 'CANCELLED' AND l.item_id IS NOT NULL
		ORDER BY l.item_id, COALESCE(o.counterparty_id::text, LOWER(TRIM(o.counterparty_name))), o.created_at DESC, o.id DESC`)
	if err != nil {
		return nil, shared.Storage("last purchase prices", err)
	}
	defer rows.Close()
	var out []PriceQuote
	for rows.Next() {
		var q PriceQuote
		if err := rows.Scan(&q.ItemID, &q.SupplierID, &q.SupplierName, &q.Price, &q.OrderedAt); err != nil {
			return nil, shared.Storage("scan purchase price", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("last purchase prices", err)
	}
	return out, nil
}

// SaleOrdersForDate loads sale orders with lines for one requested date.
func (r *Repository) SaleOrdersForDate(ctx context.Context, date time.Time, statuses []Status) ([]WithLines, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+`
		FROM orders o
		WHERE o.direction = 'SALE' AND o.requested_date = $1 AND o.status = ANY($2)
		ORDER BY o.id`, date, names)
	if err != nil {
		return nil, shared.Storage("sale orders for date", err)
	}
	var headers []Order
	var ids []int64
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			rows.Close()
			return nil, shared.Storage("scan order", err)
		}
		headers = append(headers, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("sale orders for date", err)
	}

	lines, err := loadLines(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	out := make([]WithLines, 0, len(headers))
	for _, o := range headers {
		out = append(out, WithLines{Order: o, Lines: lines[o.ID]})
	}
	return out, nil
}

func (t *txRepo) NextNumber(ctx context.Context, prefix string, at time.Time) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return "", shared.Storage("next order number", err)
	}
	return fmt.Sprintf("%s-%s-%05d", prefix, at.Format("20060102"), seq), nil
}

func (t *txRepo) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (number, direction, counterparty_id, counterparty_name, created_at, placed_at,
		                    received_at, requested_date, status, expected_total, actual_total, note, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING id`,
		o.Number, string(o.Direction), o.Counterparty.ID, o.Counterparty.Name, o.CreatedAt, o.PlacedAt,
		o.ReceivedAt, o.RequestedDate, string(o.Status), o.ExpectedTotal, o.ActualTotal, o.Note).Scan(&id)
	if err != nil {
		return 0, shared.Storage("insert order", err)
	}
	return id, nil
}

func (t *txRepo) InsertLine(ctx context.Context, l Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_lines (order_id, item_id, item_name, unit, quantity, expected_price,
		                         delivered_quantity, actual_price, note, vat_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		l.OrderID, l.Item.ItemID, l.Item.Name, string(l.Unit), l.Quantity, l.ExpectedPrice,
		l.DeliveredQuantity, l.ActualPrice, l.Note, l.VATRate).Scan(&id)
	if err != nil {
		return 0, shared.Storage("insert order line", err)
	}
	return id, nil
}

func (t *txRepo) LockOrder(ctx context.Context, id int64) (Order, []Line, error) {
	return loadOrder(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, placed_at = $3, received_at = $4, actual_total = $5, updated_at = NOW()
		WHERE id = $1`,
		o.ID, string(o.Status), o.PlacedAt, o.ReceivedAt, o.ActualTotal)
	return shared.Storage("update order", err)
}

func (t *txRepo) UpdateLineReceipt(ctx context.Context, l Line) error {
	_, err := t.tx.Exec(ctx, `UPDATE order_lines SET delivered_quantity = $2, actual_price = $3 WHERE id = $1`,
		l.ID, l.DeliveredQuantity, l.ActualPrice)
	return shared.Storage("update order line", err)
}

// AdjustStock relies on the on_hand >= 0 check constraint to reject overdrafts.
func (t *txRepo) AdjustStock(ctx context.Context, itemID int64, delta decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE stock_items SET on_hand = on_hand + $2, updated_at = NOW()
		WHERE id = $1`, itemID, delta)
	if err != nil {
		return stockError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func stockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return ErrInsufficientStock
	}
	return shared.Storage("adjust stock", err)
}

func (t *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_lines WHERE order_id = $1`, id); err != nil {
		return shared.Storage("delete order lines", err)
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return shared.Storage("delete order", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
