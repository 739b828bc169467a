package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/freshline/internal/shared"
)

// Repository provides PostgreSQL backed access to master records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListStockItems returns every tracked stock item ordered by name.
func (r *Repository) ListStockItems(ctx context.Context) ([]StockItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT si.id, si.name, si.unit, si.on_hand, si.minimum, COALESCE(si.packaging, ''),
		       COALESCE(si.category, ''), si.supplier_id, COALESCE(p.name, si.supplier_name, ''), si.default_price
		FROM stock_items si
		LEFT JOIN parties p ON p.id = si.supplier_id
		ORDER BY si.name, si.id`)
	if err != nil {
		return nil, shared.Storage("list stock items", err)
	}
	defer rows.Close()

	var items []StockItem
	for rows.Next() {
		var item StockItem
		var unit string
		if err := rows.Scan(&item.ID, &item.Name, &unit, &item.OnHand, &item.Minimum, &item.Packaging,
			&item.Category, &item.SupplierID, &item.SupplierName, &item.DefaultPrice); err != nil {
			return nil, shared.Storage("scan stock item", err)
		}
		item.Unit = Unit(unit)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("list stock items", err)
	}
	return items, nil
}

// GetParty loads a single supplier or customer.
func (r *Repository) GetParty(ctx context.Context, id int64) (Party, error) {
	var p Party
	var kind string
	err := r.pool.QueryRow(ctx, `
		SELECT id, kind, name, COALESCE(address, ''), COALESCE(route_name, ''), route_position
		FROM parties WHERE id = $1`, id).
		Scan(&p.ID, &kind, &p.Name, &p.Address, &p.RouteName, &p.RoutePosition)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Party{}, shared.ErrNotFound
		}
		return Party{}, shared.Storage("get party", err)
	}
	p.Kind = PartyKind(kind)
	return p, nil
}

// CustomersByID loads customers keyed by id; unknown ids are skipped.
func (r *Repository) CustomersByID(ctx context.Context, ids []int64) (map[int64]Party, error) {
	out := make(map[int64]Party, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(address, ''), COALESCE(route_name, ''), route_position
		FROM parties WHERE kind = 'CUSTOMER' AND id = ANY($1)`, ids)
	if err != nil {
		return nil, shared.Storage("load customers", err)
	}
	defer rows.Close()
	for rows.Next() {
		p := Party{Kind: PartyCustomer}
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.RouteName, &p.RoutePosition); err != nil {
			return nil, shared.Storage("scan customer", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("load customers", err)
	}
	return out, nil
}

// SetRoutePosition stores a customer's stop sequence. Only that customer row is touched.
func (r *Repository) SetRoutePosition(ctx context.Context, customerID int64, position int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE parties SET route_position = $2, updated_at = NOW() WHERE id = $1 AND kind = 'CUSTOMER'`, customerID, position)
	if err != nil {
		return shared.Storage("set route position", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
