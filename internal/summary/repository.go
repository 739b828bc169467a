package summary

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/freshline/internal/shared"
)

// Repository counts pending work in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Counts implements CountSource.
func (r *Repository) Counts(ctx context.Context) (Counters, error) {
	var c Counters
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM registrations WHERE status = 'PENDING'),
			(SELECT COUNT(*) FROM messages WHERE read_at IS NULL),
			(SELECT COUNT(*) FROM orders WHERE direction = 'PURCHASE' AND status IN ('DRAFT', 'PLACED'))`).
		Scan(&c.PendingRegistrations, &c.UnreadMessages, &c.OpenPurchaseOrders)
	if err != nil {
		return Counters{}, shared.Storage("count summary", err)
	}
	return c, nil
}
