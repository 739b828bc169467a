package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in order_audit_logs.
type AuditLog struct {
	Action   string
	Entity   string
	EntityID string
	RefID    uuid.UUID
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into order_audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// AuditRef derives a stable reference id for an entity so repeated events group together.
func AuditRef(entity string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", entity, id)))
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO order_audit_logs (action, entity, entity_id, ref_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		log.Action, log.Entity, log.EntityID, log.RefID, metaJSON, log.At)
	return err
}
