package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one recorded state change. Action follows the module.verb
// convention (stock.reserve, billing.payment) so the trail can be filtered
// per module; Entity and EntityID name the row the action touched.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// auditModules are the action prefixes the services emit. An unknown prefix
// is a programming error, not bad input, so Record rejects it outright.
var auditModules = map[string]struct{}{
	"ledger":     {},
	"stock":      {},
	"purchasing": {},
	"billing":    {},
	"sales":      {},
	"profit":     {},
}

func (l AuditLog) validate() error {
	module, verb, ok := strings.Cut(l.Action, ".")
	if !ok || verb == "" {
		return fmt.Errorf("shared: audit action %q must follow module.verb", l.Action)
	}
	if _, known := auditModules[module]; !known {
		return fmt.Errorf("shared: unknown audit module %q", module)
	}
	if l.Entity == "" || l.EntityID == "" {
		return errors.New("shared: audit entity and entity id required")
	}
	return nil
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry. A zero At is stamped at write time.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("shared: audit logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = time.Now()
	}
	if l.pool == nil {
		return errors.New("shared: audit logger has no database pool")
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs
(actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}
