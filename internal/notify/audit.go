package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	OrganizationID uuid.UUID
	ActorID        uuid.UUID
	Action         string
	Entity         string
	EntityID       uuid.UUID
	Meta           map[string]any
	At             time.Time
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditTrail writes every ledger mutation into audit_logs.
type AuditTrail struct {
	db Execer
}

// NewAuditTrail returns a new AuditTrail.
func NewAuditTrail(db Execer) *AuditTrail {
	return &AuditTrail{db: db}
}

// Record persists the log entry.
func (a *AuditTrail) Record(ctx context.Context, log AuditLog) error {
	if a == nil || a.db == nil {
		return errors.New("notify: audit trail not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == uuid.Nil {
		return errors.New("notify: audit log requires action/entity/entity_id")
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = a.db.Exec(ctx, `INSERT INTO audit_logs (organization_id, actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		log.OrganizationID, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	if err != nil {
		return fmt.Errorf("notify: record audit: %w", err)
	}
	return nil
}

// Notify implements Notifier.
func (a *AuditTrail) Notify(ctx context.Context, ev Event) error {
	return a.Record(ctx, AuditRecord(ev))
}

// AuditRecord maps an event to its audit entry. The entity is the most
// specific record the event names.
func AuditRecord(ev Event) AuditLog {
	log := AuditLog{
		OrganizationID: ev.OrganizationID,
		ActorID:        ev.ActorID,
		Action:         string(ev.Type),
		At:             ev.OccurredAt,
		Meta:           map[string]any{},
	}
	switch {
	case ev.PaymentID != nil:
		log.Entity, log.EntityID = "payment", *ev.PaymentID
	case ev.DuesID != nil:
		log.Entity, log.EntityID = "dues", *ev.DuesID
	case ev.TransactionID != nil:
		log.Entity, log.EntityID = "transaction", *ev.TransactionID
	case ev.MemberID != nil:
		log.Entity, log.EntityID = "member", *ev.MemberID
	default:
		log.Entity, log.EntityID = entityOf(ev.Type), ev.OrganizationID
	}
	if ev.MemberID != nil && log.Entity != "member" {
		log.Meta["memberId"] = ev.MemberID.String()
	}
	if ev.DuesID != nil && log.Entity != "dues" {
		log.Meta["duesId"] = ev.DuesID.String()
	}
	if ev.Year != 0 {
		log.Meta["year"] = ev.Year
	}
	if ev.Month != 0 {
		log.Meta["month"] = ev.Month
	}
	if ev.Amount != 0 {
		log.Meta["amount"] = ev.Amount
	}
	if ev.Count != 0 {
		log.Meta["count"] = ev.Count
	}
	return log
}

func entityOf(t EventType) string {
	prefix, _, _ := strings.Cut(string(t), ".")
	return prefix
}
