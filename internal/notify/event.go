// Package notify carries ledger mutation events from the API to connected clients.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType names a ledger mutation.
type EventType string

const (
	EventDuesCreated       EventType = "dues.created"
	EventDuesDeleted       EventType = "dues.deleted"
	EventDuesBulkManaged   EventType = "dues.bulk_managed"
	EventDuesBulkPaid      EventType = "dues.bulk_paid"
	EventPaymentRecorded   EventType = "payment.recorded"
	EventPaymentDeleted    EventType = "payment.deleted"
	EventMemberSaved       EventType = "member.saved"
	EventDuesConfigUpdated EventType = "dues_config.updated"
	EventTransactionSaved  EventType = "transaction.saved"
	EventTransactionDelete EventType = "transaction.deleted"
)

// Event describes one committed mutation. Optional fields stay zero when they do
// not apply to the event type.
type Event struct {
	ID             uuid.UUID  `json:"id"`
	Type           EventType  `json:"type"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	ActorID        uuid.UUID  `json:"actorId"`
	MemberID       *uuid.UUID `json:"memberId,omitempty"`
	DuesID         *uuid.UUID `json:"duesId,omitempty"`
	PaymentID      *uuid.UUID `json:"paymentId,omitempty"`
	TransactionID  *uuid.UUID `json:"transactionId,omitempty"`
	Year           int        `json:"year,omitempty"`
	Month          int        `json:"month,omitempty"`
	Amount         int64      `json:"amount,omitempty"`
	Count          int        `json:"count,omitempty"`
	Message        string     `json:"message,omitempty"`
	OccurredAt     time.Time  `json:"occurredAt"`
}

// Notifier accepts events after the mutation committed.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Fanout delivers each event to every notifier and joins their errors.
type Fanout []Notifier

// Notify implements Notifier.
func (f Fanout) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// Ptr returns a pointer to id, for the optional Event fields.
func Ptr(id uuid.UUID) *uuid.UUID {
	return &id
}
