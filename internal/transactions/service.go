// Package transactions records standalone income and expense entries.
package transactions

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/shared"
)

// CreateInput records one entry. OccurredAt defaults to now.
type CreateInput struct {
	Type       ledger.TransactionType `json:"type" validate:"required,oneof=INCOME EXPENSE"`
	Amount     int64                  `json:"amount" validate:"gt=0"`
	Category   string                 `json:"category" validate:"required,max=100"`
	OccurredAt *time.Time             `json:"occurredAt,omitempty"`
	Note       string                 `json:"note,omitempty" validate:"max=500"`
}

// ListInput filters entries. From is inclusive, To exclusive.
type ListInput struct {
	Type   ledger.TransactionType
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// Service implements transaction use cases.
type Service struct {
	store    ledger.Store
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the service. A nil notifier drops events.
func NewService(store ledger.Store, notifier notify.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create stores an income or expense entry.
func (s *Service) Create(ctx context.Context, actor shared.Principal, in CreateInput) (ledger.Transaction, error) {
	fields := map[string]string{}
	if !in.Type.Valid() {
		fields["type"] = "must be one of INCOME EXPENSE"
	}
	if in.Amount <= 0 {
		fields["amount"] = "must be greater than 0"
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		fields["category"] = "is required"
	}
	if len(fields) > 0 {
		return ledger.Transaction{}, &shared.ValidationError{Fields: fields}
	}
	now := s.now()
	occurred := now
	if in.OccurredAt != nil && !in.OccurredAt.IsZero() {
		occurred = *in.OccurredAt
	}
	created, err := s.store.CreateTransaction(ctx, ledger.Transaction{
		ID:             uuid.New(),
		OrganizationID: actor.OrganizationID,
		Type:           in.Type,
		Amount:         in.Amount,
		Category:       category,
		OccurredAt:     occurred,
		Note:           in.Note,
		CreatedByID:    actor.UserID,
		CreatedAt:      now,
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.emit(ctx, actor, notify.Event{Type: notify.EventTransactionSaved, TransactionID: notify.Ptr(created.ID), Amount: created.Amount, Message: created.Category})
	return created, nil
}

// List returns entries newest first.
func (s *Service) List(ctx context.Context, actor shared.Principal, in ListInput) ([]ledger.Transaction, error) {
	if in.Type != "" && !in.Type.Valid() {
		return nil, shared.NewValidationError("type", "must be one of INCOME EXPENSE")
	}
	if in.From != nil && in.To != nil && !in.From.Before(*in.To) {
		return nil, shared.NewValidationError("to", "must be after from")
	}
	out, err := s.store.ListTransactions(ctx, ledger.TransactionFilter{
		OrganizationID: actor.OrganizationID,
		Type:           in.Type,
		From:           in.From,
		To:             in.To,
		Page:           shared.NewPagination(in.Limit, in.Offset),
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []ledger.Transaction{}
	}
	return out, nil
}

// Delete removes an entry of the organization.
func (s *Service) Delete(ctx context.Context, actor shared.Principal, id uuid.UUID) error {
	if err := s.store.DeleteTransaction(ctx, actor.OrganizationID, id); err != nil {
		return err
	}
	s.emit(ctx, actor, notify.Event{Type: notify.EventTransactionDelete, TransactionID: notify.Ptr(id)})
	return nil
}

func (s *Service) emit(ctx context.Context, actor shared.Principal, ev notify.Event) {
	ev.ID = uuid.New()
	ev.OrganizationID = actor.OrganizationID
	ev.ActorID = actor.UserID
	ev.OccurredAt = s.now()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("notify mutation", slog.String("event", string(ev.Type)), slog.Any("error", err))
	}
}
