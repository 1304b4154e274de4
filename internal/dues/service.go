package dues

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/shared"
)

const (
	idempotencyModule = "payments"
	// DefaultBulkConcurrency bounds concurrent bulk create/delete items.
	DefaultBulkConcurrency = 4
)

// IdempotencyStore records request keys so retried payment requests are rejected.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, orgID uuid.UUID, key, module string) error
	Delete(ctx context.Context, orgID uuid.UUID, key, module string) error
}

// Recorder observes per-item bulk outcomes.
type Recorder interface {
	BulkItem(operation, outcome string)
}

// Service implements the dues and payment engine on top of a ledger.Store.
type Service struct {
	store     ledger.Store
	notifier  notify.Notifier
	logger    *slog.Logger
	idem      IdempotencyStore
	recorder  Recorder
	bulkLimit int
	now       func() time.Time
}

// NewService wires the engine. A nil notifier drops events.
func NewService(store ledger.Store, notifier notify.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		notifier:  notifier,
		logger:    logger,
		bulkLimit: DefaultBulkConcurrency,
		now:       time.Now,
	}
}

// SetIdempotencyStore enables Idempotency-Key handling for payments.
func (s *Service) SetIdempotencyStore(store IdempotencyStore) {
	s.idem = store
}

// SetRecorder injects bulk outcome metrics.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetBulkConcurrency overrides the bulk create/delete worker limit.
func (s *Service) SetBulkConcurrency(n int) {
	if n > 0 {
		s.bulkLimit = n
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// DefaultAmount returns the organization's configured dues amount, falling back to
// ledger.DefaultDuesAmount when none is configured.
func (s *Service) DefaultAmount(ctx context.Context, orgID uuid.UUID) (DefaultAmount, error) {
	cfg, err := s.store.GetDuesConfig(ctx, orgID)
	if errors.Is(err, shared.ErrNotFound) {
		return DefaultAmount{Amount: ledger.DefaultDuesAmount}, nil
	}
	if err != nil {
		return DefaultAmount{}, err
	}
	return DefaultAmount{Amount: cfg.Amount, Configured: true}, nil
}

// CreateDues issues one dues for a member and period.
func (s *Service) CreateDues(ctx context.Context, actor shared.Principal, in CreateDuesInput) (DuesDetail, error) {
	period := shared.Period{Year: in.Year, Month: in.Month}
	if err := period.Validate(); err != nil {
		return DuesDetail{}, err
	}
	if in.MemberID == uuid.Nil {
		return DuesDetail{}, shared.NewValidationError("memberId", "is required")
	}
	if in.Amount != nil && *in.Amount <= 0 {
		return DuesDetail{}, shared.NewValidationError("amount", "must be greater than 0")
	}
	org := actor.OrganizationID

	if _, err := s.store.GetMember(ctx, org, in.MemberID); err != nil {
		return DuesDetail{}, err
	}
	_, err := s.store.FindDuesByPeriod(ctx, org, in.MemberID, period)
	switch {
	case err == nil:
		return DuesDetail{}, shared.Conflict("dues for %s already exists", period.Key())
	case !errors.Is(err, shared.ErrNotFound):
		return DuesDetail{}, err
	}

	var amount int64
	if in.Amount != nil {
		amount = *in.Amount
	} else {
		def, err := s.DefaultAmount(ctx, org)
		if err != nil {
			return DuesDetail{}, err
		}
		amount = def.Amount
	}

	created, err := s.store.CreateDues(ctx, ledger.Dues{
		ID:             uuid.New(),
		OrganizationID: org,
		MemberID:       in.MemberID,
		Month:          period.Month,
		Year:           period.Year,
		Amount:         amount,
		Status:         ledger.StatusPending,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return DuesDetail{}, err
	}

	s.emit(ctx, notify.Event{
		Type:           notify.EventDuesCreated,
		OrganizationID: org,
		ActorID:        actor.UserID,
		MemberID:       notify.Ptr(created.MemberID),
		DuesID:         notify.Ptr(created.ID),
		Year:           created.Year,
		Month:          created.Month,
		Amount:         created.Amount,
	})
	return DuesDetail{
		DuesWithPayments: ledger.DuesWithPayments{Dues: created, Payments: []ledger.Payment{}},
		Classification:   Classify(created, nil),
	}, nil
}

// GetDues loads a dues with payments and its recomputed classification.
func (s *Service) GetDues(ctx context.Context, actor shared.Principal, id uuid.UUID) (DuesDetail, error) {
	d, err := s.store.GetDues(ctx, actor.OrganizationID, id)
	if err != nil {
		return DuesDetail{}, err
	}
	if !actor.CanManageLedger() {
		if err := s.requireOwnMember(ctx, actor, d.MemberID); err != nil {
			return DuesDetail{}, err
		}
	}
	if d.Payments == nil {
		d.Payments = []ledger.Payment{}
	}
	c := ClassifyLoaded(d)
	d.Status = c.Status
	return DuesDetail{DuesWithPayments: d, Classification: c}, nil
}

// DeleteDues removes a dues. Payments block the deletion unless cascade is set, in
// which case they are removed in the same transaction.
func (s *Service) DeleteDues(ctx context.Context, actor shared.Principal, id uuid.UUID, cascade bool) (DeleteResult, error) {
	org := actor.OrganizationID
	var (
		deleted ledger.Dues
		removed int64
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		d, err := tx.LockDues(ctx, org, id)
		if err != nil {
			return err
		}
		payments, err := tx.ListPaymentsByDues(ctx, d.ID)
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			if !cascade {
				return shared.Conflict("dues has %d payment(s); delete with cascade to remove them", len(payments))
			}
			if removed, err = tx.DeletePaymentsByDues(ctx, d.ID); err != nil {
				return err
			}
		}
		deleted = d
		return tx.DeleteDues(ctx, d.ID)
	})
	if err != nil {
		return DeleteResult{}, err
	}

	s.emit(ctx, notify.Event{
		Type:           notify.EventDuesDeleted,
		OrganizationID: org,
		ActorID:        actor.UserID,
		MemberID:       notify.Ptr(deleted.MemberID),
		DuesID:         notify.Ptr(deleted.ID),
		Year:           deleted.Year,
		Month:          deleted.Month,
		Count:          int(removed),
	})
	return DeleteResult{DuesID: deleted.ID, PaymentsDeleted: removed}, nil
}

// RecordPayment stores a payment and reconciles the dues status. A non-empty
// idempotencyKey rejects replays with shared.ErrConflict.
func (s *Service) RecordPayment(ctx context.Context, actor shared.Principal, in RecordPaymentInput, idempotencyKey string) (PaymentResult, error) {
	if in.DuesID == uuid.Nil {
		return PaymentResult{}, shared.NewValidationError("duesId", "is required")
	}
	if in.Amount <= 0 {
		return PaymentResult{}, shared.NewValidationError("amount", "must be greater than 0")
	}
	method := in.Method
	if method == "" {
		method = ledger.MethodCash
	}
	if !method.Valid() {
		return PaymentResult{}, shared.NewValidationError("method", "must be one of CASH TRANSFER E_WALLET")
	}
	paidAt := s.now()
	if in.PaidAt != nil && !in.PaidAt.IsZero() {
		paidAt = *in.PaidAt
	}
	org := actor.OrganizationID

	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, org, idempotencyKey, idempotencyModule); err != nil {
			return PaymentResult{}, err
		}
	}

	var (
		created ledger.Payment
		status  Classification
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		d, err := tx.LockDues(ctx, org, in.DuesID)
		if err != nil {
			return err
		}
		created, err = tx.CreatePayment(ctx, ledger.Payment{
			ID:          uuid.New(),
			DuesID:      d.ID,
			Amount:      in.Amount,
			Method:      method,
			Note:        in.Note,
			PaidAt:      paidAt,
			CreatedByID: actor.UserID,
		})
		if err != nil {
			return err
		}
		status, err = Reconcile(ctx, tx, d)
		return err
	})
	if err != nil {
		if idempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, org, idempotencyKey, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("organization_id", org.String()), slog.Any("error", delErr))
			}
		}
		return PaymentResult{}, err
	}

	s.emit(ctx, notify.Event{
		Type:           notify.EventPaymentRecorded,
		OrganizationID: org,
		ActorID:        actor.UserID,
		MemberID:       notify.Ptr(created.MemberID),
		DuesID:         notify.Ptr(created.DuesID),
		PaymentID:      notify.Ptr(created.ID),
		Amount:         created.Amount,
	})
	return PaymentResult{Payment: created, Classification: status}, nil
}

// DeletePayment removes a payment and reconciles its dues.
func (s *Service) DeletePayment(ctx context.Context, actor shared.Principal, id uuid.UUID) (Classification, error) {
	org := actor.OrganizationID
	p, err := s.store.GetPayment(ctx, org, id)
	if err != nil {
		return Classification{}, err
	}
	var status Classification
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		d, err := tx.LockDues(ctx, org, p.DuesID)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, p.ID); err != nil {
			return err
		}
		status, err = Reconcile(ctx, tx, d)
		return err
	})
	if err != nil {
		return Classification{}, err
	}

	s.emit(ctx, notify.Event{
		Type:           notify.EventPaymentDeleted,
		OrganizationID: org,
		ActorID:        actor.UserID,
		MemberID:       notify.Ptr(p.MemberID),
		DuesID:         notify.Ptr(p.DuesID),
		PaymentID:      notify.Ptr(p.ID),
		Amount:         p.Amount,
	})
	return status, nil
}

// Grid builds the monthly status grid of a year.
func (s *Service) Grid(ctx context.Context, actor shared.Principal, year int) (Grid, error) {
	if year < shared.MinPeriodYear || year > shared.MaxPeriodYear {
		return Grid{}, shared.NewValidationError("year", "must be between 2000 and 2100")
	}
	org := actor.OrganizationID
	members, err := s.store.ListMembers(ctx, ledger.MemberFilter{OrganizationID: org, ActiveOnly: true})
	if err != nil {
		return Grid{}, err
	}
	dues, err := s.store.ListDues(ctx, ledger.DuesFilter{OrganizationID: org, Year: &year})
	if err != nil {
		return Grid{}, err
	}
	return BuildGrid(org, year, members, dues), nil
}

// OrgArrears totals the unpaid remainder of the organization. Nil bounds are open.
func (s *Service) OrgArrears(ctx context.Context, actor shared.Principal, from, to *shared.Period) (ArrearsTotal, error) {
	if from != nil && to != nil && to.Before(*from) {
		return ArrearsTotal{}, shared.NewValidationError("to", "must not be before from")
	}
	org := actor.OrganizationID
	dues, err := s.store.ListDues(ctx, ledger.DuesFilter{OrganizationID: org, From: from, To: to})
	if err != nil {
		return ArrearsTotal{}, err
	}
	return ArrearsTotal{OrganizationID: org, From: from, To: to, Total: OrgUnpaid(dues)}, nil
}

// MemberArrears reports the unpaid position of one member. Principals without
// ledger rights may only read their own member record.
func (s *Service) MemberArrears(ctx context.Context, actor shared.Principal, memberID uuid.UUID) (PersonalArrears, error) {
	org := actor.OrganizationID
	if _, err := s.store.GetMember(ctx, org, memberID); err != nil {
		return PersonalArrears{}, err
	}
	if !actor.CanManageLedger() {
		if err := s.requireOwnMember(ctx, actor, memberID); err != nil {
			return PersonalArrears{}, err
		}
	}
	return s.memberUnpaid(ctx, org, memberID)
}

// MyArrears reports the unpaid position of the member linked to the principal.
func (s *Service) MyArrears(ctx context.Context, actor shared.Principal) (PersonalArrears, error) {
	m, err := s.store.FindMemberByUser(ctx, actor.OrganizationID, actor.UserID)
	if err != nil {
		return PersonalArrears{}, err
	}
	return s.memberUnpaid(ctx, actor.OrganizationID, m.ID)
}

func (s *Service) memberUnpaid(ctx context.Context, org, memberID uuid.UUID) (PersonalArrears, error) {
	dues, err := s.store.ListDues(ctx, ledger.DuesFilter{OrganizationID: org, MemberID: &memberID})
	if err != nil {
		return PersonalArrears{}, err
	}
	return MemberUnpaid(memberID, dues), nil
}

// Trend computes the trailing arrears series ending with the current month.
func (s *Service) Trend(ctx context.Context, actor shared.Principal, months int, semantic Semantic) (Trend, error) {
	if months == 0 {
		months = DefaultTrendMonths
	}
	if months < 1 || months > MaxTrendMonths {
		return Trend{}, shared.NewValidationError("months", "must be between 1 and 60")
	}
	org := actor.OrganizationID
	current := shared.PeriodOf(s.now())
	start := current.AddMonths(-(months - 1))

	members, err := s.store.ListMembers(ctx, ledger.MemberFilter{OrganizationID: org, ActiveOnly: true})
	if err != nil {
		return Trend{}, err
	}
	dues, err := s.store.ListDues(ctx, ledger.DuesFilter{OrganizationID: org, From: &start, To: &current})
	if err != nil {
		return Trend{}, err
	}
	def, err := s.DefaultAmount(ctx, org)
	if err != nil {
		return Trend{}, err
	}
	return TrailingSeries(current, months, semantic, members, dues, def.Amount), nil
}

func (s *Service) requireOwnMember(ctx context.Context, actor shared.Principal, memberID uuid.UUID) error {
	own, err := s.store.FindMemberByUser(ctx, actor.OrganizationID, actor.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		return shared.ErrForbidden
	}
	if err != nil {
		return err
	}
	if own.ID != memberID {
		return shared.ErrForbidden
	}
	return nil
}

// emit delivers an event without failing the committed mutation.
func (s *Service) emit(ctx context.Context, ev notify.Event) {
	ev.ID = uuid.New()
	ev.OccurredAt = s.now()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("notify mutation",
			slog.String("event", string(ev.Type)),
			slog.String("organization_id", ev.OrganizationID.String()),
			slog.Any("error", err))
	}
}
