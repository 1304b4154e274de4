package dues

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/shared"
)

// BulkMode selects what bulk manage does with the selected months.
type BulkMode string

const (
	// ModeToggle creates missing months and deletes existing ones.
	ModeToggle BulkMode = "toggle"
	// ModeCreate creates missing months; existing months fail with CONFLICT.
	ModeCreate BulkMode = "create"
	// ModeDelete deletes existing months; missing months fail with NOT_FOUND.
	ModeDelete BulkMode = "delete"
)

// Item actions.
const (
	ActionCreate = "create"
	ActionDelete = "delete"
	ActionPay    = "pay"
)

// FailureKind classifies why one bulk item failed.
type FailureKind string

const (
	FailureValidation FailureKind = "VALIDATION"
	FailureNotFound   FailureKind = "NOT_FOUND"
	FailureConflict   FailureKind = "CONFLICT"
	FailureInternal   FailureKind = "INTERNAL"
)

// BulkManageInput selects months of one member and year to create or delete.
type BulkManageInput struct {
	MemberID       uuid.UUID `json:"memberId"`
	Year           int       `json:"year" validate:"gte=2000,lte=2100"`
	SelectedMonths []int     `json:"selectedMonths" validate:"min=1,dive,gte=1,lte=12"`
	Mode           BulkMode  `json:"mode,omitempty" validate:"omitempty,oneof=toggle create delete"`
}

// BulkPayInput selects months of one member and year to settle in full.
type BulkPayInput struct {
	MemberID       uuid.UUID            `json:"memberId"`
	Year           int                  `json:"year" validate:"gte=2000,lte=2100"`
	SelectedMonths []int                `json:"selectedMonths" validate:"min=1,dive,gte=1,lte=12"`
	Method         ledger.PaymentMethod `json:"method,omitempty" validate:"omitempty,oneof=CASH TRANSFER E_WALLET"`
	Note           string               `json:"note,omitempty" validate:"max=500"`
	PaidAt         *time.Time           `json:"paidAt,omitempty"`
}

// Item is one month of a bulk request.
type Item struct {
	Year      int        `json:"year"`
	Month     int        `json:"month"`
	Action    string     `json:"action"`
	DuesID    *uuid.UUID `json:"duesId,omitempty"`
	PaymentID *uuid.UUID `json:"paymentId,omitempty"`
	Amount    int64      `json:"amount,omitempty"`
}

// Failure is an item that could not be applied.
type Failure struct {
	Item   Item        `json:"item"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// BatchCounts summarises a bulk result.
type BatchCounts struct {
	Created int `json:"created"`
	Deleted int `json:"deleted"`
	Paid    int `json:"paid"`
	Failed  int `json:"failed"`
}

// BatchResult reports every item of a bulk request. Items are independent:
// a failure never rolls back another item.
type BatchResult struct {
	Succeeded []Item      `json:"succeeded"`
	Failed    []Failure   `json:"failed"`
	Counts    BatchCounts `json:"counts"`
}

type batch struct {
	mu  sync.Mutex
	res BatchResult
}

func (b *batch) ok(item Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.res.Succeeded = append(b.res.Succeeded, item)
	switch item.Action {
	case ActionCreate:
		b.res.Counts.Created++
	case ActionDelete:
		b.res.Counts.Deleted++
	case ActionPay:
		b.res.Counts.Paid++
	}
}

func (b *batch) fail(item Item, kind FailureKind, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.res.Failed = append(b.res.Failed, Failure{Item: item, Kind: kind, Reason: reason})
	b.res.Counts.Failed++
}

func (b *batch) result() BatchResult {
	res := b.res
	sort.Slice(res.Succeeded, func(i, j int) bool { return res.Succeeded[i].Month < res.Succeeded[j].Month })
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Item.Month < res.Failed[j].Item.Month })
	if res.Succeeded == nil {
		res.Succeeded = []Item{}
	}
	if res.Failed == nil {
		res.Failed = []Failure{}
	}
	return res
}

// normalizeMonths validates the selection and returns distinct months ascending.
func normalizeMonths(year int, months []int) ([]int, error) {
	fields := map[string]string{}
	if year < shared.MinPeriodYear || year > shared.MaxPeriodYear {
		fields["year"] = "must be between 2000 and 2100"
	}
	if len(months) == 0 {
		fields["selectedMonths"] = "must have at least 1 item(s)"
	}
	seen := make(map[int]struct{}, len(months))
	out := make([]int, 0, len(months))
	for i, m := range months {
		if m < 1 || m > 12 {
			fields["selectedMonths["+strconv.Itoa(i)+"]"] = "must be between 1 and 12"
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(fields) > 0 {
		return nil, &shared.ValidationError{Fields: fields}
	}
	sort.Ints(out)
	return out, nil
}

// BulkManage creates and/or deletes dues for the selected months. Creates use the
// current default amount. Deletes cascade the dues' payments inside one
// transaction per item.
func (s *Service) BulkManage(ctx context.Context, actor shared.Principal, in BulkManageInput) (BatchResult, error) {
	months, err := normalizeMonths(in.Year, in.SelectedMonths)
	if err != nil {
		return BatchResult{}, err
	}
	mode := in.Mode
	if mode == "" {
		mode = ModeToggle
	}
	if mode != ModeToggle && mode != ModeCreate && mode != ModeDelete {
		return BatchResult{}, shared.NewValidationError("mode", "must be one of toggle create delete")
	}
	existing, err := s.memberYear(ctx, actor.OrganizationID, in.MemberID, in.Year)
	if err != nil {
		return BatchResult{}, err
	}

	var (
		b        batch
		toCreate []int
		toDelete []ledger.Dues
	)
	for _, month := range months {
		d, found := existing[month]
		switch {
		case found && mode != ModeCreate:
			toDelete = append(toDelete, d.Dues)
		case !found && mode != ModeDelete:
			toCreate = append(toCreate, month)
		case found:
			s.failItem(&b, Item{Year: in.Year, Month: month, Action: ActionCreate, DuesID: notify.Ptr(d.ID)},
				shared.Conflict("dues for %s already exists", d.Period().Key()))
		default:
			s.failItem(&b, Item{Year: in.Year, Month: month, Action: ActionDelete}, shared.NotFound("dues"))
		}
	}

	var amount int64
	if len(toCreate) > 0 {
		def, err := s.DefaultAmount(ctx, actor.OrganizationID)
		if err != nil {
			return BatchResult{}, err
		}
		amount = def.Amount
	}

	var g errgroup.Group
	g.SetLimit(s.bulkLimit)
	for _, month := range toCreate {
		g.Go(func() error {
			item := Item{Year: in.Year, Month: month, Action: ActionCreate, Amount: amount}
			created, err := s.store.CreateDues(ctx, ledger.Dues{
				ID:             uuid.New(),
				OrganizationID: actor.OrganizationID,
				MemberID:       in.MemberID,
				Month:          month,
				Year:           in.Year,
				Amount:         amount,
				Status:         ledger.StatusPending,
				CreatedAt:      s.now(),
			})
			if err != nil {
				s.failItem(&b, item, err)
				return nil
			}
			item.DuesID = notify.Ptr(created.ID)
			s.succeedItem(&b, item)
			return nil
		})
	}
	for _, d := range toDelete {
		g.Go(func() error {
			item := Item{Year: d.Year, Month: d.Month, Action: ActionDelete, DuesID: notify.Ptr(d.ID), Amount: d.Amount}
			if err := s.cascadeDelete(ctx, actor.OrganizationID, d.ID); err != nil {
				s.failItem(&b, item, err)
				return nil
			}
			s.succeedItem(&b, item)
			return nil
		})
	}
	_ = g.Wait()

	res := b.result()
	if res.Counts.Created+res.Counts.Deleted > 0 {
		s.emit(ctx, notify.Event{
			Type:           notify.EventDuesBulkManaged,
			OrganizationID: actor.OrganizationID,
			ActorID:        actor.UserID,
			MemberID:       notify.Ptr(in.MemberID),
			Year:           in.Year,
			Count:          res.Counts.Created + res.Counts.Deleted,
		})
	}
	return res, nil
}

// BulkPay settles the full remainder of each selected month, oldest first,
// regardless of the selection order.
func (s *Service) BulkPay(ctx context.Context, actor shared.Principal, in BulkPayInput) (BatchResult, error) {
	months, err := normalizeMonths(in.Year, in.SelectedMonths)
	if err != nil {
		return BatchResult{}, err
	}
	method := in.Method
	if method == "" {
		method = ledger.MethodCash
	}
	if !method.Valid() {
		return BatchResult{}, shared.NewValidationError("method", "must be one of CASH TRANSFER E_WALLET")
	}
	paidAt := s.now()
	if in.PaidAt != nil && !in.PaidAt.IsZero() {
		paidAt = *in.PaidAt
	}
	existing, err := s.memberYear(ctx, actor.OrganizationID, in.MemberID, in.Year)
	if err != nil {
		return BatchResult{}, err
	}

	var (
		b     batch
		total int64
	)
	for _, month := range months {
		item := Item{Year: in.Year, Month: month, Action: ActionPay}
		d, found := existing[month]
		if !found {
			s.failItem(&b, item, shared.NotFound("dues"))
			continue
		}
		item.DuesID = notify.Ptr(d.ID)
		if ClassifyLoaded(d).Status == ledger.StatusPaid {
			s.failItem(&b, item, shared.Conflict("dues for %s is already paid", d.Period().Key()))
			continue
		}
		p, err := s.payRemaining(ctx, actor, d.ID, method, in.Note, paidAt)
		if err != nil {
			s.failItem(&b, item, err)
			continue
		}
		item.PaymentID = notify.Ptr(p.ID)
		item.Amount = p.Amount
		total += p.Amount
		s.succeedItem(&b, item)
	}

	res := b.result()
	if res.Counts.Paid > 0 {
		s.emit(ctx, notify.Event{
			Type:           notify.EventDuesBulkPaid,
			OrganizationID: actor.OrganizationID,
			ActorID:        actor.UserID,
			MemberID:       notify.Ptr(in.MemberID),
			Year:           in.Year,
			Amount:         total,
			Count:          res.Counts.Paid,
		})
	}
	return res, nil
}

// memberYear checks the member belongs to the organization and indexes its dues of
// the year by month.
func (s *Service) memberYear(ctx context.Context, org, memberID uuid.UUID, year int) (map[int]ledger.DuesWithPayments, error) {
	if memberID == uuid.Nil {
		return nil, shared.NewValidationError("memberId", "is required")
	}
	if _, err := s.store.GetMember(ctx, org, memberID); err != nil {
		return nil, err
	}
	list, err := s.store.ListDues(ctx, ledger.DuesFilter{OrganizationID: org, MemberID: &memberID, Year: &year})
	if err != nil {
		return nil, err
	}
	out := make(map[int]ledger.DuesWithPayments, len(list))
	for _, d := range list {
		out[d.Month] = d
	}
	return out, nil
}

func (s *Service) cascadeDelete(ctx context.Context, org, id uuid.UUID) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		d, err := tx.LockDues(ctx, org, id)
		if err != nil {
			return err
		}
		if _, err := tx.DeletePaymentsByDues(ctx, d.ID); err != nil {
			return err
		}
		return tx.DeleteDues(ctx, d.ID)
	})
}

// payRemaining records one payment for the remainder of a dues, re-reading it
// under lock so a concurrent payment is not doubled.
func (s *Service) payRemaining(ctx context.Context, actor shared.Principal, duesID uuid.UUID, method ledger.PaymentMethod, note string, paidAt time.Time) (ledger.Payment, error) {
	var created ledger.Payment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		d, err := tx.LockDues(ctx, actor.OrganizationID, duesID)
		if err != nil {
			return err
		}
		payments, err := tx.ListPaymentsByDues(ctx, d.ID)
		if err != nil {
			return err
		}
		c := Classify(d, payments)
		if !c.Status.Unpaid() {
			return shared.Conflict("dues for %s is already paid", d.Period().Key())
		}
		created, err = tx.CreatePayment(ctx, ledger.Payment{
			ID:          uuid.New(),
			DuesID:      d.ID,
			Amount:      c.Remaining,
			Method:      method,
			Note:        note,
			PaidAt:      paidAt,
			CreatedByID: actor.UserID,
		})
		if err != nil {
			return err
		}
		_, err = Reconcile(ctx, tx, d)
		return err
	})
	return created, err
}

func (s *Service) succeedItem(b *batch, item Item) {
	b.ok(item)
	if s.recorder != nil {
		s.recorder.BulkItem(item.Action, "success")
	}
}

func (s *Service) failItem(b *batch, item Item, err error) {
	kind := failureKind(err)
	if kind == FailureInternal {
		s.logger.Error("bulk item failed",
			slog.String("action", item.Action),
			slog.Int("year", item.Year),
			slog.Int("month", item.Month),
			slog.Any("error", err))
	}
	b.fail(item, kind, shared.UserSafeMessage(err))
	if s.recorder != nil {
		s.recorder.BulkItem(item.Action, string(kind))
	}
}

func failureKind(err error) FailureKind {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return FailureValidation
	case errors.Is(err, shared.ErrNotFound):
		return FailureNotFound
	case errors.Is(err, shared.ErrConflict):
		return FailureConflict
	default:
		return FailureInternal
	}
}
