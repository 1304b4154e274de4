package dues

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/shared"
)

type memoryIdempotency struct {
	keys map[string]struct{}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, orgID uuid.UUID, key, module string) error {
	k := orgID.String() + ":" + module + ":" + key
	if _, ok := m.keys[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[k] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, orgID uuid.UUID, key, module string) error {
	delete(m.keys, orgID.String()+":"+module+":"+key)
	return nil
}

func TestCreateDuesTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	m := f.member("Lina")
	ctx := context.Background()
	in := CreateDuesInput{MemberID: m.ID, Month: 6, Year: 2024}

	first, err := f.service.CreateDues(ctx, f.admin, in)
	require.NoError(t, err)
	require.Equal(t, ledger.DefaultDuesAmount, first.Amount)
	require.Equal(t, ledger.StatusPending, first.Classification.Status)

	_, err = f.service.CreateDues(ctx, f.admin, in)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateDuesValidation(t *testing.T) {
	f := newFixture(t)
	m := f.member("Maya")
	ctx := context.Background()

	_, err := f.service.CreateDues(ctx, f.admin, CreateDuesInput{MemberID: m.ID, Month: 13, Year: 2024})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.CreateDues(ctx, f.admin, CreateDuesInput{MemberID: m.ID, Month: 1, Year: 2024, Amount: ptr(int64(0))})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.CreateDues(ctx, f.admin, CreateDuesInput{MemberID: uuid.New(), Month: 1, Year: 2024})
	require.ErrorIs(t, err, shared.ErrNotFound)

	custom, err := f.service.CreateDues(ctx, f.admin, CreateDuesInput{MemberID: m.ID, Month: 1, Year: 2024, Amount: ptr(int64(25000))})
	require.NoError(t, err)
	require.Equal(t, int64(25000), custom.Amount)
}

func TestCreateDuesMapsStoreRace(t *testing.T) {
	f := newFixture(t)
	m := f.member("Nina")
	f.store.CreateDuesErr = func(ledger.Dues) error {
		return shared.Conflict("dues already exists for this member and period")
	}
	_, err := f.service.CreateDues(context.Background(), f.admin, CreateDuesInput{MemberID: m.ID, Month: 2, Year: 2024})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestOverpaymentIsPaid(t *testing.T) {
	f := newFixture(t)
	m := f.member("Oki")
	d := f.dues(m.ID, 2024, 1, 50000)

	res := f.pay(t, d.ID, 70000)
	require.Equal(t, ledger.StatusPaid, res.Classification.Status)
	require.Equal(t, int64(0), res.Classification.Remaining)
	require.Equal(t, m.ID, res.Payment.MemberID)

	detail, err := f.service.GetDues(context.Background(), f.admin, d.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPaid, detail.Status)
	require.Equal(t, int64(70000), detail.Classification.TotalPaid)
	require.Len(t, detail.Payments, 1)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)
	m := f.member("Putri")
	d := f.dues(m.ID, 2024, 1, 50000)
	ctx := context.Background()

	_, err := f.service.RecordPayment(ctx, f.admin, RecordPaymentInput{DuesID: d.ID}, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.RecordPayment(ctx, f.admin, RecordPaymentInput{DuesID: d.ID, Amount: 1, Method: "CHEQUE"}, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.RecordPayment(ctx, f.admin, RecordPaymentInput{DuesID: uuid.New(), Amount: 1}, "")
	require.ErrorIs(t, err, shared.ErrNotFound)

	stranger := shared.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: shared.RoleAdmin}
	_, err = f.service.RecordPayment(ctx, stranger, RecordPaymentInput{DuesID: d.ID, Amount: 1}, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordPaymentIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	idem := &memoryIdempotency{keys: map[string]struct{}{}}
	f.service.SetIdempotencyStore(idem)
	m := f.member("Rani")
	d := f.dues(m.ID, 2024, 1, 50000)
	ctx := context.Background()
	in := RecordPaymentInput{DuesID: d.ID, Amount: 10000}

	_, err := f.service.RecordPayment(ctx, f.admin, in, "req-1")
	require.NoError(t, err)
	_, err = f.service.RecordPayment(ctx, f.admin, in, "req-1")
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, f.store.Payments(), 1)

	f.store.CreatePaymentErr = func(ledger.Payment) error { return errors.New("boom") }
	_, err = f.service.RecordPayment(ctx, f.admin, in, "req-2")
	require.Error(t, err)
	require.NotContains(t, idem.keys, f.org.String()+":payments:req-2")
}

func TestDeletePaymentReconciles(t *testing.T) {
	f := newFixture(t)
	m := f.member("Sari")
	d := f.dues(m.ID, 2024, 1, 50000)
	first := f.pay(t, d.ID, 30000)
	f.pay(t, d.ID, 20000)

	stored, _ := f.store.Dues(d.ID)
	require.Equal(t, ledger.StatusPaid, stored.Status)

	status, err := f.service.DeletePayment(context.Background(), f.admin, first.Payment.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPartial, status.Status)
	require.Equal(t, int64(30000), status.Remaining)

	stored, _ = f.store.Dues(d.ID)
	require.Equal(t, ledger.StatusPartial, stored.Status)

	_, err = f.service.DeletePayment(context.Background(), f.admin, first.Payment.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteDuesRequiresCascadeWhenPaid(t *testing.T) {
	f := newFixture(t)
	m := f.member("Tono")
	d := f.dues(m.ID, 2024, 1, 50000)
	f.pay(t, d.ID, 10000)
	ctx := context.Background()

	_, err := f.service.DeleteDues(ctx, f.admin, d.ID, false)
	require.ErrorIs(t, err, shared.ErrConflict)
	_, ok := f.store.Dues(d.ID)
	require.True(t, ok)

	res, err := f.service.DeleteDues(ctx, f.admin, d.ID, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.PaymentsDeleted)
	_, ok = f.store.Dues(d.ID)
	require.False(t, ok)
	require.Empty(t, f.store.Payments())

	empty := f.dues(m.ID, 2024, 2, 50000)
	res, err = f.service.DeleteDues(ctx, f.admin, empty.ID, false)
	require.NoError(t, err)
	require.Zero(t, res.PaymentsDeleted)
}

func TestDeleteDuesRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	m := f.member("Umar")
	d := f.dues(m.ID, 2024, 1, 50000)
	f.pay(t, d.ID, 10000)
	f.store.DeleteDuesErr = func(uuid.UUID) error { return errors.New("lost connection") }

	_, err := f.service.DeleteDues(context.Background(), f.admin, d.ID, true)
	require.Error(t, err)
	require.Len(t, f.store.Payments(), 1)
}

func TestMemberScopedReads(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	own := f.store.AddMember(ledger.Member{OrganizationID: f.org, UserID: &userID, FullName: "Vina", IsActive: true})
	other := f.member("Wati")
	f.dues(own.ID, 2024, 1, 50000)
	otherDues := f.dues(other.ID, 2024, 1, 50000)
	ctx := context.Background()

	viewer := shared.Principal{UserID: userID, OrganizationID: f.org, Role: shared.RoleMember}

	mine, err := f.service.MyArrears(ctx, viewer)
	require.NoError(t, err)
	require.Equal(t, int64(50000), mine.Total)
	require.Equal(t, own.ID, mine.MemberID)

	_, err = f.service.MemberArrears(ctx, viewer, other.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.service.GetDues(ctx, viewer, otherDues.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	unlinked := shared.Principal{UserID: uuid.New(), OrganizationID: f.org, Role: shared.RoleMember}
	_, err = f.service.MyArrears(ctx, unlinked)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestNotifyFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("queue down")
	m := f.member("Yuni")

	_, err := f.service.CreateDues(context.Background(), f.admin, CreateDuesInput{MemberID: m.ID, Month: 3, Year: 2024})
	require.NoError(t, err)
	require.Equal(t, []notify.EventType{notify.EventDuesCreated}, f.notifier.types())
}
