package dues

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/ledger/ledgertest"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/shared"
)

var fixedNow = time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) types() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.EventType, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store    *ledgertest.Memory
	service  *Service
	notifier *recordingNotifier
	admin    shared.Principal
	org      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledgertest.New()
	notifier := &recordingNotifier{}
	svc := NewService(store, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.SetClock(func() time.Time { return fixedNow })
	org := uuid.New()
	return &fixture{
		store:    store,
		service:  svc,
		notifier: notifier,
		org:      org,
		admin:    shared.Principal{UserID: uuid.New(), OrganizationID: org, Role: shared.RoleAdmin},
	}
}

func (f *fixture) member(name string) ledger.Member {
	return f.store.AddMember(ledger.Member{
		OrganizationID: f.org,
		FullName:       name,
		IsActive:       true,
		JoinedAt:       fixedNow.AddDate(-1, 0, 0),
	})
}

func (f *fixture) dues(memberID uuid.UUID, year, month int, amount int64) ledger.Dues {
	return f.store.AddDues(ledger.Dues{
		OrganizationID: f.org,
		MemberID:       memberID,
		Year:           year,
		Month:          month,
		Amount:         amount,
	})
}

func (f *fixture) pay(t *testing.T, duesID uuid.UUID, amount int64) PaymentResult {
	t.Helper()
	res, err := f.service.RecordPayment(context.Background(), f.admin, RecordPaymentInput{DuesID: duesID, Amount: amount}, "")
	require.NoError(t, err)
	return res
}

func ptr[T any](v T) *T { return &v }
