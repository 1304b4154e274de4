package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditRecordPicksMostSpecificEntity(t *testing.T) {
	org, actor, member, dues, payment := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	log := AuditRecord(Event{
		Type: EventPaymentRecorded, OrganizationID: org, ActorID: actor,
		MemberID: Ptr(member), DuesID: Ptr(dues), PaymentID: Ptr(payment),
		Year: 2024, Month: 3, Amount: 20000,
	})
	require.Equal(t, "payment", log.Entity)
	require.Equal(t, payment, log.EntityID)
	require.Equal(t, "payment.recorded", log.Action)
	require.Equal(t, dues.String(), log.Meta["duesId"])
	require.Equal(t, member.String(), log.Meta["memberId"])
	require.Equal(t, int64(20000), log.Meta["amount"])

	log = AuditRecord(Event{Type: EventDuesConfigUpdated, OrganizationID: org, ActorID: actor, Amount: 60000})
	require.Equal(t, "dues_config", log.Entity)
	require.Equal(t, org, log.EntityID)

	log = AuditRecord(Event{Type: EventDuesBulkManaged, OrganizationID: org, MemberID: Ptr(member), Count: 3})
	require.Equal(t, "member", log.Entity)
	require.Equal(t, 3, log.Meta["count"])
}

func TestAuditTrailRecords(t *testing.T) {
	db := &fakeExecer{}
	trail := NewAuditTrail(db)
	occurred := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tx := uuid.New()

	require.NoError(t, trail.Notify(context.Background(), Event{
		Type: EventTransactionSaved, OrganizationID: uuid.New(), ActorID: uuid.New(),
		TransactionID: Ptr(tx), Amount: 5000, OccurredAt: occurred,
	}))
	require.Len(t, db.calls, 1)
	args := db.calls[0].args
	require.Equal(t, "transaction", args[3])
	require.Equal(t, tx, args[4])
	var meta map[string]any
	require.NoError(t, json.Unmarshal(args[5].([]byte), &meta))
	require.Equal(t, float64(5000), meta["amount"])
	require.Equal(t, &occurred, args[6])

	require.Error(t, trail.Record(context.Background(), AuditLog{Action: "x"}))
	var nilTrail *AuditTrail
	require.Error(t, nilTrail.Notify(context.Background(), Event{}))
}
