package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/shared"
)

// Store is the persistence port of the ledger. Every read and write is scoped to
// one organization. Implementations return shared.ErrNotFound for missing rows and
// shared.ErrConflict for natural key violations.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error

	CreateMember(ctx context.Context, m Member) (Member, error)
	UpdateMember(ctx context.Context, m Member) (Member, error)
	GetMember(ctx context.Context, orgID, id uuid.UUID) (Member, error)
	FindMemberByUser(ctx context.Context, orgID, userID uuid.UUID) (Member, error)
	ListMembers(ctx context.Context, filter MemberFilter) ([]Member, error)

	GetDuesConfig(ctx context.Context, orgID uuid.UUID) (DuesConfig, error)
	UpsertDuesConfig(ctx context.Context, cfg DuesConfig) (DuesConfig, error)

	CreateDues(ctx context.Context, d Dues) (Dues, error)
	GetDues(ctx context.Context, orgID, id uuid.UUID) (DuesWithPayments, error)
	FindDuesByPeriod(ctx context.Context, orgID, memberID uuid.UUID, period shared.Period) (DuesWithPayments, error)
	ListDues(ctx context.Context, filter DuesFilter) ([]DuesWithPayments, error)

	GetPayment(ctx context.Context, orgID, id uuid.UUID) (Payment, error)
	SumDuesPayments(ctx context.Context, orgID uuid.UUID, rng DateRange) (int64, error)

	CreateTransaction(ctx context.Context, t Transaction) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	DeleteTransaction(ctx context.Context, orgID, id uuid.UUID) error
}

// TxStore exposes the writes that must stay consistent with a Dues' cached status.
type TxStore interface {
	LockDues(ctx context.Context, orgID, id uuid.UUID) (Dues, error)
	ListPaymentsByDues(ctx context.Context, duesID uuid.UUID) ([]Payment, error)
	CreatePayment(ctx context.Context, p Payment) (Payment, error)
	DeletePayment(ctx context.Context, id uuid.UUID) error
	DeletePaymentsByDues(ctx context.Context, duesID uuid.UUID) (int64, error)
	UpdateDuesStatus(ctx context.Context, id uuid.UUID, status DuesStatus) error
	DeleteDues(ctx context.Context, id uuid.UUID) error
}
