package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/shared"
)

// DuesStatus enumerates the derived payment state of a Dues.
type DuesStatus string

const (
	StatusPending DuesStatus = "PENDING"
	StatusPartial DuesStatus = "PARTIAL"
	StatusPaid    DuesStatus = "PAID"
)

// Unpaid reports whether the status still carries a remainder.
func (s DuesStatus) Unpaid() bool {
	return s == StatusPending || s == StatusPartial
}

// PaymentMethod enumerates accepted settlement methods.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodTransfer PaymentMethod = "TRANSFER"
	MethodEWallet  PaymentMethod = "E_WALLET"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodTransfer, MethodEWallet:
		return true
	}
	return false
}

// TransactionType distinguishes income from expense entries.
type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// DefaultDuesAmount is charged when an organization has no DuesConfig.
const DefaultDuesAmount int64 = 50000

// Member is one person inside an organization.
type Member struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	UserID         *uuid.UUID `json:"userId,omitempty"`
	FullName       string     `json:"fullName"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	IsActive       bool       `json:"isActive"`
	JoinedAt       time.Time  `json:"joinedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// DuesConfig holds the default monthly charge of an organization.
type DuesConfig struct {
	OrganizationID uuid.UUID `json:"organizationId"`
	Amount         int64     `json:"amount"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Dues is one monthly charge owed by a member. Amount is a snapshot taken at creation.
// Status is a cache written only through the dues reconciliation path.
type Dues struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	MemberID       uuid.UUID  `json:"memberId"`
	Month          int        `json:"month"`
	Year           int        `json:"year"`
	Amount         int64      `json:"amount"`
	Status         DuesStatus `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Period returns the natural period of the dues.
func (d Dues) Period() shared.Period {
	return shared.Period{Year: d.Year, Month: d.Month}
}

// Payment settles (part of) one Dues. MemberID always mirrors the owning Dues.
type Payment struct {
	ID          uuid.UUID     `json:"id"`
	DuesID      uuid.UUID     `json:"duesId"`
	MemberID    uuid.UUID     `json:"memberId"`
	Amount      int64         `json:"amount"`
	Method      PaymentMethod `json:"method"`
	Note        string        `json:"note"`
	PaidAt      time.Time     `json:"paidAt"`
	CreatedByID uuid.UUID     `json:"createdById"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// DuesWithPayments is a Dues with its payments loaded eagerly.
type DuesWithPayments struct {
	Dues
	Payments []Payment `json:"payments"`
}

// Transaction is a standalone income or expense entry.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organizationId"`
	Type           TransactionType `json:"type"`
	Amount         int64           `json:"amount"`
	Category       string          `json:"category"`
	OccurredAt     time.Time       `json:"occurredAt"`
	Note           string          `json:"note"`
	CreatedByID    uuid.UUID       `json:"createdById"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// --- Filters ---

// MemberFilter narrows member listings.
type MemberFilter struct {
	OrganizationID uuid.UUID
	ActiveOnly     bool
	Search         string
	Page           shared.Pagination
}

// DuesFilter narrows dues listings. Nil fields are unbounded.
type DuesFilter struct {
	OrganizationID uuid.UUID
	MemberID       *uuid.UUID
	Year           *int
	From           *shared.Period
	To             *shared.Period
}

// TransactionFilter narrows transaction listings. From is inclusive, To exclusive.
type TransactionFilter struct {
	OrganizationID uuid.UUID
	Type           TransactionType
	From           *time.Time
	To             *time.Time
	Page           shared.Pagination
}

// DateRange bounds aggregate queries. From is inclusive, To exclusive.
type DateRange struct {
	From *time.Time
	To   *time.Time
}
