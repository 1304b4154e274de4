package dues

import (
	"time"

	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/shared"
)

// CreateDuesInput issues one monthly charge. A nil Amount takes the organization default.
type CreateDuesInput struct {
	MemberID uuid.UUID `json:"memberId"`
	Month    int       `json:"month" validate:"gte=1,lte=12"`
	Year     int       `json:"year" validate:"gte=2000,lte=2100"`
	Amount   *int64    `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

// RecordPaymentInput settles (part of) a dues. Amount has no upper bound.
type RecordPaymentInput struct {
	DuesID uuid.UUID            `json:"duesId"`
	Amount int64                `json:"amount" validate:"gt=0"`
	Method ledger.PaymentMethod `json:"method,omitempty" validate:"omitempty,oneof=CASH TRANSFER E_WALLET"`
	Note   string               `json:"note,omitempty" validate:"max=500"`
	PaidAt *time.Time           `json:"paidAt,omitempty"`
}

// DuesDetail is a dues with its payments and derived classification.
type DuesDetail struct {
	ledger.DuesWithPayments
	Classification Classification `json:"classification"`
}

// PaymentResult is a recorded payment and the reconciled state of its dues.
type PaymentResult struct {
	Payment        ledger.Payment `json:"payment"`
	Classification Classification `json:"classification"`
}

// DeleteResult reports what a dues deletion removed.
type DeleteResult struct {
	DuesID          uuid.UUID `json:"duesId"`
	PaymentsDeleted int64     `json:"paymentsDeleted"`
}

// ArrearsTotal is the organization-wide unpaid figure over an optional period range.
type ArrearsTotal struct {
	OrganizationID uuid.UUID      `json:"organizationId"`
	From           *shared.Period `json:"from,omitempty"`
	To             *shared.Period `json:"to,omitempty"`
	Total          int64          `json:"total"`
}

// DefaultAmount is the amount new dues are issued with.
type DefaultAmount struct {
	Amount     int64 `json:"amount"`
	Configured bool  `json:"configured"`
}
