package dues

import (
	"context"

	"github.com/kaskita/kaskita/internal/ledger"
)

// Classification is the payment state of one Dues derived from its payments.
type Classification struct {
	Status    ledger.DuesStatus `json:"status"`
	TotalPaid int64             `json:"totalPaid"`
	Remaining int64             `json:"remainingAmount"`
	// Surplus is the over-payment beyond the dues amount. It stays out of status
	// payloads; the payments list exposes it.
	Surplus int64 `json:"-"`
}

// Classify derives the status of a Dues from its payments. It is pure and total:
// any amount and any payment list yield a classification.
func Classify(d ledger.Dues, payments []ledger.Payment) Classification {
	var paid int64
	for _, p := range payments {
		paid += p.Amount
	}
	c := Classification{TotalPaid: paid}
	switch {
	case paid >= d.Amount:
		c.Status = ledger.StatusPaid
		c.Surplus = paid - d.Amount
	case paid > 0:
		c.Status = ledger.StatusPartial
		c.Remaining = d.Amount - paid
	default:
		c.Status = ledger.StatusPending
		c.Remaining = d.Amount - paid
	}
	return c
}

// ClassifyLoaded classifies a dues row with eagerly loaded payments.
func ClassifyLoaded(d ledger.DuesWithPayments) Classification {
	return Classify(d.Dues, d.Payments)
}

// Reconcile recomputes the cached status of a locked Dues inside tx and writes it
// when it drifted. It is the only writer of the status column.
func Reconcile(ctx context.Context, tx ledger.TxStore, d ledger.Dues) (Classification, error) {
	payments, err := tx.ListPaymentsByDues(ctx, d.ID)
	if err != nil {
		return Classification{}, err
	}
	c := Classify(d, payments)
	if c.Status != d.Status {
		if err := tx.UpdateDuesStatus(ctx, d.ID, c.Status); err != nil {
			return Classification{}, err
		}
	}
	return c, nil
}
