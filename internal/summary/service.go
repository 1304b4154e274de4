// Package summary composes the financial dashboard of an organization.
package summary

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kaskita/kaskita/internal/dues"
	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/shared"
)

// Arrears exposes the aggregates the dashboard borrows from the dues engine.
type Arrears interface {
	OrgArrears(ctx context.Context, actor shared.Principal, from, to *shared.Period) (dues.ArrearsTotal, error)
	Trend(ctx context.Context, actor shared.Principal, months int, semantic dues.Semantic) (dues.Trend, error)
	DefaultAmount(ctx context.Context, orgID uuid.UUID) (dues.DefaultAmount, error)
}

// Range bounds the summary. From is inclusive, To exclusive; nil is unbounded.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Flow is an income and expense pair.
type Flow struct {
	Income  int64 `json:"income"`
	Expense int64 `json:"expense"`
}

// MonthlyFlow is the transaction flow of one YYYY-MM month.
type MonthlyFlow struct {
	Period string `json:"period"`
	Flow
}

// CategoryFlow is the transaction flow of one category.
type CategoryFlow struct {
	Category string `json:"category"`
	Flow
}

// Summary is the dashboard payload. IncomeTotal is DirectIncome plus DuesIncome.
type Summary struct {
	OrganizationID        uuid.UUID      `json:"organizationId"`
	From                  *time.Time     `json:"from,omitempty"`
	To                    *time.Time     `json:"to,omitempty"`
	IncomeTotal           int64          `json:"incomeTotal"`
	DirectIncome          int64          `json:"directIncome"`
	DuesIncome            int64          `json:"duesIncome"`
	ExpenseTotal          int64          `json:"expenseTotal"`
	Balance               int64          `json:"balance"`
	UnpaidTotal           int64          `json:"unpaidTotal"`
	DefaultDuesAmount     int64          `json:"defaultDuesAmount"`
	DefaultDuesConfigured bool           `json:"defaultDuesConfigured"`
	Monthly               []MonthlyFlow  `json:"monthly"`
	Categories            []CategoryFlow `json:"categories"`
	Trend                 dues.Trend     `json:"trend"`
	GeneratedAt           time.Time      `json:"generatedAt"`
}

// Service coordinates summary computation with the cache layer.
type Service struct {
	store   ledger.Store
	arrears Arrears
	cache   *Cache
	group   singleflight.Group
	now     func() time.Time
}

// NewService wires the compositor. A nil cache computes every request.
func NewService(store ledger.Store, arrears Arrears, cache *Cache) *Service {
	return &Service{store: store, arrears: arrears, cache: cache, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Summary returns the cached dashboard of the principal's organization. Identical
// concurrent loads share one computation.
func (s *Service) Summary(ctx context.Context, actor shared.Principal, rng Range) (Summary, error) {
	if rng.From != nil && rng.To != nil && !rng.From.Before(*rng.To) {
		return Summary{}, shared.NewValidationError("to", "must be after from")
	}
	org := actor.OrganizationID
	key, err := s.cache.BuildKey(ctx, org, dateToken(rng.From), dateToken(rng.To))
	if err != nil {
		return Summary{}, err
	}

	ch := s.group.DoChan(key, func() (any, error) {
		var out Summary
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.compute(ctx, actor, rng)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (s *Service) compute(ctx context.Context, actor shared.Principal, rng Range) (Summary, error) {
	org := actor.OrganizationID
	out := Summary{OrganizationID: org, From: rng.From, To: rng.To, GeneratedAt: s.now().UTC()}

	txs, err := s.store.ListTransactions(ctx, ledger.TransactionFilter{OrganizationID: org, From: rng.From, To: rng.To})
	if err != nil {
		return Summary{}, err
	}
	monthly := map[string]*Flow{}
	categories := map[string]*Flow{}
	for _, t := range txs {
		m := bucket(monthly, t.OccurredAt.Format("2006-01"))
		c := bucket(categories, t.Category)
		switch t.Type {
		case ledger.TransactionIncome:
			out.DirectIncome += t.Amount
			m.Income += t.Amount
			c.Income += t.Amount
		case ledger.TransactionExpense:
			out.ExpenseTotal += t.Amount
			m.Expense += t.Amount
			c.Expense += t.Amount
		}
	}
	out.Monthly = make([]MonthlyFlow, 0, len(monthly))
	for period, f := range monthly {
		out.Monthly = append(out.Monthly, MonthlyFlow{Period: period, Flow: *f})
	}
	sort.Slice(out.Monthly, func(i, j int) bool { return out.Monthly[i].Period < out.Monthly[j].Period })
	out.Categories = make([]CategoryFlow, 0, len(categories))
	for category, f := range categories {
		out.Categories = append(out.Categories, CategoryFlow{Category: category, Flow: *f})
	}
	sort.Slice(out.Categories, func(i, j int) bool { return out.Categories[i].Category < out.Categories[j].Category })

	out.DuesIncome, err = s.store.SumDuesPayments(ctx, org, ledger.DateRange{From: rng.From, To: rng.To})
	if err != nil {
		return Summary{}, err
	}
	out.IncomeTotal = out.DirectIncome + out.DuesIncome
	out.Balance = out.IncomeTotal - out.ExpenseTotal

	unpaid, err := s.arrears.OrgArrears(ctx, actor, nil, nil)
	if err != nil {
		return Summary{}, err
	}
	out.UnpaidTotal = unpaid.Total

	out.Trend, err = s.arrears.Trend(ctx, actor, dues.DefaultTrendMonths, dues.SemanticProjected)
	if err != nil {
		return Summary{}, err
	}

	def, err := s.arrears.DefaultAmount(ctx, org)
	if err != nil {
		return Summary{}, err
	}
	out.DefaultDuesAmount = def.Amount
	out.DefaultDuesConfigured = def.Configured
	return out, nil
}

func bucket(m map[string]*Flow, key string) *Flow {
	f, ok := m[key]
	if !ok {
		f = &Flow{}
		m[key] = f
	}
	return f
}

func dateToken(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
