// Package ledgertest provides an in-memory ledger.Store for tests.
package ledgertest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/shared"
)

var _ ledger.Store = (*Memory)(nil)

type state struct {
	members      map[uuid.UUID]ledger.Member
	configs      map[uuid.UUID]ledger.DuesConfig
	dues         map[uuid.UUID]ledger.Dues
	payments     []ledger.Payment
	transactions map[uuid.UUID]ledger.Transaction
}

func (s state) clone() state {
	out := state{
		members:      make(map[uuid.UUID]ledger.Member, len(s.members)),
		configs:      make(map[uuid.UUID]ledger.DuesConfig, len(s.configs)),
		dues:         make(map[uuid.UUID]ledger.Dues, len(s.dues)),
		payments:     append([]ledger.Payment(nil), s.payments...),
		transactions: make(map[uuid.UUID]ledger.Transaction, len(s.transactions)),
	}
	for k, v := range s.members {
		out.members[k] = v
	}
	for k, v := range s.configs {
		out.configs[k] = v
	}
	for k, v := range s.dues {
		out.dues[k] = v
	}
	for k, v := range s.transactions {
		out.transactions[k] = v
	}
	return out
}

// Memory is a goroutine safe ledger.Store. Transactions are serialised and
// rolled back by restoring a snapshot when the callback fails.
type Memory struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   state
	seq  time.Time

	// PaymentLog records every created payment in creation order.
	PaymentLog []ledger.Payment

	// Error injection hooks; a non-nil return aborts the write.
	CreateDuesErr    func(ledger.Dues) error
	CreatePaymentErr func(ledger.Payment) error
	DeleteDuesErr    func(uuid.UUID) error
}

// New returns an empty store.
func New() *Memory {
	return &Memory{
		st: state{
			members:      map[uuid.UUID]ledger.Member{},
			configs:      map[uuid.UUID]ledger.DuesConfig{},
			dues:         map[uuid.UUID]ledger.Dues{},
			transactions: map[uuid.UUID]ledger.Transaction{},
		},
		seq: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing creation timestamp.
func (m *Memory) tick() time.Time {
	m.seq = m.seq.Add(time.Millisecond)
	return m.seq
}

// --- Seeding helpers ---

// AddMember stores a member, filling the id when empty.
func (m *Memory) AddMember(member ledger.Member) ledger.Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	m.st.members[member.ID] = member
	return member
}

// AddDues stores a dues row without checking the natural key.
func (m *Memory) AddDues(d ledger.Dues) ledger.Dues {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = ledger.StatusPending
	}
	m.st.dues[d.ID] = d
	return d
}

// AddPayment stores a payment against an existing dues row without touching its status.
func (m *Memory) AddPayment(p ledger.Payment) ledger.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.MemberID = m.st.dues[p.DuesID].MemberID
	p.CreatedAt = m.tick()
	m.st.payments = append(m.st.payments, p)
	return p
}

// Dues returns the stored dues row as is.
func (m *Memory) Dues(id uuid.UUID) (ledger.Dues, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.st.dues[id]
	return d, ok
}

// Payments returns a copy of every stored payment.
func (m *Memory) Payments() []ledger.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Payment(nil), m.st.payments...)
}

// --- ledger.Store ---

func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, ledger.TxStore) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.st.clone()
	logLen := len(m.PaymentLog)
	m.mu.Unlock()

	if err := fn(ctx, &memoryTx{m: m}); err != nil {
		m.mu.Lock()
		m.st = snapshot
		m.PaymentLog = m.PaymentLog[:logLen]
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) CreateMember(_ context.Context, member ledger.Member) (ledger.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if member.UserID != nil {
		for _, existing := range m.st.members {
			if existing.OrganizationID == member.OrganizationID && existing.UserID != nil && *existing.UserID == *member.UserID {
				return ledger.Member{}, shared.Conflict("member already exists")
			}
		}
	}
	m.st.members[member.ID] = member
	return member, nil
}

func (m *Memory) UpdateMember(_ context.Context, member ledger.Member) (ledger.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.st.members[member.ID]
	if !ok || existing.OrganizationID != member.OrganizationID {
		return ledger.Member{}, shared.NotFound("member")
	}
	member.CreatedAt = existing.CreatedAt
	m.st.members[member.ID] = member
	return member, nil
}

func (m *Memory) GetMember(_ context.Context, orgID, id uuid.UUID) (ledger.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.st.members[id]
	if !ok || member.OrganizationID != orgID {
		return ledger.Member{}, shared.NotFound("member")
	}
	return member, nil
}

func (m *Memory) FindMemberByUser(_ context.Context, orgID, userID uuid.UUID) (ledger.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range m.st.members {
		if member.OrganizationID == orgID && member.UserID != nil && *member.UserID == userID {
			return member, nil
		}
	}
	return ledger.Member{}, shared.NotFound("member")
}

func (m *Memory) ListMembers(_ context.Context, filter ledger.MemberFilter) ([]ledger.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []ledger.Member
	for _, member := range m.st.members {
		if member.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.ActiveOnly && !member.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(member.FullName), search) {
			continue
		}
		out = append(out, member)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Page.Limit > 0 {
		start := min(filter.Page.Offset, len(out))
		end := min(start+filter.Page.Limit, len(out))
		out = out[start:end]
	}
	return out, nil
}

func (m *Memory) GetDuesConfig(_ context.Context, orgID uuid.UUID) (ledger.DuesConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.st.configs[orgID]
	if !ok {
		return ledger.DuesConfig{}, shared.NotFound("dues config")
	}
	return cfg, nil
}

func (m *Memory) UpsertDuesConfig(_ context.Context, cfg ledger.DuesConfig) (ledger.DuesConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.configs[cfg.OrganizationID] = cfg
	return cfg, nil
}

func (m *Memory) CreateDues(_ context.Context, d ledger.Dues) (ledger.Dues, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateDuesErr != nil {
		if err := m.CreateDuesErr(d); err != nil {
			return ledger.Dues{}, err
		}
	}
	for _, existing := range m.st.dues {
		if existing.MemberID == d.MemberID && existing.Year == d.Year && existing.Month == d.Month {
			return ledger.Dues{}, shared.Conflict("dues already exists for this member and period")
		}
	}
	m.st.dues[d.ID] = d
	return d, nil
}

func (m *Memory) GetDues(_ context.Context, orgID, id uuid.UUID) (ledger.DuesWithPayments, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.st.dues[id]
	if !ok || d.OrganizationID != orgID {
		return ledger.DuesWithPayments{}, shared.NotFound("dues")
	}
	return ledger.DuesWithPayments{Dues: d, Payments: m.paymentsOf(d.ID)}, nil
}

func (m *Memory) FindDuesByPeriod(_ context.Context, orgID, memberID uuid.UUID, period shared.Period) (ledger.DuesWithPayments, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.st.dues {
		if d.OrganizationID == orgID && d.MemberID == memberID && d.Year == period.Year && d.Month == period.Month {
			return ledger.DuesWithPayments{Dues: d, Payments: m.paymentsOf(d.ID)}, nil
		}
	}
	return ledger.DuesWithPayments{}, shared.NotFound("dues")
}

func (m *Memory) ListDues(_ context.Context, filter ledger.DuesFilter) ([]ledger.DuesWithPayments, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.DuesWithPayments
	for _, d := range m.st.dues {
		if d.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.MemberID != nil && d.MemberID != *filter.MemberID {
			continue
		}
		if filter.Year != nil && d.Year != *filter.Year {
			continue
		}
		if filter.From != nil && d.Period().Before(*filter.From) {
			continue
		}
		if filter.To != nil && filter.To.Before(d.Period()) {
			continue
		}
		out = append(out, ledger.DuesWithPayments{Dues: d, Payments: m.paymentsOf(d.ID)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.MemberID.String() < b.MemberID.String()
	})
	return out, nil
}

func (m *Memory) GetPayment(_ context.Context, orgID, id uuid.UUID) (ledger.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.st.payments {
		if p.ID == id && m.st.dues[p.DuesID].OrganizationID == orgID {
			return p, nil
		}
	}
	return ledger.Payment{}, shared.NotFound("payment")
}

func (m *Memory) SumDuesPayments(_ context.Context, orgID uuid.UUID, rng ledger.DateRange) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, p := range m.st.payments {
		if m.st.dues[p.DuesID].OrganizationID != orgID {
			continue
		}
		if rng.From != nil && p.PaidAt.Before(*rng.From) {
			continue
		}
		if rng.To != nil && !p.PaidAt.Before(*rng.To) {
			continue
		}
		total += p.Amount
	}
	return total, nil
}

func (m *Memory) CreateTransaction(_ context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.transactions[t.ID] = t
	return t, nil
}

func (m *Memory) ListTransactions(_ context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Transaction
	for _, t := range m.st.transactions {
		if t.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.From != nil && t.OccurredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !t.OccurredAt.Before(*filter.To) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Page.Limit > 0 {
		start := min(filter.Page.Offset, len(out))
		end := min(start+filter.Page.Limit, len(out))
		out = out[start:end]
	}
	return out, nil
}

func (m *Memory) DeleteTransaction(_ context.Context, orgID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.st.transactions[id]
	if !ok || t.OrganizationID != orgID {
		return shared.NotFound("transaction")
	}
	delete(m.st.transactions, id)
	return nil
}

// paymentsOf expects m.mu to be held.
func (m *Memory) paymentsOf(duesID uuid.UUID) []ledger.Payment {
	var out []ledger.Payment
	for _, p := range m.st.payments {
		if p.DuesID == duesID {
			out = append(out, p)
		}
	}
	return out
}

type memoryTx struct {
	m *Memory
}

func (tx *memoryTx) LockDues(_ context.Context, orgID, id uuid.UUID) (ledger.Dues, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	d, ok := tx.m.st.dues[id]
	if !ok || d.OrganizationID != orgID {
		return ledger.Dues{}, shared.NotFound("dues")
	}
	return d, nil
}

func (tx *memoryTx) ListPaymentsByDues(_ context.Context, duesID uuid.UUID) ([]ledger.Payment, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	return tx.m.paymentsOf(duesID), nil
}

func (tx *memoryTx) CreatePayment(_ context.Context, p ledger.Payment) (ledger.Payment, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	d, ok := tx.m.st.dues[p.DuesID]
	if !ok {
		return ledger.Payment{}, shared.NotFound("dues")
	}
	if tx.m.CreatePaymentErr != nil {
		if err := tx.m.CreatePaymentErr(p); err != nil {
			return ledger.Payment{}, err
		}
	}
	p.MemberID = d.MemberID
	p.CreatedAt = tx.m.tick()
	tx.m.st.payments = append(tx.m.st.payments, p)
	tx.m.PaymentLog = append(tx.m.PaymentLog, p)
	return p, nil
}

func (tx *memoryTx) DeletePayment(_ context.Context, id uuid.UUID) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	for i, p := range tx.m.st.payments {
		if p.ID == id {
			tx.m.st.payments = append(tx.m.st.payments[:i:i], tx.m.st.payments[i+1:]...)
			return nil
		}
	}
	return shared.NotFound("payment")
}

func (tx *memoryTx) DeletePaymentsByDues(_ context.Context, duesID uuid.UUID) (int64, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	kept := tx.m.st.payments[:0:0]
	var removed int64
	for _, p := range tx.m.st.payments {
		if p.DuesID == duesID {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	tx.m.st.payments = kept
	return removed, nil
}

func (tx *memoryTx) UpdateDuesStatus(_ context.Context, id uuid.UUID, status ledger.DuesStatus) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	d, ok := tx.m.st.dues[id]
	if !ok {
		return shared.NotFound("dues")
	}
	d.Status = status
	tx.m.st.dues[id] = d
	return nil
}

func (tx *memoryTx) DeleteDues(_ context.Context, id uuid.UUID) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if tx.m.DeleteDuesErr != nil {
		if err := tx.m.DeleteDuesErr(id); err != nil {
			return err
		}
	}
	if _, ok := tx.m.st.dues[id]; !ok {
		return shared.NotFound("dues")
	}
	if len(tx.m.paymentsOf(id)) > 0 {
		return shared.Conflict("dues is referenced by other records")
	}
	delete(tx.m.st.dues, id)
	return nil
}
