package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kaskita/kaskita/internal/platform/db"
	"github.com/kaskita/kaskita/internal/shared"
)

// Ensure implementation
var _ Store = (*Repository)(nil)
var _ TxStore = (*txRepository)(nil)

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

type txRepository struct {
	tx  db.Tx
	now func() time.Time
}

// WithTx wraps callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx db.Tx) error {
		return fn(ctx, &txRepository{tx: tx, now: r.now})
	})
}

// mapError converts pgx errors into the shared error taxonomy.
func mapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound(entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == "uq_dues_member_period" {
				return shared.Conflict("dues already exists for this member and period")
			}
			return shared.Conflict("%s already exists", entity)
		case "23503":
			return shared.Conflict("%s is referenced by other records", entity)
		case "23514":
			return shared.NewValidationError(entity, "violates "+pgErr.ConstraintName)
		}
	}
	return err
}

// --- Members ---

const memberColumns = `id, organization_id, user_id, full_name, email, phone, is_active, joined_at, created_at`

func scanMember(row pgx.Row) (Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.FullName, &m.Email, &m.Phone, &m.IsActive, &m.JoinedAt, &m.CreatedAt)
	return m, err
}

// CreateMember inserts a member.
func (r *Repository) CreateMember(ctx context.Context, m Member) (Member, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO members (`+memberColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+memberColumns,
		m.ID, m.OrganizationID, m.UserID, m.FullName, m.Email, m.Phone, m.IsActive, m.JoinedAt, m.CreatedAt)
	created, err := scanMember(row)
	return created, mapError(err, "member")
}

// UpdateMember overwrites the mutable member fields.
func (r *Repository) UpdateMember(ctx context.Context, m Member) (Member, error) {
	row := r.pool.QueryRow(ctx, `UPDATE members SET user_id=$3, full_name=$4, email=$5, phone=$6, is_active=$7, joined_at=$8
WHERE organization_id=$1 AND id=$2 RETURNING `+memberColumns,
		m.OrganizationID, m.ID, m.UserID, m.FullName, m.Email, m.Phone, m.IsActive, m.JoinedAt)
	updated, err := scanMember(row)
	return updated, mapError(err, "member")
}

// GetMember loads one member of the organization.
func (r *Repository) GetMember(ctx context.Context, orgID, id uuid.UUID) (Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE organization_id=$1 AND id=$2`, orgID, id)
	m, err := scanMember(row)
	return m, mapError(err, "member")
}

// FindMemberByUser loads the member linked to a login user.
func (r *Repository) FindMemberByUser(ctx context.Context, orgID, userID uuid.UUID) (Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE organization_id=$1 AND user_id=$2`, orgID, userID)
	m, err := scanMember(row)
	return m, mapError(err, "member")
}

// ListMembers returns members ordered by name.
func (r *Repository) ListMembers(ctx context.Context, filter MemberFilter) ([]Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE organization_id=$1`
	args := []any{filter.OrganizationID}
	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		query += ` AND full_name ILIKE $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY full_name, id`
	if filter.Page.Limit > 0 {
		args = append(args, filter.Page.Limit, filter.Page.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// --- Dues config ---

// GetDuesConfig returns the organization default amount.
func (r *Repository) GetDuesConfig(ctx context.Context, orgID uuid.UUID) (DuesConfig, error) {
	var cfg DuesConfig
	err := r.pool.QueryRow(ctx, `SELECT organization_id, amount, updated_at FROM dues_configs WHERE organization_id=$1`, orgID).
		Scan(&cfg.OrganizationID, &cfg.Amount, &cfg.UpdatedAt)
	return cfg, mapError(err, "dues config")
}

// UpsertDuesConfig creates or replaces the organization default amount.
func (r *Repository) UpsertDuesConfig(ctx context.Context, cfg DuesConfig) (DuesConfig, error) {
	var out DuesConfig
	err := r.pool.QueryRow(ctx, `INSERT INTO dues_configs (organization_id, amount, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (organization_id) DO UPDATE SET amount=EXCLUDED.amount, updated_at=EXCLUDED.updated_at
RETURNING organization_id, amount, updated_at`, cfg.OrganizationID, cfg.Amount, cfg.UpdatedAt).
		Scan(&out.OrganizationID, &out.Amount, &out.UpdatedAt)
	return out, mapError(err, "dues config")
}

// --- Dues ---

const duesColumns = `d.id, d.organization_id, d.member_id, d.month, d.year, d.amount, d.status, d.created_at`

func scanDues(row pgx.Row) (Dues, error) {
	var d Dues
	err := row.Scan(&d.ID, &d.OrganizationID, &d.MemberID, &d.Month, &d.Year, &d.Amount, &d.Status, &d.CreatedAt)
	return d, err
}

const paymentColumns = `p.id, p.dues_id, p.member_id, p.amount, p.method, p.note, p.paid_at, p.created_by_id, p.created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.DuesID, &p.MemberID, &p.Amount, &p.Method, &p.Note, &p.PaidAt, &p.CreatedByID, &p.CreatedAt)
	return p, err
}

// CreateDues inserts a dues row. The unique index on (member_id, year, month)
// surfaces duplicates as shared.ErrConflict.
func (r *Repository) CreateDues(ctx context.Context, d Dues) (Dues, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO dues AS d (id, organization_id, member_id, month, year, amount, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+duesColumns,
		d.ID, d.OrganizationID, d.MemberID, d.Month, d.Year, d.Amount, d.Status, d.CreatedAt)
	created, err := scanDues(row)
	return created, mapError(err, "dues")
}

// GetDues loads one dues row with its payments.
func (r *Repository) GetDues(ctx context.Context, orgID, id uuid.UUID) (DuesWithPayments, error) {
	return r.findOneDues(ctx, `d.organization_id=$1 AND d.id=$2`, orgID, id)
}

// FindDuesByPeriod loads the dues of a member for one period.
func (r *Repository) FindDuesByPeriod(ctx context.Context, orgID, memberID uuid.UUID, period shared.Period) (DuesWithPayments, error) {
	return r.findOneDues(ctx, `d.organization_id=$1 AND d.member_id=$2 AND d.year=$3 AND d.month=$4`, orgID, memberID, period.Year, period.Month)
}

func (r *Repository) findOneDues(ctx context.Context, where string, args ...any) (DuesWithPayments, error) {
	d, err := scanDues(r.pool.QueryRow(ctx, `SELECT `+duesColumns+` FROM dues d WHERE `+where, args...))
	if err != nil {
		return DuesWithPayments{}, mapError(err, "dues")
	}
	payments, err := listPayments(ctx, r.pool, d.ID)
	if err != nil {
		return DuesWithPayments{}, err
	}
	return DuesWithPayments{Dues: d, Payments: payments}, nil
}

// ListDues returns matching dues ordered by year, month and member with payments loaded.
func (r *Repository) ListDues(ctx context.Context, filter DuesFilter) ([]DuesWithPayments, error) {
	where, args := duesWhere(filter)

	rows, err := r.pool.Query(ctx, `SELECT `+duesColumns+` FROM dues d WHERE `+where+` ORDER BY d.year, d.month, d.member_id`, args...)
	if err != nil {
		return nil, err
	}
	var out []DuesWithPayments
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		d, err := scanDues(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[d.ID] = len(out)
		out = append(out, DuesWithPayments{Dues: d})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	payRows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments p JOIN dues d ON d.id = p.dues_id
WHERE `+where+` ORDER BY p.created_at, p.id`, args...)
	if err != nil {
		return nil, err
	}
	defer payRows.Close()
	for payRows.Next() {
		p, err := scanPayment(payRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[p.DuesID]; ok {
			out[i].Payments = append(out[i].Payments, p)
		}
	}
	return out, payRows.Err()
}

func duesWhere(filter DuesFilter) (string, []any) {
	clauses := []string{`d.organization_id=$1`}
	args := []any{filter.OrganizationID}
	next := func(v any) string {
		args = append(args, v)
		return `$` + strconv.Itoa(len(args))
	}
	if filter.MemberID != nil {
		clauses = append(clauses, `d.member_id=`+next(*filter.MemberID))
	}
	if filter.Year != nil {
		clauses = append(clauses, `d.year=`+next(*filter.Year))
	}
	if filter.From != nil {
		clauses = append(clauses, `(d.year * 12 + d.month) >= `+next(filter.From.Year*12+filter.From.Month))
	}
	if filter.To != nil {
		clauses = append(clauses, `(d.year * 12 + d.month) <= `+next(filter.To.Year*12+filter.To.Month))
	}
	return strings.Join(clauses, " AND "), args
}

// --- Payments ---

// GetPayment loads a payment whose dues belongs to the organization.
func (r *Repository) GetPayment(ctx context.Context, orgID, id uuid.UUID) (Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments p JOIN dues d ON d.id = p.dues_id
WHERE d.organization_id=$1 AND p.id=$2`, orgID, id)
	p, err := scanPayment(row)
	return p, mapError(err, "payment")
}

// SumDuesPayments totals payments received against the organization's dues.
func (r *Repository) SumDuesPayments(ctx context.Context, orgID uuid.UUID, rng DateRange) (int64, error) {
	query := `SELECT COALESCE(SUM(p.amount), 0)::bigint FROM payments p JOIN dues d ON d.id = p.dues_id WHERE d.organization_id=$1`
	args := []any{orgID}
	if rng.From != nil {
		args = append(args, *rng.From)
		query += ` AND p.paid_at >= $` + strconv.Itoa(len(args))
	}
	if rng.To != nil {
		args = append(args, *rng.To)
		query += ` AND p.paid_at < $` + strconv.Itoa(len(args))
	}
	var total int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func listPayments(ctx context.Context, q db.Tx, duesID uuid.UUID) ([]Payment, error) {
	rows, err := q.Query(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.dues_id=$1 ORDER BY p.created_at, p.id`, duesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// --- Transactions ---

const transactionColumns = `id, organization_id, type, amount, category, occurred_at, note, created_by_id, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.OrganizationID, &t.Type, &t.Amount, &t.Category, &t.OccurredAt, &t.Note, &t.CreatedByID, &t.CreatedAt)
	return t, err
}

// CreateTransaction inserts an income or expense entry.
func (r *Repository) CreateTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO transactions (`+transactionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+transactionColumns,
		t.ID, t.OrganizationID, t.Type, t.Amount, t.Category, t.OccurredAt, t.Note, t.CreatedByID, t.CreatedAt)
	created, err := scanTransaction(row)
	return created, mapError(err, "transaction")
}

// ListTransactions returns entries ordered by occurrence, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE organization_id=$1`
	args := []any{filter.OrganizationID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += ` AND type=$` + strconv.Itoa(len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += ` AND occurred_at >= $` + strconv.Itoa(len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += ` AND occurred_at < $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY occurred_at DESC, id`
	if filter.Page.Limit > 0 {
		args = append(args, filter.Page.Limit, filter.Page.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTransaction removes an entry of the organization.
func (r *Repository) DeleteTransaction(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE organization_id=$1 AND id=$2`, orgID, id)
	if err != nil {
		return mapError(err, "transaction")
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("transaction")
	}
	return nil
}

// --- Transactional writes ---

// LockDues loads the dues row and holds a row lock until the transaction ends.
func (tx *txRepository) LockDues(ctx context.Context, orgID, id uuid.UUID) (Dues, error) {
	d, err := scanDues(tx.tx.QueryRow(ctx, `SELECT `+duesColumns+` FROM dues d WHERE d.organization_id=$1 AND d.id=$2 FOR UPDATE`, orgID, id))
	return d, mapError(err, "dues")
}

func (tx *txRepository) ListPaymentsByDues(ctx context.Context, duesID uuid.UUID) ([]Payment, error) {
	return listPayments(ctx, tx.tx, duesID)
}

// CreatePayment inserts a payment. member_id is copied from the owning dues row so it
// can never diverge from it.
func (tx *txRepository) CreatePayment(ctx context.Context, p Payment) (Payment, error) {
	row := tx.tx.QueryRow(ctx, `INSERT INTO payments AS p (id, dues_id, member_id, amount, method, note, paid_at, created_by_id)
SELECT $1, d.id, d.member_id, $3, $4, $5, $6, $7 FROM dues d WHERE d.id=$2
RETURNING `+paymentColumns, p.ID, p.DuesID, p.Amount, p.Method, p.Note, p.PaidAt, p.CreatedByID)
	created, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.NotFound("dues")
	}
	return created, mapError(err, "payment")
}

func (tx *txRepository) DeletePayment(ctx context.Context, id uuid.UUID) error {
	tag, err := tx.tx.Exec(ctx, `DELETE FROM payments WHERE id=$1`, id)
	if err != nil {
		return mapError(err, "payment")
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("payment")
	}
	return nil
}

func (tx *txRepository) DeletePaymentsByDues(ctx context.Context, duesID uuid.UUID) (int64, error) {
	tag, err := tx.tx.Exec(ctx, `DELETE FROM payments WHERE dues_id=$1`, duesID)
	if err != nil {
		return 0, mapError(err, "payment")
	}
	return tag.RowsAffected(), nil
}

func (tx *txRepository) UpdateDuesStatus(ctx context.Context, id uuid.UUID, status DuesStatus) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE dues SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return mapError(err, "dues")
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("dues")
	}
	return nil
}

// DeleteDues removes a dues row. Remaining payments make it fail with shared.ErrConflict.
func (tx *txRepository) DeleteDues(ctx context.Context, id uuid.UUID) error {
	tag, err := tx.tx.Exec(ctx, `DELETE FROM dues WHERE id=$1`, id)
	if err != nil {
		return mapError(err, "dues")
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("dues")
	}
	return nil
}
