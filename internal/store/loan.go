package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/unilib/apiserver/types"
)

const loanColumns = `
	l.id, l.user_id, l.book_id, l.copy_id, l.status, l.borrowed_at, l.due_date,
	l.return_requested_at, l.returned_at, l.renewal_requested, l.renewal_count,
	l.created_at, l.updated_at`

// LoanRepository handles persistence for loans.
type LoanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

func (r *LoanRepository) Get(ctx context.Context, id int) (types.Loan, error) {
	var loan types.Loan
	err := get(ctx, r.db, &loan, `
		SELECT `+loanColumns+`, b.title AS book_title, trim(u.first_name || ' ' || u.last_name) AS user_name
		FROM loans l
		JOIN books b ON b.id = l.book_id
		JOIN users u ON u.id = l.user_id
		WHERE l.id = $1`, id)
	return loan, err
}

// GetForUpdate loads the loan and locks its row for the rest of the transaction.
func (r *LoanRepository) GetForUpdate(ctx context.Context, id int) (types.Loan, error) {
	var loan types.Loan
	err := get(ctx, r.db, &loan, `SELECT `+loanColumns+` FROM loans l WHERE l.id = $1 FOR UPDATE`, id)
	return loan, err
}

// CountOpenByUser counts loans that still hold a copy.
func (r *LoanRepository) CountOpenByUser(ctx context.Context, userID int) (int, error) {
	var count int
	err := get(ctx, r.db, &count,
		`SELECT COUNT(1) FROM loans WHERE user_id = $1 AND status IN ($2, $3)`,
		userID, types.LoanActive, types.LoanReturnPending)
	return count, err
}

func (r *LoanRepository) List(ctx context.Context, filter types.LoanFilter, offset, limit int) ([]types.Loan, int, error) {
	offset, limit = normalizePage(offset, limit)

	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("l.status = $%d", len(args)))
	}
	if filter.UserID > 0 {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("l.user_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := get(ctx, r.db, &total, `SELECT COUNT(1) FROM loans l`+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, offset, limit)
	query := fmt.Sprintf(`
		SELECT %s, b.title AS book_title, trim(u.first_name || ' ' || u.last_name) AS user_name
		FROM loans l
		JOIN books b ON b.id = l.book_id
		JOIN users u ON u.id = l.user_id%s
		ORDER BY l.created_at DESC, l.id DESC
		OFFSET $%d LIMIT $%d`, loanColumns, clause, len(args)-1, len(args))
	loans := make([]types.Loan, 0, limit)
	if err := selectAll(ctx, r.db, &loans, query, args...); err != nil {
		return nil, 0, err
	}
	return loans, total, nil
}

func (r *LoanRepository) Create(ctx context.Context, loan types.Loan) (types.Loan, error) {
	now := time.Now()
	loan.CreatedAt = now
	loan.UpdatedAt = now

	const query = `
		INSERT INTO loans (user_id, book_id, copy_id, status, borrowed_at, due_date,
			renewal_requested, renewal_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	err := get(ctx, r.db, &loan.ID, query,
		loan.UserID,
		loan.BookID,
		loan.CopyID,
		loan.Status,
		loan.BorrowedAt,
		loan.DueDate,
		loan.RenewalRequested,
		loan.RenewalCount,
		loan.CreatedAt,
		loan.UpdatedAt,
	)
	if err != nil {
		return types.Loan{}, err
	}
	return loan, nil
}

// Update writes the mutable lifecycle fields of a loan.
func (r *LoanRepository) Update(ctx context.Context, loan types.Loan) (types.Loan, error) {
	loan.UpdatedAt = time.Now()

	const query = `
		UPDATE loans
		SET status = $1,
			due_date = $2,
			return_requested_at = $3,
			returned_at = $4,
			renewal_requested = $5,
			renewal_count = $6,
			updated_at = $7
		WHERE id = $8`
	err := execOne(ctx, r.db, query,
		loan.Status,
		loan.DueDate,
		loan.ReturnRequestedAt,
		loan.ReturnedAt,
		loan.RenewalRequested,
		loan.RenewalCount,
		loan.UpdatedAt,
		loan.ID,
	)
	if err != nil {
		return types.Loan{}, err
	}
	return loan, nil
}

const fineColumns = `
	f.id, f.user_id, f.book_id, f.loan_id, f.amount, f.reason, f.is_paid, f.paid_at,
	f.created_at, f.updated_at`

// FineRepository handles persistence for fines.
type FineRepository struct {
	db *sqlx.DB
}

func NewFineRepository(db *sqlx.DB) *FineRepository {
	return &FineRepository{db: db}
}

func (r *FineRepository) Get(ctx context.Context, id int) (types.Fine, error) {
	var fine types.Fine
	err := get(ctx, r.db, &fine, `SELECT `+fineColumns+` FROM fines f WHERE f.id = $1`, id)
	return fine, err
}

// GetForUpdate loads the fine and locks its row.
func (r *FineRepository) GetForUpdate(ctx context.Context, id int) (types.Fine, error) {
	var fine types.Fine
	err := get(ctx, r.db, &fine, `SELECT `+fineColumns+` FROM fines f WHERE f.id = $1 FOR UPDATE`, id)
	return fine, err
}

func (r *FineRepository) List(ctx context.Context, filter types.FineFilter) ([]types.Fine, error) {
	var where []string
	var args []any
	if filter.IsPaid != nil {
		args = append(args, *filter.IsPaid)
		where = append(where, fmt.Sprintf("f.is_paid = $%d", len(args)))
	}
	if filter.UserID > 0 {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("f.user_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	fines := []types.Fine{}
	err := selectAll(ctx, r.db, &fines, `
		SELECT `+fineColumns+`, b.title AS book_title, trim(u.first_name || ' ' || u.last_name) AS user_name
		FROM fines f
		LEFT JOIN books b ON b.id = f.book_id
		JOIN users u ON u.id = f.user_id`+clause+`
		ORDER BY f.created_at DESC, f.id DESC`, args...)
	return fines, err
}

func (r *FineRepository) Create(ctx context.Context, fine types.Fine) (types.Fine, error) {
	now := time.Now()
	fine.CreatedAt = now
	fine.UpdatedAt = now

	const query = `
		INSERT INTO fines (user_id, book_id, loan_id, amount, reason, is_paid, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := get(ctx, r.db, &fine.ID, query,
		fine.UserID,
		fine.BookID,
		fine.LoanID,
		fine.Amount,
		fine.Reason,
		fine.IsPaid,
		fine.PaidAt,
		fine.CreatedAt,
		fine.UpdatedAt,
	)
	if err != nil {
		return types.Fine{}, err
	}
	return fine, nil
}

func (r *FineRepository) Update(ctx context.Context, fine types.Fine) (types.Fine, error) {
	fine.UpdatedAt = time.Now()
	err := execOne(ctx, r.db,
		`UPDATE fines SET amount = $1, reason = $2, is_paid = $3, paid_at = $4, updated_at = $5 WHERE id = $6`,
		fine.Amount, fine.Reason, fine.IsPaid, fine.PaidAt, fine.UpdatedAt, fine.ID)
	if err != nil {
		return types.Fine{}, err
	}
	return fine, nil
}

// SettingsRepository stores the singleton library settings row.
type SettingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const settingsColumns = `id, enable_fines, fine_amount_per_day, fine_interval_unit, fine_interval_days, updated_at`

// Get returns the settings row or ErrNotFound when it has not been created yet.
func (r *SettingsRepository) Get(ctx context.Context) (types.LibrarySettings, error) {
	var settings types.LibrarySettings
	err := get(ctx, r.db, &settings, `SELECT `+settingsColumns+` FROM library_settings WHERE id = 1`)
	return settings, err
}

// Init inserts the defaults unless another request already did, then
// returns the stored row.
func (r *SettingsRepository) Init(ctx context.Context, defaults types.LibrarySettings) (types.LibrarySettings, error) {
	err := exec(ctx, r.db, `
		INSERT INTO library_settings (id, enable_fines, fine_amount_per_day, fine_interval_unit, fine_interval_days, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		defaults.EnableFines, defaults.FineAmountPerDay, defaults.FineIntervalUnit, defaults.FineIntervalDays, time.Now())
	if err != nil {
		return types.LibrarySettings{}, err
	}
	return r.Get(ctx)
}

func (r *SettingsRepository) Update(ctx context.Context, settings types.LibrarySettings) (types.LibrarySettings, error) {
	settings.ID = 1
	settings.UpdatedAt = time.Now()
	err := execOne(ctx, r.db, `
		UPDATE library_settings
		SET enable_fines = $1,
			fine_amount_per_day = $2,
			fine_interval_unit = $3,
			fine_interval_days = $4,
			updated_at = $5
		WHERE id = 1`,
		settings.EnableFines, settings.FineAmountPerDay, settings.FineIntervalUnit, settings.FineIntervalDays, settings.UpdatedAt)
	if err != nil {
		return types.LibrarySettings{}, err
	}
	return settings, nil
}

// DashboardRepository computes aggregate counts for staff.
type DashboardRepository struct {
	db *sqlx.DB
}

func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

func (r *DashboardRepository) Stats(ctx context.Context, now time.Time) (types.DashboardStats, error) {
	var stats types.DashboardStats
	err := get(ctx, r.db, &stats, `
		SELECT
			(SELECT COUNT(1) FROM books) AS total_books,
			(SELECT COUNT(1) FROM book_copies WHERE status <> 'LOST') AS total_copies,
			(SELECT COUNT(1) FROM book_copies WHERE status = 'AVAILABLE') AS available_copies,
			(SELECT COUNT(1) FROM loans WHERE status IN ('ACTIVE', 'RETURN_PENDING')) AS active_loans,
			(SELECT COUNT(1) FROM loans WHERE status IN ('ACTIVE', 'RETURN_PENDING') AND due_date < $1) AS overdue_loans,
			(SELECT COUNT(1) FROM loans WHERE status = 'RETURN_PENDING') AS pending_returns,
			(SELECT COUNT(1) FROM loans WHERE renewal_requested) AS pending_renewals,
			(SELECT COUNT(1) FROM fines WHERE NOT is_paid) AS unpaid_fines,
			(SELECT COALESCE(SUM(amount), 0) FROM fines WHERE NOT is_paid) AS unpaid_fines_total,
			(SELECT COUNT(1) FROM users) AS total_users,
			(SELECT COUNT(1) FROM book_suggestions WHERE status = 'PENDING') AS pending_suggestions`, now)
	return stats, err
}
