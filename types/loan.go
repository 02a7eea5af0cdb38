package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	// LoanActive means the copy is with the borrower.
	LoanActive LoanStatus = "ACTIVE"

	// LoanReturnPending means the borrower has announced the return and a
	// librarian has not yet confirmed it. The copy stays BORROWED.
	LoanReturnPending LoanStatus = "RETURN_PENDING"

	// LoanReturned is terminal.
	LoanReturned LoanStatus = "RETURNED"
)

// Loan records one user borrowing one book copy for a bounded period.
type Loan struct {
	ID                int        `json:"id" db:"id"`
	UserID            int        `json:"userId" db:"user_id"`
	BookID            int        `json:"bookId" db:"book_id"`
	CopyID            int        `json:"copyId" db:"copy_id"`
	Status            LoanStatus `json:"status" db:"status"`
	BorrowedAt        time.Time  `json:"borrowedAt" db:"borrowed_at"`
	DueDate           time.Time  `json:"dueDate" db:"due_date"`
	ReturnRequestedAt *time.Time `json:"returnRequestedAt,omitempty" db:"return_requested_at"`
	ReturnedAt        *time.Time `json:"returnedAt,omitempty" db:"returned_at"`
	RenewalRequested  bool       `json:"renewalRequested" db:"renewal_requested"`
	RenewalCount      int        `json:"renewalCount" db:"renewal_count"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time  `json:"updatedAt" db:"updated_at"`

	// BookTitle and UserName are filled by listing queries.
	BookTitle string `json:"bookTitle,omitempty" db:"book_title"`
	UserName  string `json:"userName,omitempty" db:"user_name"`
}

// IsOpen reports whether the loan still holds a copy.
func (l Loan) IsOpen() bool {
	return l.Status == LoanActive || l.Status == LoanReturnPending
}

// IsOverdue reports whether the loan is open past its due date at now.
func (l Loan) IsOverdue(now time.Time) bool {
	return l.IsOpen() && OverdueDays(l.DueDate, now) > 0
}

// LoanFilter narrows loan listings.
type LoanFilter struct {
	Status LoanStatus
	UserID int
}

// OverdueDays returns the number of whole calendar days between due and at,
// never negative. Both instants are compared as UTC dates.
func OverdueDays(due, at time.Time) int {
	d := truncateDay(due)
	a := truncateDay(at)
	if !a.After(d) {
		return 0
	}
	return int(a.Sub(d).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Fine is a monetary penalty linked to an overdue loan or issued manually.
type Fine struct {
	ID        int             `json:"id" db:"id"`
	UserID    int             `json:"userId" db:"user_id"`
	BookID    *int            `json:"bookId,omitempty" db:"book_id"`
	LoanID    *int            `json:"loanId,omitempty" db:"loan_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Reason    string          `json:"reason" db:"reason"`
	IsPaid    bool            `json:"isPaid" db:"is_paid"`
	PaidAt    *time.Time      `json:"paidAt,omitempty" db:"paid_at"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`

	BookTitle *string `json:"bookTitle,omitempty" db:"book_title"`
	UserName  string  `json:"userName,omitempty" db:"user_name"`
}

// FineFilter narrows fine listings.
type FineFilter struct {
	IsPaid *bool
	UserID int
}

// FineIntervalUnit selects how overdue days are bucketed.
type FineIntervalUnit string

const (
	FineIntervalDaily  FineIntervalUnit = "DAILY"
	FineIntervalCustom FineIntervalUnit = "CUSTOM"
)

// LibrarySettings is the singleton configuration row.
type LibrarySettings struct {
	ID               int              `json:"id" db:"id"`
	EnableFines      bool             `json:"enableFines" db:"enable_fines"`
	FineAmountPerDay decimal.Decimal  `json:"fineAmountPerDay" db:"fine_amount_per_day"`
	FineIntervalUnit FineIntervalUnit `json:"fineIntervalUnit" db:"fine_interval_unit"`
	FineIntervalDays *int             `json:"fineIntervalDays" db:"fine_interval_days"`
	UpdatedAt        time.Time        `json:"updatedAt" db:"updated_at"`
}

// IntervalDays is the bucket size used when computing fines.
func (s LibrarySettings) IntervalDays() int {
	if s.FineIntervalUnit == FineIntervalCustom && s.FineIntervalDays != nil && *s.FineIntervalDays > 0 {
		return *s.FineIntervalDays
	}
	return 1
}

// FineFor returns the fine owed for overdueDays, or zero when fines are off.
// The amount is charged once per started interval.
func (s LibrarySettings) FineFor(overdueDays int) decimal.Decimal {
	if !s.EnableFines || overdueDays <= 0 {
		return decimal.Zero
	}
	interval := s.IntervalDays()
	buckets := (overdueDays + interval - 1) / interval
	return s.FineAmountPerDay.Mul(decimal.NewFromInt(int64(buckets))).Round(2)
}

// SettingsUpdate is a partial update of LibrarySettings.
type SettingsUpdate struct {
	EnableFines      *bool             `json:"enableFines"`
	FineAmountPerDay *decimal.Decimal  `json:"fineAmountPerDay"`
	FineIntervalUnit *FineIntervalUnit `json:"fineIntervalUnit" validate:"omitempty,oneof=DAILY CUSTOM"`
	FineIntervalDays *int              `json:"fineIntervalDays"`
}

// DashboardStats are the aggregate counts shown to staff.
type DashboardStats struct {
	TotalBooks         int             `json:"totalBooks" db:"total_books"`
	TotalCopies        int             `json:"totalCopies" db:"total_copies"`
	AvailableCopies    int             `json:"availableCopies" db:"available_copies"`
	ActiveLoans        int             `json:"activeLoans" db:"active_loans"`
	OverdueLoans       int             `json:"overdueLoans" db:"overdue_loans"`
	PendingReturns     int             `json:"pendingReturns" db:"pending_returns"`
	PendingRenewals    int             `json:"pendingRenewals" db:"pending_renewals"`
	UnpaidFines        int             `json:"unpaidFines" db:"unpaid_fines"`
	UnpaidFinesTotal   decimal.Decimal `json:"unpaidFinesTotal" db:"unpaid_fines_total"`
	TotalUsers         int             `json:"totalUsers" db:"total_users"`
	PendingSuggestions int             `json:"pendingSuggestions" db:"pending_suggestions"`
}
