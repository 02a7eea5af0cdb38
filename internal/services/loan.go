package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/unilib/apiserver/internal/log"
	"github.com/unilib/apiserver/internal/metrics"
	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
)

// LoanRepository defines persistence operations for loans.
type LoanRepository interface {
	Get(ctx context.Context, id int) (types.Loan, error)
	GetForUpdate(ctx context.Context, id int) (types.Loan, error)
	CountOpenByUser(ctx context.Context, userID int) (int, error)
	List(ctx context.Context, filter types.LoanFilter, offset, limit int) ([]types.Loan, int, error)
	Create(ctx context.Context, loan types.Loan) (types.Loan, error)
	Update(ctx context.Context, loan types.Loan) (types.Loan, error)
}

type loanUsers interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	Lock(ctx context.Context, id int) error
}

type loanBooks interface {
	Lock(ctx context.Context, id int) error
}

type loanCopies interface {
	ClaimAvailable(ctx context.Context, bookID int) (types.BookCopy, error)
	SetStatus(ctx context.Context, id int, status types.CopyStatus) error
}

type fineWriter interface {
	Create(ctx context.Context, fine types.Fine) (types.Fine, error)
}

// LoanService runs the borrow, return and renewal lifecycle. Every mutation
// is one transaction; realtime notifications go out after it commits.
type LoanService struct {
	tx            TxRunner
	loans         LoanRepository
	users         loanUsers
	books         loanBooks
	copies        loanCopies
	fines         fineWriter
	settings      *SettingsService
	inventory     *InventoryService
	notifications *NotificationService
	policy        LoanPolicy
	now           func() time.Time
	logger        zerolog.Logger
}

func NewLoanService(
	tx TxRunner,
	loans LoanRepository,
	users loanUsers,
	books loanBooks,
	copies loanCopies,
	fines fineWriter,
	settings *SettingsService,
	inventory *InventoryService,
	notifications *NotificationService,
	policy LoanPolicy,
) *LoanService {
	return &LoanService{
		tx:            tx,
		loans:         loans,
		users:         users,
		books:         books,
		copies:        copies,
		fines:         fines,
		settings:      settings,
		inventory:     inventory,
		notifications: notifications,
		policy:        policy,
		now:           time.Now,
		logger:        log.WithComponent("loans"),
	}
}

// ReturnResult is a confirmed return and the fine it produced, if any.
type ReturnResult struct {
	Loan types.Loan  `json:"loan"`
	Fine *types.Fine `json:"fine,omitempty"`
}

func (s *LoanService) Get(ctx context.Context, actor Actor, id int) (types.Loan, error) {
	loan, err := s.loans.Get(ctx, id)
	if err != nil {
		return types.Loan{}, missing(err, "loan")
	}
	if loan.UserID != actor.ID && !actor.IsStaff() {
		return types.Loan{}, Forbidden("you can only view your own loans")
	}
	return loan, nil
}

func (s *LoanService) List(ctx context.Context, filter types.LoanFilter, page, limit int) ([]types.Loan, types.PageMeta, error) {
	limit = clampLimit(limit, 20, 100)
	loans, total, err := s.loans.List(ctx, filter, pageOffset(page, limit), limit)
	if err != nil {
		return nil, types.PageMeta{}, err
	}
	return loans, types.NewPageMeta(total, max(page, 1), limit), nil
}

// Create lends one available copy of bookID to userID.
func (s *LoanService) Create(ctx context.Context, actor Actor, bookID, userID int) (types.Loan, error) {
	if userID != actor.ID && !actor.IsStaff() {
		return types.Loan{}, Forbidden("you can only borrow books for yourself")
	}

	var loan types.Loan
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return missing(err, "user")
		}
		if user.Status != types.UserActive {
			return BadRequest("user account is not active")
		}
		if err := s.users.Lock(ctx, userID); err != nil {
			return err
		}

		open, err := s.loans.CountOpenByUser(ctx, userID)
		if err != nil {
			return err
		}
		if open >= s.policy.BorrowingLimit {
			return BadRequest("borrowing limit of %d books reached", s.policy.BorrowingLimit)
		}

		if err := s.books.Lock(ctx, bookID); err != nil {
			return missing(err, "book")
		}
		claimed, err := s.copies.ClaimAvailable(ctx, bookID)
		if errors.Is(err, store.ErrNotFound) {
			return BadRequest("no copies of this book are available")
		}
		if err != nil {
			return err
		}
		if err := s.copies.SetStatus(ctx, claimed.ID, types.CopyBorrowed); err != nil {
			return err
		}

		now := s.now()
		loan, err = s.loans.Create(ctx, types.Loan{
			UserID:     userID,
			BookID:     bookID,
			CopyID:     claimed.ID,
			Status:     types.LoanActive,
			BorrowedAt: now,
			DueDate:    now.Add(s.policy.LoanDuration),
		})
		if err != nil {
			return err
		}

		book, _, err := s.inventory.Refresh(ctx, bookID)
		if err != nil {
			return err
		}
		loan.BookTitle = book.Title
		loan.UserName = user.FullName()
		return nil
	})
	if err != nil {
		return types.Loan{}, err
	}

	metrics.LoansCreated.Inc()
	s.logger.Info().Int("loan_id", loan.ID).Int("user_id", userID).Int("book_id", bookID).Msg("loan created")
	return loan, nil
}

// InitiateReturn records that the borrower handed the book back. The copy
// stays BORROWED until a librarian confirms.
func (s *LoanService) InitiateReturn(ctx context.Context, actor Actor, id int) (types.Loan, error) {
	var (
		loan  types.Loan
		notes []types.Notification
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		loan, err = s.lock(ctx, id)
		if err != nil {
			return err
		}
		if loan.UserID != actor.ID {
			return Forbidden("you can only return your own loans")
		}
		switch loan.Status {
		case types.LoanReturnPending:
			return BadRequest("return already requested")
		case types.LoanReturned:
			return BadRequest("loan already returned")
		}

		now := s.now()
		loan.Status = types.LoanReturnPending
		loan.ReturnRequestedAt = &now
		if loan, err = s.loans.Update(ctx, loan); err != nil {
			return err
		}

		notes, err = s.notifications.CreateForStaff(ctx, types.NotificationLoan,
			fmt.Sprintf("%s returned %q and is waiting for confirmation", loan.UserName, loan.BookTitle))
		return err
	})
	if err != nil {
		return types.Loan{}, err
	}
	s.notifications.Deliver(notes...)
	return loan, nil
}

// ConfirmReturn frees the copy, closes the loan and charges a fine when the
// loan was overdue and fines are enabled.
func (s *LoanService) ConfirmReturn(ctx context.Context, actor Actor, id int) (ReturnResult, error) {
	if !actor.IsStaff() {
		return ReturnResult{}, Forbidden("only librarians can confirm returns")
	}

	var (
		result ReturnResult
		notes  []types.Notification
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		loan, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if loan.Status == types.LoanReturned {
			return BadRequest("loan already returned")
		}
		if err := s.books.Lock(ctx, loan.BookID); err != nil {
			return err
		}
		if err := s.copies.SetStatus(ctx, loan.CopyID, types.CopyAvailable); err != nil {
			return err
		}

		now := s.now()
		loan.Status = types.LoanReturned
		loan.ReturnedAt = &now
		loan.RenewalRequested = false
		if loan, err = s.loans.Update(ctx, loan); err != nil {
			return err
		}
		result.Loan = loan

		note, err := s.notifications.Create(ctx, loan.UserID, types.NotificationLoan,
			fmt.Sprintf("Your return of %q has been confirmed", loan.BookTitle))
		if err != nil {
			return err
		}
		notes = append(notes, note)

		settings, err := s.settings.Current(ctx)
		if err != nil {
			return err
		}
		days := types.OverdueDays(loan.DueDate, now)
		if amount := settings.FineFor(days); amount.IsPositive() {
			bookID, loanID := loan.BookID, loan.ID
			fine, err := s.fines.Create(ctx, types.Fine{
				UserID: loan.UserID,
				BookID: &bookID,
				LoanID: &loanID,
				Amount: amount,
				Reason: fmt.Sprintf("Returned %q %d day(s) late", loan.BookTitle, days),
			})
			if err != nil {
				return err
			}
			result.Fine = &fine

			note, err := s.notifications.Create(ctx, loan.UserID, types.NotificationFine,
				fmt.Sprintf("A fine of %s was issued for the late return of %q", amount.StringFixed(2), loan.BookTitle))
			if err != nil {
				return err
			}
			notes = append(notes, note)
		}

		_, _, err = s.inventory.Refresh(ctx, loan.BookID)
		return err
	})
	if err != nil {
		return ReturnResult{}, err
	}

	metrics.LoansReturned.Inc()
	if result.Fine != nil {
		metrics.FinesIssued.WithLabelValues("overdue").Inc()
	}
	s.notifications.Deliver(notes...)
	return result, nil
}

func (s *LoanService) RequestRenewal(ctx context.Context, actor Actor, id int) (types.Loan, error) {
	var (
		loan  types.Loan
		notes []types.Notification
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		loan, err = s.lock(ctx, id)
		if err != nil {
			return err
		}
		if loan.UserID != actor.ID {
			return Forbidden("you can only renew your own loans")
		}
		if loan.Status != types.LoanActive {
			return BadRequest("only active loans can be renewed")
		}
		if loan.IsOverdue(s.now()) {
			return BadRequest("overdue loans cannot be renewed")
		}
		if loan.RenewalRequested {
			return BadRequest("renewal already requested")
		}

		loan.RenewalRequested = true
		if loan, err = s.loans.Update(ctx, loan); err != nil {
			return err
		}
		notes, err = s.notifications.CreateForStaff(ctx, types.NotificationRenewal,
			fmt.Sprintf("%s requested a renewal of %q", loan.UserName, loan.BookTitle))
		return err
	})
	if err != nil {
		return types.Loan{}, err
	}
	s.notifications.Deliver(notes...)
	return loan, nil
}

// ApproveRenewal extends the due date by the renewal period.
func (s *LoanService) ApproveRenewal(ctx context.Context, actor Actor, id int) (types.Loan, error) {
	return s.decideRenewal(ctx, actor, id, true)
}

// RejectRenewal clears the request and leaves the due date unchanged.
func (s *LoanService) RejectRenewal(ctx context.Context, actor Actor, id int) (types.Loan, error) {
	return s.decideRenewal(ctx, actor, id, false)
}

func (s *LoanService) decideRenewal(ctx context.Context, actor Actor, id int, approve bool) (types.Loan, error) {
	if !actor.IsStaff() {
		return types.Loan{}, Forbidden("only librarians can decide renewals")
	}

	var (
		loan types.Loan
		note types.Notification
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		loan, err = s.lock(ctx, id)
		if err != nil {
			return err
		}
		if !loan.RenewalRequested {
			return BadRequest("no renewal request is pending for this loan")
		}

		loan.RenewalRequested = false
		message := fmt.Sprintf("Your renewal request for %q was rejected", loan.BookTitle)
		if approve {
			if loan.Status != types.LoanActive {
				return BadRequest("only active loans can be renewed")
			}
			loan.DueDate = loan.DueDate.Add(s.policy.RenewalPeriod)
			loan.RenewalCount++
			message = fmt.Sprintf("Your renewal of %q was approved, new due date %s",
				loan.BookTitle, loan.DueDate.Format("2006-01-02"))
		}
		if loan, err = s.loans.Update(ctx, loan); err != nil {
			return err
		}
		note, err = s.notifications.Create(ctx, loan.UserID, types.NotificationRenewal, message)
		return err
	})
	if err != nil {
		return types.Loan{}, err
	}
	s.notifications.Deliver(note)
	return loan, nil
}

// lock takes the loan row lock and returns the loan with its display fields.
func (s *LoanService) lock(ctx context.Context, id int) (types.Loan, error) {
	if _, err := s.loans.GetForUpdate(ctx, id); err != nil {
		return types.Loan{}, missing(err, "loan")
	}
	loan, err := s.loans.Get(ctx, id)
	if err != nil {
		return types.Loan{}, missing(err, "loan")
	}
	return loan, nil
}
