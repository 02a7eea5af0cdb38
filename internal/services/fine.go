package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/unilib/apiserver/internal/log"
	"github.com/unilib/apiserver/internal/metrics"
	"github.com/unilib/apiserver/types"
)

// FineRepository defines persistence operations for fines.
type FineRepository interface {
	Get(ctx context.Context, id int) (types.Fine, error)
	GetForUpdate(ctx context.Context, id int) (types.Fine, error)
	List(ctx context.Context, filter types.FineFilter) ([]types.Fine, error)
	Create(ctx context.Context, fine types.Fine) (types.Fine, error)
	Update(ctx context.Context, fine types.Fine) (types.Fine, error)
}

type userLookup interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

type bookLookup interface {
	Get(ctx context.Context, id int) (types.Book, error)
}

// ManualFine is a fine issued by a librarian outside a loan return.
type ManualFine struct {
	UserID int
	BookID *int
	Amount decimal.Decimal
	Reason string
}

const minFineReason = 10

type FineService struct {
	tx            TxRunner
	fines         FineRepository
	users         userLookup
	books         bookLookup
	notifications *NotificationService
	now           func() time.Time
	logger        zerolog.Logger
}

func NewFineService(tx TxRunner, fines FineRepository, users userLookup, books bookLookup, notifications *NotificationService) *FineService {
	return &FineService{
		tx:            tx,
		fines:         fines,
		users:         users,
		books:         books,
		notifications: notifications,
		now:           time.Now,
		logger:        log.WithComponent("fines"),
	}
}

func (s *FineService) List(ctx context.Context, filter types.FineFilter) ([]types.Fine, error) {
	return s.fines.List(ctx, filter)
}

func (s *FineService) ListMine(ctx context.Context, userID int, isPaid *bool) ([]types.Fine, error) {
	return s.fines.List(ctx, types.FineFilter{UserID: userID, IsPaid: isPaid})
}

func (s *FineService) CreateManual(ctx context.Context, input ManualFine) (types.Fine, error) {
	if !input.Amount.IsPositive() {
		return types.Fine{}, BadRequest("amount must be greater than 0")
	}
	reason := strings.TrimSpace(input.Reason)
	if len([]rune(reason)) < minFineReason {
		return types.Fine{}, BadRequest("reason must be at least %d characters", minFineReason)
	}

	var (
		fine types.Fine
		note types.Notification
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.users.GetByID(ctx, input.UserID); err != nil {
			return missing(err, "user")
		}
		var title *string
		if input.BookID != nil {
			book, err := s.books.Get(ctx, *input.BookID)
			if err != nil {
				return missing(err, "book")
			}
			title = &book.Title
		}

		var err error
		fine, err = s.fines.Create(ctx, types.Fine{
			UserID: input.UserID,
			BookID: input.BookID,
			Amount: input.Amount.Round(2),
			Reason: reason,
		})
		if err != nil {
			return err
		}
		fine.BookTitle = title

		note, err = s.notifications.Create(ctx, input.UserID, types.NotificationFine,
			fmt.Sprintf("A fine of %s was issued: %s", fine.Amount.StringFixed(2), reason))
		return err
	})
	if err != nil {
		return types.Fine{}, err
	}

	metrics.FinesIssued.WithLabelValues("manual").Inc()
	s.notifications.Deliver(note)
	return fine, nil
}

// Adjust changes the amount of an unpaid fine.
func (s *FineService) Adjust(ctx context.Context, id int, amount decimal.Decimal) (types.Fine, error) {
	if !amount.IsPositive() {
		return types.Fine{}, BadRequest("amount must be greater than 0")
	}

	var fine types.Fine
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		fine, err = s.fines.GetForUpdate(ctx, id)
		if err != nil {
			return missing(err, "fine")
		}
		if fine.IsPaid {
			return BadRequest("paid fines cannot be changed")
		}
		fine.Amount = amount.Round(2)
		fine, err = s.fines.Update(ctx, fine)
		return err
	})
	return fine, err
}

// Pay marks the fine paid. Paying twice is rejected.
func (s *FineService) Pay(ctx context.Context, id int) (types.Fine, error) {
	var fine types.Fine
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		fine, err = s.fines.GetForUpdate(ctx, id)
		if err != nil {
			return missing(err, "fine")
		}
		if fine.IsPaid {
			return BadRequest("fine already paid")
		}
		paidAt := s.now()
		fine.IsPaid = true
		fine.PaidAt = &paidAt
		fine, err = s.fines.Update(ctx, fine)
		return err
	})
	if err != nil {
		return types.Fine{}, err
	}
	s.logger.Info().Int("fine_id", fine.ID).Int("user_id", fine.UserID).Msg("fine paid")
	return fine, nil
}
