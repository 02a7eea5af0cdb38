// Package services holds the library's business rules. Services depend on the
// repository interfaces declared next to them and run multi-step mutations
// inside a single transaction.
package services

import (
	"context"
	"time"

	"github.com/unilib/apiserver/config"
	"github.com/unilib/apiserver/types"
)

// TxRunner runs fn in a transaction carried by the context it receives.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	InReadTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Broadcaster pushes an event to every client subscribed to room.
type Broadcaster interface {
	ToRoom(room, event string, payload any)
}

// Actor is the authenticated caller of a use-case.
type Actor struct {
	ID   int
	Role types.Role
}

func (a Actor) IsStaff() bool {
	return a.Role.IsStaff()
}

// LoanPolicy holds the circulation limits.
type LoanPolicy struct {
	BorrowingLimit int
	LoanDuration   time.Duration
	RenewalPeriod  time.Duration
}

func NewLoanPolicy(cfg config.LoanConfig) LoanPolicy {
	policy := LoanPolicy{
		BorrowingLimit: cfg.BorrowingLimit,
		LoanDuration:   time.Duration(cfg.LoanDurationDays) * 24 * time.Hour,
		RenewalPeriod:  time.Duration(cfg.RenewalDurationDays) * 24 * time.Hour,
	}
	if policy.BorrowingLimit <= 0 {
		policy.BorrowingLimit = 3
	}
	if policy.LoanDuration <= 0 {
		policy.LoanDuration = 14 * 24 * time.Hour
	}
	if policy.RenewalPeriod <= 0 {
		policy.RenewalPeriod = 14 * 24 * time.Hour
	}
	return policy
}

func pageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
