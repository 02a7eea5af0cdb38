package services

import (
	"context"
	"time"

	"github.com/unilib/apiserver/types"
)

type DashboardRepository interface {
	Stats(ctx context.Context, now time.Time) (types.DashboardStats, error)
}

type DashboardService struct {
	tx   TxRunner
	repo DashboardRepository
	now  func() time.Time
}

func NewDashboardService(tx TxRunner, repo DashboardRepository) *DashboardService {
	return &DashboardService{tx: tx, repo: repo, now: time.Now}
}

// Stats reads every counter from one snapshot. Loans due before today
// (UTC) count as overdue.
func (s *DashboardService) Stats(ctx context.Context) (types.DashboardStats, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var stats types.DashboardStats
	err := s.tx.InReadTx(ctx, func(ctx context.Context) error {
		var err error
		stats, err = s.repo.Stats(ctx, today)
		return err
	})
	return stats, err
}
