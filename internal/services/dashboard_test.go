package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unilib/apiserver/types"
)

type countingTx struct {
	fakeTx
	reads int
}

func (t *countingTx) InReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.reads++
	return fn(ctx)
}

type fakeDashboard struct {
	at    time.Time
	stats types.DashboardStats
	err   error
}

func (f *fakeDashboard) Stats(_ context.Context, now time.Time) (types.DashboardStats, error) {
	f.at = now
	return f.stats, f.err
}

func TestDashboardStatsUsesReadSnapshot(t *testing.T) {
	tx := &countingTx{}
	repo := &fakeDashboard{stats: types.DashboardStats{TotalBooks: 7, OverdueLoans: 2}}
	svc := NewDashboardService(tx, repo)
	loc := time.FixedZone("UTC+9", 9*3600)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 7, 30, 0, 0, loc) }

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalBooks)
	assert.Equal(t, 2, stats.OverdueLoans)
	assert.Equal(t, 1, tx.reads)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), repo.at)
}

func TestDashboardStatsPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewDashboardService(&countingTx{}, &fakeDashboard{err: boom})

	_, err := svc.Stats(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestDashboardStatsStartOfDayBehindUTC(t *testing.T) {
	repo := &fakeDashboard{}
	svc := NewDashboardService(fakeTx{}, repo)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600)) }

	_, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), repo.at)
}
