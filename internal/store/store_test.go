package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unilib/apiserver/types"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func TestInTxCommitsAndSharesTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	st := New(db)
	books := NewBookRepository(db)
	copies := NewCopyRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE book_copies SET status").
		WithArgs(types.CopyBorrowed, sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE books SET available_copies").
		WithArgs(0, 1, types.BookBorrowed, sqlmock.AnyArg(), 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.InTx(context.Background(), func(ctx context.Context) error {
		if err := copies.SetStatus(ctx, 3, types.CopyBorrowed); err != nil {
			return err
		}
		return st.InTx(ctx, func(ctx context.Context) error {
			return books.UpdateInventory(ctx, 9, 0, 1, types.BookBorrowed)
		})
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	st := New(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := st.InTx(context.Background(), func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecOneReportsMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCategoryRepository(db)

	mock.ExpectExec("DELETE FROM categories").WithArgs(42).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), 42), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryListOrderedByName(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCategoryRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT id, name, description, created_at, updated_at FROM categories ORDER BY name").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
			AddRow(2, "Fiction", "", now, now).
			AddRow(1, "History", "Past things", now, now))

	categories, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Fiction", categories[0].Name)
	assert.Equal(t, "Past things", categories[1].Description)
}

func TestFavoriteAddDuplicateIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFavoriteRepository(db)

	mock.ExpectQuery("INSERT INTO favorites").
		WithArgs(1, 5, sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Add(context.Background(), 1, 5)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCopyInventoryGroupsByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCopyRepository(db)

	mock.ExpectQuery("SELECT status, COUNT\\(1\\) AS count FROM book_copies").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("AVAILABLE", 2).
			AddRow("BORROWED", 1).
			AddRow("LOST", 1))

	inv, err := repo.Inventory(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, types.Inventory{Available: 2, Borrowed: 1, Lost: 1}, inv)
	assert.Equal(t, 3, inv.Total())
}

func TestCountOpenLoansByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoanRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(1\\) FROM loans WHERE user_id").
		WithArgs(4, types.LoanActive, types.LoanReturnPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountOpenByUser(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGetLoanNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoanRepository(db)

	mock.ExpectQuery("FROM loans l").WithArgs(99).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettingsInitInsertsDefaultsOnce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSettingsRepository(db)
	now := time.Now()

	mock.ExpectExec("INSERT INTO library_settings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM library_settings WHERE id = 1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "enable_fines", "fine_amount_per_day", "fine_interval_unit", "fine_interval_days", "updated_at"}).
			AddRow(1, true, "2.50", "CUSTOM", 5, now))

	settings, err := repo.Init(context.Background(), types.LibrarySettings{
		EnableFines:      true,
		FineAmountPerDay: decimal.NewFromInt(1),
		FineIntervalUnit: types.FineIntervalDaily,
	})
	require.NoError(t, err)
	assert.True(t, settings.FineAmountPerDay.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, types.FineIntervalCustom, settings.FineIntervalUnit)
	require.NotNil(t, settings.FineIntervalDays)
	assert.Equal(t, 5, *settings.FineIntervalDays)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFollowedChannelIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChannelRepository(db)

	mock.ExpectQuery("SELECT channel_id FROM channel_follows").
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"channel_id"}).AddRow(2).AddRow(5))

	ids, err := repo.FollowedChannelIDs(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, ids)
}
