package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOverdueDays(t *testing.T) {
	due := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, OverdueDays(due, due.Add(-time.Hour)))
	assert.Equal(t, 0, OverdueDays(due, time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 1, OverdueDays(due, time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)))
	assert.Equal(t, 10, OverdueDays(due, due.Add(10*24*time.Hour)))
}

func TestFineFor(t *testing.T) {
	days := 5
	tests := []struct {
		name     string
		settings LibrarySettings
		overdue  int
		want     string
	}{
		{name: "daily", settings: LibrarySettings{EnableFines: true, FineAmountPerDay: decimal.RequireFromString("0.50"), FineIntervalUnit: FineIntervalDaily}, overdue: 3, want: "1.50"},
		{name: "custom partial bucket", settings: LibrarySettings{EnableFines: true, FineAmountPerDay: decimal.NewFromInt(2), FineIntervalUnit: FineIntervalCustom, FineIntervalDays: &days}, overdue: 6, want: "4.00"},
		{name: "custom exact bucket", settings: LibrarySettings{EnableFines: true, FineAmountPerDay: decimal.NewFromInt(2), FineIntervalUnit: FineIntervalCustom, FineIntervalDays: &days}, overdue: 5, want: "2.00"},
		{name: "disabled", settings: LibrarySettings{FineAmountPerDay: decimal.NewFromInt(2)}, overdue: 9, want: "0.00"},
		{name: "not overdue", settings: LibrarySettings{EnableFines: true, FineAmountPerDay: decimal.NewFromInt(2)}, overdue: 0, want: "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.settings.FineFor(tt.overdue).StringFixed(2))
		})
	}
}

func TestLoanIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	loan := Loan{Status: LoanActive, DueDate: now.Add(-48 * time.Hour)}
	assert.True(t, loan.IsOverdue(now))

	loan.Status = LoanReturned
	assert.False(t, loan.IsOverdue(now))
}
