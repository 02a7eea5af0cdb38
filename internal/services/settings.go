package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
)

// SettingsRepository defines persistence operations for the settings row.
type SettingsRepository interface {
	Get(ctx context.Context) (types.LibrarySettings, error)
	Init(ctx context.Context, defaults types.LibrarySettings) (types.LibrarySettings, error)
	Update(ctx context.Context, settings types.LibrarySettings) (types.LibrarySettings, error)
}

// DefaultSettings is stored the first time the settings row is read.
func DefaultSettings() types.LibrarySettings {
	return types.LibrarySettings{
		ID:               1,
		EnableFines:      true,
		FineAmountPerDay: decimal.NewFromInt(1),
		FineIntervalUnit: types.FineIntervalDaily,
	}
}

type SettingsService struct {
	tx   TxRunner
	repo SettingsRepository
}

func NewSettingsService(tx TxRunner, repo SettingsRepository) *SettingsService {
	return &SettingsService{tx: tx, repo: repo}
}

// Current returns the settings, creating the default row if it is missing.
func (s *SettingsService) Current(ctx context.Context) (types.LibrarySettings, error) {
	settings, err := s.repo.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return s.repo.Init(ctx, DefaultSettings())
	}
	return settings, err
}

// Update applies a partial change. Switching to DAILY clears the custom
// interval and takes no day count. CUSTOM requires a positive interval in
// the same request.
func (s *SettingsService) Update(ctx context.Context, upd types.SettingsUpdate) (types.LibrarySettings, error) {
	var updated types.LibrarySettings
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.Current(ctx)
		if err != nil {
			return err
		}
		next, err := applySettings(current, upd)
		if err != nil {
			return err
		}
		updated, err = s.repo.Update(ctx, next)
		return err
	})
	return updated, err
}

func applySettings(current types.LibrarySettings, upd types.SettingsUpdate) (types.LibrarySettings, error) {
	next := current

	if upd.EnableFines != nil {
		next.EnableFines = *upd.EnableFines
	}
	if upd.FineAmountPerDay != nil {
		if !upd.FineAmountPerDay.IsPositive() {
			return current, BadRequest("fineAmountPerDay must be greater than 0")
		}
		next.FineAmountPerDay = upd.FineAmountPerDay.Round(2)
	}

	if upd.FineIntervalDays != nil && *upd.FineIntervalDays <= 0 {
		return current, BadRequest("fineIntervalDays must be greater than 0")
	}

	if upd.FineIntervalUnit != nil {
		switch *upd.FineIntervalUnit {
		case types.FineIntervalDaily:
			if upd.FineIntervalDays != nil {
				return current, BadRequest("fineIntervalDays can only be set when fineIntervalUnit is CUSTOM")
			}
			next.FineIntervalUnit = types.FineIntervalDaily
			next.FineIntervalDays = nil
			return next, nil
		case types.FineIntervalCustom:
			if upd.FineIntervalDays == nil {
				return current, BadRequest("fineIntervalDays is required when fineIntervalUnit is CUSTOM")
			}
			next.FineIntervalUnit = types.FineIntervalCustom
			days := *upd.FineIntervalDays
			next.FineIntervalDays = &days
			return next, nil
		default:
			return current, BadRequest("fineIntervalUnit must be DAILY or CUSTOM")
		}
	}

	if upd.FineIntervalDays != nil {
		if next.FineIntervalUnit != types.FineIntervalCustom {
			return current, BadRequest("fineIntervalDays can only be set when fineIntervalUnit is CUSTOM")
		}
		days := *upd.FineIntervalDays
		next.FineIntervalDays = &days
	}
	return next, nil
}
