package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/unilib/apiserver/internal/hr"
	"github.com/unilib/apiserver/internal/log"
	"github.com/unilib/apiserver/internal/mail"
	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// RosterSource supplies the authoritative list of people from HR.
type RosterSource interface {
	Fetch(ctx context.Context) ([]types.ImportRecord, error)
}

const (
	passwordLength   = 16
	passwordAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// ImportService creates and updates accounts from spreadsheets and the HR
// roster, matching people by email.
type ImportService struct {
	users    UserRepository
	mailer   mail.Sender
	roster   RosterSource
	validate *validator.Validate
	hashCost int
	logger   zerolog.Logger
}

func NewImportService(users UserRepository, mailer mail.Sender, roster RosterSource) *ImportService {
	return &ImportService{
		users:    users,
		mailer:   mailer,
		roster:   roster,
		validate: validator.New(),
		hashCost: bcrypt.DefaultCost,
		logger:   log.WithComponent("import"),
	}
}

// Import creates missing accounts with a random password, which is mailed
// to the new user, and refreshes changed names of existing ones.
func (s *ImportService) Import(ctx context.Context, records []types.ImportRecord) (types.ImportResult, error) {
	result := types.ImportResult{Total: len(records)}
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		rec.Email = normalizeEmail(rec.Email)
		if err := s.validate.Var(rec.Email, "required,email"); err != nil {
			s.logger.Warn().Str("email", rec.Email).Msg("skipping record with invalid email")
			result.Skipped++
			continue
		}
		if _, dup := seen[rec.Email]; dup {
			result.Skipped++
			continue
		}
		seen[rec.Email] = struct{}{}

		existing, err := s.users.GetByEmail(ctx, rec.Email)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := s.create(ctx, rec); err != nil {
				return result, err
			}
			result.Created++
		case err != nil:
			return result, err
		case namesChanged(existing, rec):
			if rec.FirstName != "" {
				existing.FirstName = rec.FirstName
			}
			if rec.LastName != "" {
				existing.LastName = rec.LastName
			}
			if _, err := s.users.Update(ctx, existing); err != nil {
				return result, err
			}
			result.Updated++
		default:
			result.Skipped++
		}
	}

	s.logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("total", result.Total).
		Msg("user import finished")
	return result, nil
}

// Sync imports the current HR roster.
func (s *ImportService) Sync(ctx context.Context) (types.ImportResult, error) {
	records, err := s.roster.Fetch(ctx)
	if errors.Is(err, hr.ErrNotConfigured) {
		return types.ImportResult{}, Unavailable("HR source is not configured")
	}
	if err != nil {
		return types.ImportResult{}, err
	}
	return s.Import(ctx, records)
}

func (s *ImportService) create(ctx context.Context, rec types.ImportRecord) error {
	password, err := randomPassword()
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return err
	}
	user, err := s.users.Create(ctx, types.User{
		Email:        rec.Email,
		FirstName:    rec.FirstName,
		LastName:     rec.LastName,
		Role:         types.RoleUser,
		Status:       types.UserActive,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return err
	}

	msg, err := mail.Welcome(user.Email, user.FullName(), password)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.logger.Warn().Err(err).Int("user_id", user.ID).Msg("failed to send welcome mail")
	}
	return nil
}

func namesChanged(user types.User, rec types.ImportRecord) bool {
	return (rec.FirstName != "" && rec.FirstName != user.FirstName) ||
		(rec.LastName != "" && rec.LastName != user.LastName)
}

func randomPassword() (string, error) {
	buf := make([]byte, passwordLength)
	limit := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf), nil
}
