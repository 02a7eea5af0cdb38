package services

import (
	"context"
	"errors"
	"strings"

	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context, filter types.UserFilter, offset, limit int) ([]types.User, int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// UserUpdate is a partial change made by a manager.
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Role      *types.Role
	Status    *types.UserStatus
}

const minPasswordLength = 8

// UserService encapsulates account use-cases.
type UserService struct {
	repo     UserRepository
	hashCost int
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, hashCost: bcrypt.DefaultCost}
}

// Register creates an ACTIVE account with the USER role.
func (s *UserService) Register(ctx context.Context, email, firstName, lastName, password string) (types.User, error) {
	email = normalizeEmail(email)
	if len(password) < minPasswordLength {
		return types.User{}, BadRequest("password must be at least %d characters", minPasswordLength)
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return types.User{}, Conflict("email is already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return types.User{}, err
	}
	user, err := s.repo.Create(ctx, types.User{
		Email:        email,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Role:         types.RoleUser,
		Status:       types.UserActive,
		PasswordHash: string(hashed),
	})
	if errors.Is(err, store.ErrConflict) {
		return types.User{}, Conflict("email is already registered")
	}
	return user, err
}

// Authenticate checks credentials. Suspended accounts are refused even with
// a correct password.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, Unauthorized("invalid credentials")
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, Unauthorized("invalid credentials")
	}
	if user.Status != types.UserActive {
		return types.User{}, Forbidden("account is suspended")
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID int, current, next string) error {
	if len(next) < minPasswordLength {
		return BadRequest("password must be at least %d characters", minPasswordLength)
	}
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return BadRequest("current password is incorrect")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hashed)
	_, err = s.repo.Update(ctx, user)
	return missing(err, "user")
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	return user, missing(err, "user")
}

func (s *UserService) List(ctx context.Context, filter types.UserFilter, page, limit int) ([]types.User, types.PageMeta, error) {
	limit = clampLimit(limit, 20, 100)
	users, total, err := s.repo.List(ctx, filter, pageOffset(page, limit), limit)
	if err != nil {
		return nil, types.PageMeta{}, err
	}
	return users, types.NewPageMeta(total, max(page, 1), limit), nil
}

// Update applies a manager's change. Managers cannot change their own role
// or status.
func (s *UserService) Update(ctx context.Context, actor Actor, id int, upd UserUpdate) (types.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if id == actor.ID && (upd.Role != nil || upd.Status != nil) {
		return types.User{}, BadRequest("you cannot change your own role or status")
	}

	if upd.FirstName != nil {
		user.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		user.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return types.User{}, BadRequest("role must be USER, LIBRARIAN or MANAGER")
		}
		user.Role = *upd.Role
	}
	if upd.Status != nil {
		if *upd.Status != types.UserActive && *upd.Status != types.UserSuspended {
			return types.User{}, BadRequest("status must be ACTIVE or SUSPENDED")
		}
		user.Status = *upd.Status
	}

	updated, err := s.repo.Update(ctx, user)
	return updated, missing(err, "user")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
