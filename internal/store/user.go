package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/unilib/apiserver/types"
)

const userColumns = `id, email, first_name, last_name, role, status, password_hash, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	var user types.User
	err := get(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return user, err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.User
	err := get(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return user, err
}

// Lock takes a row lock on the user for the rest of the transaction.
func (r *UserRepository) Lock(ctx context.Context, id int) error {
	var locked int
	return get(ctx, r.db, &locked, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *UserRepository) List(ctx context.Context, filter types.UserFilter, offset, limit int) ([]types.User, int, error) {
	offset, limit = normalizePage(offset, limit)

	var where []string
	var args []any
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(email ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)", n, n, n))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := get(ctx, r.db, &total, `SELECT COUNT(1) FROM users`+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, offset, limit)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY id OFFSET $%d LIMIT $%d`, userColumns, clause, len(args)-1, len(args))
	users := make([]types.User, 0, limit)
	if err := selectAll(ctx, r.db, &users, query, args...); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// ListIDsByRoles returns active users holding any of roles.
func (r *UserRepository) ListIDsByRoles(ctx context.Context, roles []types.Role) ([]int, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	var ids []int
	err := selectAll(ctx, r.db, &ids,
		`SELECT id FROM users WHERE role = ANY($1) AND status = $2 ORDER BY id`,
		pq.Array(names), types.UserActive)
	return ids, err
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (email, first_name, last_name, role, status, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := get(ctx, r.db, &user.ID, query,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Status,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET email = $1,
			first_name = $2,
			last_name = $3,
			role = $4,
			status = $5,
			password_hash = $6,
			updated_at = $7
		WHERE id = $8`
	err := execOne(ctx, r.db, query,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Status,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}
