package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/unilib/apiserver/types"
)

// CategoryRepository handles persistence for categories.
type CategoryRepository struct {
	db *sqlx.DB
}

func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// List returns every category ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]types.Category, error) {
	categories := []types.Category{}
	err := selectAll(ctx, r.db, &categories,
		`SELECT id, name, description, created_at, updated_at FROM categories ORDER BY name`)
	return categories, err
}

func (r *CategoryRepository) Get(ctx context.Context, id int) (types.Category, error) {
	var category types.Category
	err := get(ctx, r.db, &category,
		`SELECT id, name, description, created_at, updated_at FROM categories WHERE id = $1`, id)
	return category, err
}

func (r *CategoryRepository) Create(ctx context.Context, category types.Category) (types.Category, error) {
	now := time.Now()
	category.CreatedAt = now
	category.UpdatedAt = now
	err := get(ctx, r.db, &category.ID,
		`INSERT INTO categories (name, description, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		category.Name, category.Description, category.CreatedAt, category.UpdatedAt)
	if err != nil {
		return types.Category{}, err
	}
	return category, nil
}

func (r *CategoryRepository) Update(ctx context.Context, category types.Category) (types.Category, error) {
	category.UpdatedAt = time.Now()
	err := execOne(ctx, r.db,
		`UPDATE categories SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		category.Name, category.Description, category.UpdatedAt, category.ID)
	if err != nil {
		return types.Category{}, err
	}
	return category, nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id int) error {
	return execOne(ctx, r.db, `DELETE FROM categories WHERE id = $1`, id)
}

const bookColumns = `
	b.id, b.title, b.author, b.isbn, b.publisher, b.published_year, b.description,
	b.category_id, c.name AS category_name, b.cover_key, b.available_copies,
	b.total_copies, b.status, b.created_at, b.updated_at`

// BookRepository handles persistence for books and their inventory columns.
type BookRepository struct {
	db *sqlx.DB
}

func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

func (r *BookRepository) List(ctx context.Context, filter types.BookFilter, offset, limit int) ([]types.Book, int, error) {
	offset, limit = normalizePage(offset, limit)

	var where []string
	var args []any
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(b.title ILIKE $%d OR b.author ILIKE $%d OR b.isbn ILIKE $%d)", n, n, n))
	}
	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("b.category_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("b.status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := get(ctx, r.db, &total, `SELECT COUNT(1) FROM books b`+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, offset, limit)
	query := fmt.Sprintf(`SELECT %s FROM books b LEFT JOIN categories c ON c.id = b.category_id%s
		ORDER BY b.title, b.id OFFSET $%d LIMIT $%d`, bookColumns, clause, len(args)-1, len(args))
	books := make([]types.Book, 0, limit)
	if err := selectAll(ctx, r.db, &books, query, args...); err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

func (r *BookRepository) Get(ctx context.Context, id int) (types.Book, error) {
	var book types.Book
	err := get(ctx, r.db, &book,
		`SELECT `+bookColumns+` FROM books b LEFT JOIN categories c ON c.id = b.category_id WHERE b.id = $1`, id)
	return book, err
}

// Lock takes a row lock on the book so inventory recomputes serialize.
func (r *BookRepository) Lock(ctx context.Context, id int) error {
	var locked int
	return get(ctx, r.db, &locked, `SELECT id FROM books WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	const query = `
		INSERT INTO books (title, author, isbn, publisher, published_year, description, category_id,
			available_copies, total_copies, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	err := get(ctx, r.db, &book.ID, query,
		book.Title,
		book.Author,
		book.ISBN,
		book.Publisher,
		book.PublishedYear,
		book.Description,
		book.CategoryID,
		book.AvailableCopies,
		book.TotalCopies,
		book.Status,
		book.CreatedAt,
		book.UpdatedAt,
	)
	if err != nil {
		return types.Book{}, err
	}
	return book, nil
}

// Update writes catalog metadata. Inventory columns are owned by UpdateInventory.
func (r *BookRepository) Update(ctx context.Context, book types.Book) (types.Book, error) {
	book.UpdatedAt = time.Now()

	const query = `
		UPDATE books
		SET title = $1,
			author = $2,
			isbn = $3,
			publisher = $4,
			published_year = $5,
			description = $6,
			category_id = $7,
			updated_at = $8
		WHERE id = $9`
	err := execOne(ctx, r.db, query,
		book.Title,
		book.Author,
		book.ISBN,
		book.Publisher,
		book.PublishedYear,
		book.Description,
		book.CategoryID,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		return types.Book{}, err
	}
	return book, nil
}

// UpdateInventory stores the derived availability columns.
func (r *BookRepository) UpdateInventory(ctx context.Context, id, available, total int, status types.BookStatus) error {
	return execOne(ctx, r.db,
		`UPDATE books SET available_copies = $1, total_copies = $2, status = $3, updated_at = $4 WHERE id = $5`,
		available, total, status, time.Now(), id)
}

func (r *BookRepository) SetCoverKey(ctx context.Context, id int, key *string) error {
	return execOne(ctx, r.db, `UPDATE books SET cover_key = $1, updated_at = $2 WHERE id = $3`, key, time.Now(), id)
}

func (r *BookRepository) Delete(ctx context.Context, id int) error {
	return execOne(ctx, r.db, `DELETE FROM books WHERE id = $1`, id)
}

// CountLoans reports how many loans reference the book, open or not.
func (r *BookRepository) CountLoans(ctx context.Context, id int) (total int, open int, err error) {
	var counts struct {
		Total int `db:"total"`
		Open  int `db:"open"`
	}
	err = get(ctx, r.db, &counts, `
		SELECT COUNT(1) AS total,
		       COUNT(1) FILTER (WHERE status IN ('ACTIVE', 'RETURN_PENDING')) AS open
		FROM loans WHERE book_id = $1`, id)
	return counts.Total, counts.Open, err
}

// CopyRepository handles persistence for physical copies.
type CopyRepository struct {
	db *sqlx.DB
}

func NewCopyRepository(db *sqlx.DB) *CopyRepository {
	return &CopyRepository{db: db}
}

const copyColumns = `id, book_id, barcode, status, created_at, updated_at`

func (r *CopyRepository) ListByBook(ctx context.Context, bookID int) ([]types.BookCopy, error) {
	copies := []types.BookCopy{}
	err := selectAll(ctx, r.db, &copies, `SELECT `+copyColumns+` FROM book_copies WHERE book_id = $1 ORDER BY id`, bookID)
	return copies, err
}

func (r *CopyRepository) Get(ctx context.Context, id int) (types.BookCopy, error) {
	var c types.BookCopy
	err := get(ctx, r.db, &c, `SELECT `+copyColumns+` FROM book_copies WHERE id = $1`, id)
	return c, err
}

func (r *CopyRepository) Create(ctx context.Context, c types.BookCopy) (types.BookCopy, error) {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	err := get(ctx, r.db, &c.ID,
		`INSERT INTO book_copies (book_id, barcode, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.BookID, c.Barcode, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return types.BookCopy{}, err
	}
	return c, nil
}

// ClaimAvailable locks one AVAILABLE copy of the book. Copies locked by a
// concurrent transaction are skipped. Returns ErrNotFound when none is free.
func (r *CopyRepository) ClaimAvailable(ctx context.Context, bookID int) (types.BookCopy, error) {
	var c types.BookCopy
	err := get(ctx, r.db, &c, `
		SELECT `+copyColumns+` FROM book_copies
		WHERE book_id = $1 AND status = $2
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, bookID, types.CopyAvailable)
	return c, err
}

func (r *CopyRepository) SetStatus(ctx context.Context, id int, status types.CopyStatus) error {
	return execOne(ctx, r.db, `UPDATE book_copies SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id)
}

// Inventory counts the copies of a book by status.
func (r *CopyRepository) Inventory(ctx context.Context, bookID int) (types.Inventory, error) {
	var rows []struct {
		Status types.CopyStatus `db:"status"`
		Count  int              `db:"count"`
	}
	if err := selectAll(ctx, r.db, &rows,
		`SELECT status, COUNT(1) AS count FROM book_copies WHERE book_id = $1 GROUP BY status`, bookID); err != nil {
		return types.Inventory{}, err
	}
	var inv types.Inventory
	for _, row := range rows {
		switch row.Status {
		case types.CopyAvailable:
			inv.Available = row.Count
		case types.CopyBorrowed:
			inv.Borrowed = row.Count
		case types.CopyLost:
			inv.Lost = row.Count
		case types.CopyDamaged:
			inv.Damaged = row.Count
		}
	}
	return inv, nil
}

// ReservationRepository exposes the reservation state the availability
// recompute depends on.
type ReservationRepository struct {
	db *sqlx.DB
}

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) CountByStatus(ctx context.Context, bookID int, status types.ReservationStatus) (int, error) {
	var count int
	err := get(ctx, r.db, &count, `SELECT COUNT(1) FROM reservations WHERE book_id = $1 AND status = $2`, bookID, status)
	return count, err
}

// FavoriteRepository handles (user, book) bookmarks.
type FavoriteRepository struct {
	db *sqlx.DB
}

func NewFavoriteRepository(db *sqlx.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

// Add inserts the pair and returns ErrConflict when it already exists.
func (r *FavoriteRepository) Add(ctx context.Context, userID, bookID int) (types.Favorite, error) {
	fav := types.Favorite{UserID: userID, BookID: bookID, CreatedAt: time.Now()}
	err := get(ctx, r.db, &fav.ID,
		`INSERT INTO favorites (user_id, book_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
		fav.UserID, fav.BookID, fav.CreatedAt)
	if err != nil {
		return types.Favorite{}, err
	}
	return fav, nil
}

func (r *FavoriteRepository) Remove(ctx context.Context, userID, bookID int) error {
	return execOne(ctx, r.db, `DELETE FROM favorites WHERE user_id = $1 AND book_id = $2`, userID, bookID)
}

func (r *FavoriteRepository) ListByUser(ctx context.Context, userID int) ([]types.FavoriteBook, error) {
	favorites := []types.FavoriteBook{}
	err := selectAll(ctx, r.db, &favorites, `
		SELECT f.id, f.user_id, f.book_id, f.created_at,
		       b.id AS "book.id", b.title AS "book.title", b.author AS "book.author",
		       b.isbn AS "book.isbn", b.cover_key AS "book.cover_key",
		       b.available_copies AS "book.available_copies", b.total_copies AS "book.total_copies",
		       b.status AS "book.status", b.created_at AS "book.created_at", b.updated_at AS "book.updated_at"
		FROM favorites f
		JOIN books b ON b.id = f.book_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC`, userID)
	return favorites, err
}
