package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/unilib/apiserver/internal/log"
	"github.com/unilib/apiserver/internal/storage"
	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
)

// BookRepository defines persistence operations for books.
type BookRepository interface {
	List(ctx context.Context, filter types.BookFilter, offset, limit int) ([]types.Book, int, error)
	Get(ctx context.Context, id int) (types.Book, error)
	Lock(ctx context.Context, id int) error
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	UpdateInventory(ctx context.Context, id, available, total int, status types.BookStatus) error
	SetCoverKey(ctx context.Context, id int, key *string) error
	Delete(ctx context.Context, id int) error
	CountLoans(ctx context.Context, id int) (total int, open int, err error)
}

// CopyRepository defines persistence operations for book copies.
type CopyRepository interface {
	ListByBook(ctx context.Context, bookID int) ([]types.BookCopy, error)
	Get(ctx context.Context, id int) (types.BookCopy, error)
	Create(ctx context.Context, c types.BookCopy) (types.BookCopy, error)
	SetStatus(ctx context.Context, id int, status types.CopyStatus) error
	Inventory(ctx context.Context, bookID int) (types.Inventory, error)
}

type categoryLookup interface {
	Get(ctx context.Context, id int) (types.Category, error)
}

const maxCopiesPerRequest = 100

type BookService struct {
	tx         TxRunner
	books      BookRepository
	copies     CopyRepository
	categories categoryLookup
	inventory  *InventoryService
	covers     *storage.Covers
	logger     zerolog.Logger
}

func NewBookService(tx TxRunner, books BookRepository, copies CopyRepository, categories categoryLookup, inventory *InventoryService, covers *storage.Covers) *BookService {
	return &BookService{
		tx:         tx,
		books:      books,
		copies:     copies,
		categories: categories,
		inventory:  inventory,
		covers:     covers,
		logger:     log.WithComponent("books"),
	}
}

func (s *BookService) List(ctx context.Context, filter types.BookFilter, page, limit int) ([]types.Book, types.PageMeta, error) {
	limit = clampLimit(limit, 20, 100)
	books, total, err := s.books.List(ctx, filter, pageOffset(page, limit), limit)
	if err != nil {
		return nil, types.PageMeta{}, err
	}
	return books, types.NewPageMeta(total, max(page, 1), limit), nil
}

func (s *BookService) Get(ctx context.Context, id int) (types.BookDetail, error) {
	book, err := s.books.Get(ctx, id)
	if err != nil {
		return types.BookDetail{}, missing(err, "book")
	}
	copies, err := s.copies.ListByBook(ctx, id)
	if err != nil {
		return types.BookDetail{}, err
	}
	return types.BookDetail{Book: book, Copies: copies}, nil
}

// Create catalogs a book with the given number of AVAILABLE copies.
func (s *BookService) Create(ctx context.Context, book types.Book, copies int) (types.BookDetail, error) {
	if copies < 0 || copies > maxCopiesPerRequest {
		return types.BookDetail{}, BadRequest("copies must be between 0 and %d", maxCopiesPerRequest)
	}

	var id int
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkCategory(ctx, book.CategoryID); err != nil {
			return err
		}
		book.Status = types.BookBorrowed
		book.AvailableCopies = 0
		book.TotalCopies = 0
		created, err := s.books.Create(ctx, book)
		if err != nil {
			return err
		}
		id = created.ID
		if err := s.addCopies(ctx, id, 0, copies); err != nil {
			return err
		}
		_, _, err = s.inventory.Refresh(ctx, id)
		return err
	})
	if err != nil {
		return types.BookDetail{}, err
	}
	return s.Get(ctx, id)
}

// Update changes catalog metadata only; availability stays derived.
func (s *BookService) Update(ctx context.Context, book types.Book) (types.Book, error) {
	if err := s.checkCategory(ctx, book.CategoryID); err != nil {
		return types.Book{}, err
	}
	if _, err := s.books.Update(ctx, book); err != nil {
		return types.Book{}, missing(err, "book")
	}
	updated, err := s.books.Get(ctx, book.ID)
	return updated, missing(err, "book")
}

// Delete removes a book that never circulated. Loan history keeps a book in
// the catalog.
func (s *BookService) Delete(ctx context.Context, id int) error {
	var coverKey *string
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.books.Lock(ctx, id); err != nil {
			return missing(err, "book")
		}
		book, err := s.books.Get(ctx, id)
		if err != nil {
			return missing(err, "book")
		}
		total, open, err := s.books.CountLoans(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return BadRequest("book has open loans")
		}
		if total > 0 {
			return Conflict("book has loan history and cannot be deleted")
		}
		coverKey = book.CoverKey
		return s.books.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	if coverKey != nil {
		s.removeCover(ctx, *coverKey)
	}
	return nil
}

func (s *BookService) AddCopies(ctx context.Context, bookID, count int) (types.BookDetail, error) {
	if count < 1 || count > maxCopiesPerRequest {
		return types.BookDetail{}, BadRequest("count must be between 1 and %d", maxCopiesPerRequest)
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.books.Lock(ctx, bookID); err != nil {
			return missing(err, "book")
		}
		existing, err := s.copies.ListByBook(ctx, bookID)
		if err != nil {
			return err
		}
		if err := s.addCopies(ctx, bookID, len(existing), count); err != nil {
			return err
		}
		_, _, err = s.inventory.Refresh(ctx, bookID)
		return err
	})
	if err != nil {
		return types.BookDetail{}, err
	}
	return s.Get(ctx, bookID)
}

// SetCopyStatus marks a copy available, lost or damaged. BORROWED is owned by loans.
func (s *BookService) SetCopyStatus(ctx context.Context, bookID, copyID int, status types.CopyStatus) (types.BookCopy, error) {
	switch status {
	case types.CopyAvailable, types.CopyLost, types.CopyDamaged:
	default:
		return types.BookCopy{}, BadRequest("status must be AVAILABLE, LOST or DAMAGED")
	}

	var updated types.BookCopy
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.books.Lock(ctx, bookID); err != nil {
			return missing(err, "book")
		}
		c, err := s.copies.Get(ctx, copyID)
		if err != nil {
			return missing(err, "copy")
		}
		if c.BookID != bookID {
			return NotFound("copy not found")
		}
		if c.Status == types.CopyBorrowed {
			return BadRequest("a borrowed copy changes status when its loan is returned")
		}
		if c.Status == status {
			updated = c
			return nil
		}
		if err := s.copies.SetStatus(ctx, copyID, status); err != nil {
			return err
		}
		c.Status = status
		updated = c
		_, _, err = s.inventory.Refresh(ctx, bookID)
		return err
	})
	return updated, err
}

// UploadCover stores a new cover image and replaces the previous one.
func (s *BookService) UploadCover(ctx context.Context, bookID int, r io.Reader, size int64, contentType string) (types.Book, error) {
	if size > storage.MaxCoverSize {
		return types.Book{}, BadRequest("cover image must be at most %d MB", storage.MaxCoverSize>>20)
	}
	book, err := s.books.Get(ctx, bookID)
	if err != nil {
		return types.Book{}, missing(err, "book")
	}

	key, err := s.covers.Upload(ctx, bookID, r, size, contentType)
	if err != nil {
		return types.Book{}, coverError(err)
	}
	if err := s.books.SetCoverKey(ctx, bookID, &key); err != nil {
		s.removeCover(ctx, key)
		return types.Book{}, missing(err, "book")
	}
	if book.CoverKey != nil {
		s.removeCover(ctx, *book.CoverKey)
	}
	book.CoverKey = &key
	return book, nil
}

// Cover opens the stored cover image. Callers close the body.
func (s *BookService) Cover(ctx context.Context, bookID int) (*storage.Object, error) {
	book, err := s.books.Get(ctx, bookID)
	if err != nil {
		return nil, missing(err, "book")
	}
	if book.CoverKey == nil {
		return nil, NotFound("book has no cover")
	}
	obj, err := s.covers.Open(ctx, *book.CoverKey)
	if err != nil {
		return nil, coverError(err)
	}
	return obj, nil
}

func (s *BookService) checkCategory(ctx context.Context, id *int) error {
	if id == nil {
		return nil
	}
	if _, err := s.categories.Get(ctx, *id); err != nil {
		return missing(err, "category")
	}
	return nil
}

func (s *BookService) addCopies(ctx context.Context, bookID, existing, count int) error {
	for i := 1; i <= count; i++ {
		_, err := s.copies.Create(ctx, types.BookCopy{
			BookID:  bookID,
			Barcode: fmt.Sprintf("BK%06d-%03d", bookID, existing+i),
			Status:  types.CopyAvailable,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// removeCover deletes an object best-effort; orphaned covers only cost storage.
func (s *BookService) removeCover(ctx context.Context, key string) {
	if err := s.covers.Remove(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete cover object")
	}
}

func coverError(err error) error {
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		return BadRequest("cover must be a JPEG, PNG or WebP image")
	case errors.Is(err, storage.ErrObjectNotFound):
		return NotFound("cover not found")
	case errors.Is(err, storage.ErrDisabled):
		return Unavailable("cover storage is not configured")
	}
	return err
}

// FavoriteRepository defines persistence operations for favorites.
type FavoriteRepository interface {
	Add(ctx context.Context, userID, bookID int) (types.Favorite, error)
	Remove(ctx context.Context, userID, bookID int) error
	ListByUser(ctx context.Context, userID int) ([]types.FavoriteBook, error)
}

type FavoriteService struct {
	repo  FavoriteRepository
	books bookLookup
}

func NewFavoriteService(repo FavoriteRepository, books bookLookup) *FavoriteService {
	return &FavoriteService{repo: repo, books: books}
}

func (s *FavoriteService) List(ctx context.Context, userID int) ([]types.FavoriteBook, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Add relies on the (user, book) unique key to detect duplicates.
func (s *FavoriteService) Add(ctx context.Context, userID, bookID int) (types.Favorite, error) {
	if _, err := s.books.Get(ctx, bookID); err != nil {
		return types.Favorite{}, missing(err, "book")
	}
	fav, err := s.repo.Add(ctx, userID, bookID)
	if errors.Is(err, store.ErrConflict) {
		return types.Favorite{}, BadRequest("book is already in your favorites")
	}
	return fav, err
}

func (s *FavoriteService) Remove(ctx context.Context, userID, bookID int) error {
	return missing(s.repo.Remove(ctx, userID, bookID), "favorite")
}
