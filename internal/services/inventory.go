package services

import (
	"context"

	"github.com/unilib/apiserver/types"
)

type inventoryBooks interface {
	Get(ctx context.Context, id int) (types.Book, error)
	UpdateInventory(ctx context.Context, id, available, total int, status types.BookStatus) error
}

type inventoryCopies interface {
	Inventory(ctx context.Context, bookID int) (types.Inventory, error)
}

type ReservationCounter interface {
	CountByStatus(ctx context.Context, bookID int, status types.ReservationStatus) (int, error)
}

// DeriveStatus maps copy and reservation state to a book status.
// A copy held for pickup wins over plain availability.
func DeriveStatus(inv types.Inventory) types.BookStatus {
	switch {
	case inv.AwaitingPickup > 0:
		return types.BookReserved
	case inv.Available > 0:
		return types.BookAvailable
	default:
		return types.BookBorrowed
	}
}

// InventoryService keeps a book's stored availability in line with its copies.
type InventoryService struct {
	books        inventoryBooks
	copies       inventoryCopies
	reservations ReservationCounter
}

func NewInventoryService(books inventoryBooks, copies inventoryCopies, reservations ReservationCounter) *InventoryService {
	return &InventoryService{books: books, copies: copies, reservations: reservations}
}

// Refresh recomputes status and copy counts for bookID and writes them only
// when they changed. It reports whether a write happened.
func (s *InventoryService) Refresh(ctx context.Context, bookID int) (types.Book, bool, error) {
	book, err := s.books.Get(ctx, bookID)
	if err != nil {
		return types.Book{}, false, missing(err, "book")
	}

	inv, err := s.copies.Inventory(ctx, bookID)
	if err != nil {
		return types.Book{}, false, err
	}
	inv.AwaitingPickup, err = s.reservations.CountByStatus(ctx, bookID, types.ReservationAwaitingPickup)
	if err != nil {
		return types.Book{}, false, err
	}

	status := DeriveStatus(inv)
	if book.Status == status && book.AvailableCopies == inv.Available && book.TotalCopies == inv.Total() {
		return book, false, nil
	}

	if err := s.books.UpdateInventory(ctx, bookID, inv.Available, inv.Total(), status); err != nil {
		return types.Book{}, false, err
	}
	book.Status = status
	book.AvailableCopies = inv.Available
	book.TotalCopies = inv.Total()
	return book, true, nil
}
