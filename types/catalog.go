package types

import "time"

// Category groups books in the catalog.
type Category struct {
	ID          int       `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// BookStatus is the aggregate availability of a book. It is derived from
// copy and reservation state and is only written by the recompute routine.
type BookStatus string

const (
	BookAvailable BookStatus = "AVAILABLE"
	BookBorrowed  BookStatus = "BORROWED"
	BookReserved  BookStatus = "RESERVED"
)

// Book is a cataloged title.
type Book struct {
	ID              int        `json:"id" db:"id"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	ISBN            string     `json:"isbn" db:"isbn"`
	Publisher       string     `json:"publisher" db:"publisher"`
	PublishedYear   *int       `json:"publishedYear,omitempty" db:"published_year"`
	Description     string     `json:"description" db:"description"`
	CategoryID      *int       `json:"categoryId,omitempty" db:"category_id"`
	CategoryName    *string    `json:"categoryName,omitempty" db:"category_name"`
	CoverKey        *string    `json:"coverKey,omitempty" db:"cover_key"`
	AvailableCopies int        `json:"availableCopies" db:"available_copies"`
	TotalCopies     int        `json:"totalCopies" db:"total_copies"`
	Status          BookStatus `json:"status" db:"status"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// BookFilter narrows book listings.
type BookFilter struct {
	Search     string
	CategoryID int
	Status     BookStatus
}

// CopyStatus is the state of one physical copy.
type CopyStatus string

const (
	CopyAvailable CopyStatus = "AVAILABLE"
	CopyBorrowed  CopyStatus = "BORROWED"
	CopyLost      CopyStatus = "LOST"
	CopyDamaged   CopyStatus = "DAMAGED"
)

// BookCopy is one physical unit of a Book.
type BookCopy struct {
	ID        int        `json:"id" db:"id"`
	BookID    int        `json:"bookId" db:"book_id"`
	Barcode   string     `json:"barcode" db:"barcode"`
	Status    CopyStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// Inventory is the copy and reservation state a book status is derived from.
type Inventory struct {
	Available      int
	Borrowed       int
	Lost           int
	Damaged        int
	AwaitingPickup int
}

// Total counts copies that still belong to the circulating collection.
func (i Inventory) Total() int {
	return i.Available + i.Borrowed + i.Damaged
}

// BookDetail is a book together with its copies.
type BookDetail struct {
	Book
	Copies []BookCopy `json:"copies"`
}

// ReservationStatus is kept for the reservation schema; the feature has no routes.
type ReservationStatus string

const (
	ReservationActive         ReservationStatus = "ACTIVE"
	ReservationAwaitingPickup ReservationStatus = "AWAITING_PICKUP"
	ReservationFulfilled      ReservationStatus = "FULFILLED"
	ReservationCancelled      ReservationStatus = "CANCELLED"
)

// Favorite is a unique (user, book) bookmark.
type Favorite struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"userId" db:"user_id"`
	BookID    int       `json:"bookId" db:"book_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// FavoriteBook is a favorite joined with its book.
type FavoriteBook struct {
	Favorite
	Book Book `json:"book" db:"book"`
}
