package types

import (
	"strings"
	"time"
)

// Role is the authorization level of an account.
type Role string

const (
	RoleUser      Role = "USER"
	RoleLibrarian Role = "LIBRARIAN"
	RoleManager   Role = "MANAGER"
)

// StaffRoles are the roles allowed to operate the library desk.
var StaffRoles = []Role{RoleLibrarian, RoleManager}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleLibrarian, RoleManager:
		return true
	}
	return false
}

// IsStaff reports whether r is a librarian or a manager.
func (r Role) IsStaff() bool {
	return r == RoleLibrarian || r == RoleManager
}

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserSuspended UserStatus = "SUSPENDED"
)

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the unique login of the user.
	Email string `json:"email" db:"email"`

	// FirstName and LastName are kept in sync with the HR record source.
	FirstName string `json:"firstName" db:"first_name"`
	LastName  string `json:"lastName" db:"last_name"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// Status controls whether the user may authenticate.
	Status UserStatus `json:"status" db:"status"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// FullName joins the first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserFilter narrows user listings.
type UserFilter struct {
	Search string
	Role   Role
	Status UserStatus
}

// ImportRecord is one row of a spreadsheet or HR feed.
type ImportRecord struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ImportResult aggregates the outcome of a bulk import.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}
