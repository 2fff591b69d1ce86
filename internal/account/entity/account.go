package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shekshuev/athena-backend/pkg/validator"
)

func init() {
	validator.RegisterRule("account_status", "must be active or blocked", func(s string) bool {
		st := Status(s)
		return st.Valid() && st != StatusCreated
	})
}

// Status is the lifecycle state of an account.
type Status string

const (
	StatusCreated Status = "created"
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusActive, StatusBlocked:
		return true
	}
	return false
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Account represents a row in the `accounts` table.
// PasswordHash is nil for accounts that authenticate through an external provider.
type Account struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash *string    `db:"password_hash" json:"-"`
	IsSuperadmin bool       `db:"is_superadmin" json:"is_superadmin"`
	Status       Status     `db:"status" json:"status"`
	ConfirmedAt  *time.Time `db:"confirmed_at" json:"confirmed_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// HasPassword reports whether the account can log in with a password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Email        *string    `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Status       *Status    `json:"status,omitempty" validate:"omitempty,account_status"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	IsSuperadmin *bool      `json:"is_superadmin,omitempty"`
}

// IsEmpty reports whether the patch sets no field at all.
func (p Patch) IsEmpty() bool {
	return p.Email == nil && p.Status == nil && p.ConfirmedAt == nil && p.IsSuperadmin == nil
}

// Privileged reports whether the patch touches fields only a superadmin may set.
func (p Patch) Privileged() bool {
	return p.Status != nil || p.ConfirmedAt != nil || p.IsSuperadmin != nil
}
