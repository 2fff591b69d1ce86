// Package entity defines per-account profile records: one keyed value per
// account and key.
package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/shekshuev/athena-backend/pkg/validator"
)

func init() {
	validator.RegisterRule("profile_key", "must be one of: first_name, last_name, date_of_birth", func(s string) bool {
		return Key(s).Valid()
	})
	validator.RegisterRule("profile_source", "must be one of: user, system, admin, import, sync", func(s string) bool {
		return Source(s).Valid()
	})
}

// Key names a profile attribute.
type Key string

const (
	KeyFirstName   Key = "first_name"
	KeyLastName    Key = "last_name"
	KeyDateOfBirth Key = "date_of_birth"
)

func (k Key) Valid() bool {
	switch k {
	case KeyFirstName, KeyLastName, KeyDateOfBirth:
		return true
	}
	return false
}

// Source records who wrote a value.
type Source string

const (
	SourceUser   Source = "user"
	SourceSystem Source = "system"
	SourceAdmin  Source = "admin"
	SourceImport Source = "import"
	SourceSync   Source = "sync"
)

func (s Source) Valid() bool {
	switch s {
	case SourceUser, SourceSystem, SourceAdmin, SourceImport, SourceSync:
		return true
	}
	return false
}

// Record is a row in the `profiles` table. (AccountID, Key) is unique.
type Record struct {
	ID        uuid.UUID `db:"id" json:"id"`
	AccountID uuid.UUID `db:"account_id" json:"account_id"`
	Key       Key       `db:"key" json:"key"`
	Value     *string   `db:"value" json:"value"`
	Source    Source    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewRecord is the create payload. The account comes from the request path.
type NewRecord struct {
	Key    Key     `json:"key" validate:"required,profile_key"`
	Value  *string `json:"value,omitempty" validate:"omitempty,max=10000"`
	Source Source  `json:"source,omitempty" validate:"omitempty,profile_source"`
}

// Patch is a partial update of value and source. Key and account are fixed.
type Patch struct {
	Value  *string `json:"value,omitempty" validate:"omitempty,max=10000"`
	Source *Source `json:"source,omitempty" validate:"omitempty,profile_source"`
}

func (p Patch) IsEmpty() bool {
	return p.Value == nil && p.Source == nil
}

// Filter narrows a list query. Nil fields match everything.
type Filter struct {
	AccountID *uuid.UUID
	Source    *Source
	Limit     int
	Offset    int
}
