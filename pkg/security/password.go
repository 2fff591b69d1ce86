// Package security holds credential primitives shared by the account and auth services.
package security

import (
	"errors"
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = errors.New("password cannot be empty")

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	// Hash returns a self-describing salted hash; the salt is fresh on every call.
	Hash(pw string) (string, error)
	// Verify reports whether pw matches hash. Malformed or foreign hashes yield false.
	Verify(pw, hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

// NewBcryptHasher returns a hasher with the given cost, falling back to
// bcrypt.DefaultCost when cost is outside bcrypt's accepted range.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{Cost: cost}
}

// HasherFromEnv builds a BcryptHasher using BCRYPT_COST.
func HasherFromEnv() BcryptHasher {
	cost, _ := strconv.Atoi(os.Getenv("BCRYPT_COST"))
	return NewBcryptHasher(cost)
}

func (b BcryptHasher) Hash(pw string) (string, error) {
	if pw == "" {
		return "", ErrEmptyPassword
	}
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
