package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed    = errors.New("password hashing failed")
	ErrPasswordTooShort = errors.New("password too short")
	ErrMismatch         = errors.New("password mismatch")
)

// PasswordHasher provides interface for password operations
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
	// Burn spends one comparison against a throwaway hash so that unknown
	// usernames cost the same as wrong passwords.
	Burn(password string)
}

type bcryptHasher struct {
	cost   int
	minLen int
	dummy  []byte
}

// NewBcryptHasher creates a new password hasher using bcrypt
func NewBcryptHasher(cost, minLen int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("qrcare-dummy-password"), cost)
	return &bcryptHasher{cost: cost, minLen: minLen, dummy: dummy}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	if len(password) < b.minLen {
		return "", fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, b.minLen)
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hashedPassword, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return ErrMismatch
	}
	return nil
}

func (b *bcryptHasher) Burn(password string) {
	_ = bcrypt.CompareHashAndPassword(b.dummy, []byte(password))
}
