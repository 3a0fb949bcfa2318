package service

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordLength is returned for passwords outside the configured bounds.
var ErrPasswordLength = errors.New("password length out of bounds")

// PasswordHasher hashes and verifies secrets with bcrypt. Every hash uses a
// fresh random salt, so hashing the same secret twice yields different values.
type PasswordHasher struct {
	cost      int
	minLength int
	maxLength int
}

// NewPasswordHasher builds a hasher. Out-of-range costs fall back to
// bcrypt.DefaultCost.
func NewPasswordHasher(cost, minLength, maxLength int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost, minLength: minLength, maxLength: maxLength}
}

// Hash returns a salted hash of secret.
func (h *PasswordHasher) Hash(secret string) (string, error) {
	if err := h.CheckLength(secret); err != nil {
		return "", err
	}
	return h.hash(secret)
}

func (h *PasswordHasher) hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether secret matches hash. A malformed hash never matches.
func (h *PasswordHasher) Verify(secret, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// CheckLength enforces the configured password bounds.
func (h *PasswordHasher) CheckLength(secret string) error {
	n := len(secret)
	if (h.minLength > 0 && n < h.minLength) || (h.maxLength > 0 && n > h.maxLength) {
		return fmt.Errorf("%w: must be between %d and %d characters", ErrPasswordLength, h.minLength, h.maxLength)
	}
	return nil
}
