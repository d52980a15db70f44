package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	goerrors "github.com/goliatone/go-errors"
)

// BcryptHasher hashes passwords with bcrypt at a fixed cost
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or the package
// default when cost is outside bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return &BcryptHasher{cost: cost}
}

// HashPassword will generate a password hash
func (b *BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (b *BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}

// Verify reports whether password matches hash
func (b *BcryptHasher) Verify(password, hash string) bool {
	return ComparePasswordAndHash(password, hash) == nil
}

// HashPassword hashes with the package default cost
func HashPassword(password string) (string, error) {
	return NewBcryptHasher(passwordHashCost()).HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// fallbackPasswordHash is a well formed cost 10 bcrypt hash that no
// password is known to match
const fallbackPasswordHash = "$2a$10$XajjQvNhvvRt5GSeFk1xFenRwEHKsFZCJ1zGcJ0FNaFwEaDPjzQNl"

const randomHashAttempts = 3

// RandomPasswordHash hashes a random password. It is used to spend a
// comparison when a login names an unknown email. When hasher keeps
// failing a fixed bcrypt hash is returned.
func RandomPasswordHash(hasher PasswordAuthenticator) string {
	for i := 0; i < randomHashAttempts; i++ {
		if h, err := hasher.HashPassword(uuid.NewString()); err == nil && h != "" {
			return h
		}
	}
	return fallbackPasswordHash
}
