package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor applied to new password hashes.
var BcryptCost = 12

// decoyHash is a throwaway bcrypt digest of a value nobody knows. Credential
// paths that cannot perform a real comparison compare against this instead,
// so the unknown-identity and wrong-password branches cost the same.
var decoyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	return string(h), err
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

// CompareDecoy burns the same bcrypt work as a real comparison and always
// reports a mismatch. Every credential-verification failure branch that skips
// the real comparison must call this to keep response timing uniform.
func CompareDecoy(password string) error {
	_ = bcrypt.CompareHashAndPassword(decoyHash, []byte(password))
	return ErrMismatchedHashAndPassword
}

// RandomPasswordHash is a temporary password
func RandomPasswordHash() string {
	pwd := uuid.New()

	h, err := HashPassword(pwd.String())
	if err != nil {
		return RandomPasswordHash()
	}

	return h
}
