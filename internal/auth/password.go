package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/argon2"
)

const (
	SaltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

var ErrEmptyPassword = errors.New("password is required")

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	b := make([]byte, SaltSize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func HashPassword(pw string, salt []byte) ([]byte, error) {
	if pw == "" {
		return nil, ErrEmptyPassword
	}
	if len(salt) == 0 {
		return nil, errors.New("salt is required")
	}
	return argon2.IDKey([]byte(pw), salt, argonTime, argonMemory, argonThreads, argonKeyLen), nil
}

// CheckPassword compares in constant time.
func CheckPassword(pw string, salt, hash []byte) bool {
	if pw == "" || len(salt) == 0 || len(hash) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(pw), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, hash) == 1
}
