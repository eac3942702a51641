package auth

import (
	"bytes"
	"errors"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt error: %v", err)
	}
	if len(salt) != SaltSize {
		t.Fatalf("len(salt) = %d, want %d", len(salt), SaltSize)
	}

	hash, err := HashPassword("correct horse", salt)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if !CheckPassword("correct horse", salt, hash) {
		t.Fatalf("CheckPassword rejected the right password")
	}
	if CheckPassword("wrong horse", salt, hash) {
		t.Fatalf("CheckPassword accepted the wrong password")
	}

	other, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt error: %v", err)
	}
	if bytes.Equal(salt, other) {
		t.Fatalf("two salts should differ")
	}
	if CheckPassword("correct horse", other, hash) {
		t.Fatalf("CheckPassword accepted a different salt")
	}
}

func TestHashPasswordRejectsEmptyInput(t *testing.T) {
	if _, err := HashPassword("", []byte("salt")); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("err = %v, want %v", err, ErrEmptyPassword)
	}
	if _, err := HashPassword("pw", nil); err == nil {
		t.Fatalf("expected error for missing salt")
	}
	if CheckPassword("", []byte("salt"), []byte("hash")) {
		t.Fatalf("empty password must not match")
	}
}
