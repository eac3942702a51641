package store

import "errors"

var (
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientSupply = errors.New("insufficient supply")
)
