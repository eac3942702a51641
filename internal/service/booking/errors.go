package booking

import (
	"errors"

	"vaxsched/internal/store"
)

var (
	ErrNoCaregiverAvailable = errors.New("no caregiver available")
	ErrForbidden            = errors.New("forbidden")
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// StorageError wraps a persistence failure that is not one of the domain
// outcomes. The unit it happened in has been rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": storage failure: " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// classify leaves domain errors untouched and wraps everything else.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInsufficientSupply),
		errors.Is(err, ErrNoCaregiverAvailable),
		errors.Is(err, ErrForbidden):
		return err
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return err
	}
	var sErr *StorageError
	if errors.As(err, &sErr) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
