package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrDuplicateUser = errors.New("username already exists")
	ErrNoTokens      = errors.New("no tokens left")
	ErrInvalidPatch  = errors.New("invalid account patch")

	// ErrStorageUnavailable wraps every infrastructure failure so callers can
	// tell a broken store apart from a missing account.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

func storageError(action string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", action, ErrStorageUnavailable, err)
}
