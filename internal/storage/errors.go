package storage

import "errors"

var (
	// ErrNotFound is returned for an unknown call id, job run or artifact key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned by Insert when the call id already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned for a nil record, one missing its key, or a
	// token call that fails domain validation.
	ErrInvalidInput = errors.New("invalid input")
)
