package memory

import "errors"

// Sentinel errors returned by repository operations.
var (
	// ErrDuplicateKey is returned by Put when the record id already exists.
	ErrDuplicateKey = errors.New("record id already exists")

	// ErrValidation is returned when a record is missing required fields or
	// a query parameter is out of range.
	ErrValidation = errors.New("invalid memory record")

	// ErrForbidden is returned when the acting agent lacks the permission an
	// operation requires.
	ErrForbidden = errors.New("permission denied")

	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("record not found")
)
