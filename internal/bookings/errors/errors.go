package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrStatusConflict = errors.New("booking is not in a state that allows this transition")

	ErrAlreadyFinalized = errors.New("booking is already cancelled or completed")
)
