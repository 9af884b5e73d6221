package errors

import "errors"

var (
	ErrPolicyOverlap = errors.New("an active deposit policy already covers part of this room bracket")

	ErrNotFound = errors.New("catalog item not found")

	ErrInvalidID = errors.New("invalid catalog item ID format")
)
