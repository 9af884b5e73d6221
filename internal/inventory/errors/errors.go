package errors

import "errors"

var (
	ErrInvalidRange = errors.New("end date must be after start date")

	ErrMissingDays = errors.New("no capacity configured for part of the requested range")

	ErrCapacityShort = errors.New("insufficient rooms available for requested range")

	ErrReleaseUnderflow = errors.New("release would drop reserved rooms below zero")

	ErrLockHeld = errors.New("ledger lock already held")
)
