package errors

import "errors"

var (
	ErrNotFound = errors.New("waitlist entry not found")

	ErrInvalidID = errors.New("invalid waitlist entry ID format")

	ErrDuplicateEntry = errors.New("user already has an active waitlist entry for this range")

	ErrNotNotified = errors.New("waitlist entry has not been offered a hold")

	ErrHoldExpired = errors.New("waitlist hold has expired")
)
