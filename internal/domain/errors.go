package domain

import "errors"

var (
	// ErrInvalidThreshold covers non-numeric prices and unknown orientation tokens.
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrInvalidEmail is returned by registration for malformed addresses.
	ErrInvalidEmail = errors.New("invalid email address")

	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrActivationNotFound = errors.New("activation code not found")
	ErrUnauthorized       = errors.New("secret does not match")
)
