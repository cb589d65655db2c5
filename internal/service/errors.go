package service

import "errors"

// Error taxonomy for the admission and lifecycle core. Every failure a
// caller can see wraps exactly one of these, so transports can map them
// without string matching and "room full" is never conflated with "wrong
// password".
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("session not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrCapacityExceeded = errors.New("session is full")
	ErrInvalidState     = errors.New("invalid session state")
	ErrInternal         = errors.New("internal error")
)
