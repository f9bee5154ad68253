package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("resource already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	// Request-defense errors
	ErrCSRFInvalid       = errors.New("security validation failed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
