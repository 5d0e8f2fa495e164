package auth

import "errors"

var (
	// ErrMissingUserID is returned when no identity can be extracted from the request
	ErrMissingUserID = errors.New("user identification required")

	// ErrInvalidToken is returned when a token fails verification
	ErrInvalidToken = errors.New("invalid token")
)
