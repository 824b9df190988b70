package session

import "errors"

// Sentinel errors for session resolution.
var (
	// ErrInvalidPrefix indicates the header value lacks the Bearer prefix.
	ErrInvalidPrefix = errors.New("invalid authorization prefix")

	// ErrEmptyToken indicates the header carried a prefix and no token.
	ErrEmptyToken = errors.New("token is empty")

	// ErrTokenInvalid indicates the token failed verification.
	ErrTokenInvalid = errors.New("token is invalid")

	// ErrKeySetUnavailable indicates the JWKS file could not be loaded.
	ErrKeySetUnavailable = errors.New("key set unavailable")
)
