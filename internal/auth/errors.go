package auth

import "errors"

var (
	// ErrTokenInvalid is returned for tokens that fail signature or claim checks.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned for well-signed tokens past their expiry.
	ErrTokenExpired = errors.New("token has expired")

	// ErrMissingSecret is returned when signing without a secret.
	ErrMissingSecret = errors.New("signing secret is empty")

	// ErrInvalidRole is returned when issuing a token for an unknown role.
	ErrInvalidRole = errors.New("unknown role")
)
