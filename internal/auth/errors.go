package auth

import "errors"

// Authentication errors.
var (
	// ErrInvalidCredentials is returned when a login attempt fails.
	// Username and password failures are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is returned when a token fails signature, expiry,
	// or claim validation.
	ErrTokenInvalid = errors.New("auth: invalid token")
)
