package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken indicates the token failed validation. Signature mismatch,
// malformed structure and expiry all collapse into this one error so the
// caller cannot tell which of the three occurred.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// AuthenticationError reports that the caller's identity could not be
// established: bad credentials, an invalid or expired token, or a missing
// subject claim. The HTTP boundary maps it to 401.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return e.Message
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Unauthenticated builds an AuthenticationError with the given message.
func Unauthenticated(message string) *AuthenticationError {
	return &AuthenticationError{Message: message}
}

// AuthorizationError reports that an authenticated caller lacks the required
// permission. It carries the caller's role list for diagnostics. The HTTP
// boundary maps it to 403.
type AuthorizationError struct {
	Required Permission
	Roles    []string
}

func (e *AuthorizationError) Error() string {
	if len(e.Roles) == 0 {
		return fmt.Sprintf("permission %s required", e.Required)
	}
	return fmt.Sprintf("permission %s required, roles [%s] do not grant it",
		e.Required, strings.Join(e.Roles, " "))
}

// HashingError reports a fatal infrastructure failure during password
// hashing, such as entropy exhaustion. It is never retried.
type HashingError struct {
	Err error
}

func (e *HashingError) Error() string { return "password hashing failed: " + e.Err.Error() }

func (e *HashingError) Unwrap() error { return e.Err }
