package identity

import (
	"errors"
	"strings"
)

// Error codes attached to AuthError values.
const (
	ErrCodeMissingField = "missing_field"
	ErrCodeInvalidEmail = "invalid_email"
	ErrCodeInvalidCreds = "invalid_credentials"
	ErrCodeEmailExists  = "email_exists"
	ErrCodeWeakPassword = "weak_password"
)

// Sentinel errors returned by Store implementations.
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrDuplicateExternalLogin = errors.New("external login already linked")
)

// AuthError is a user-facing authentication or validation error, optionally
// tied to a single form field.
type AuthError struct {
	Code    string
	Message string
	Field   string
}

func (e *AuthError) Error() string { return e.Message }

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// CredentialError aggregates every reason the credential store rejected a
// mutation. All reasons are meant to be shown to the user together.
type CredentialError struct {
	Reasons []string
}

func (e *CredentialError) Error() string { return strings.Join(e.Reasons, "; ") }

// CredentialReasons unwraps the full reason list from a store error, falling
// back to the plain error text when the store returned something else.
func CredentialReasons(err error) []string {
	if err == nil {
		return nil
	}
	var ce *CredentialError
	if errors.As(err, &ce) {
		return ce.Reasons
	}
	return []string{err.Error()}
}
