package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Context map[string]interface{} `json:"context,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so clones and wrapped copies compare equal to
// the predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithContext returns a copy carrying diagnostic key/value pairs.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Context = make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		clone.Context[k] = v
	}
	clone.Context[key] = value
	return &clone
}

// Public returns the form of the error safe to show to unauthenticated
// callers. Authentication failures collapse into one indistinguishable value.
func (e *Error) Public() *Error {
	if e == nil {
		return nil
	}
	if IsAuthentication(e) {
		return ErrNotAuthenticated
	}
	if e.Status >= http.StatusInternalServerError {
		return &Error{Code: e.Code, Status: e.Status, Message: e.Message}
	}
	return e
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials  = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid credentials")
	ErrInactiveAccount     = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrInvalidToken        = New("INVALID_TOKEN", http.StatusUnauthorized, "invalid token")
	ErrExpiredToken        = New("EXPIRED_TOKEN", http.StatusUnauthorized, "token has expired")
	ErrWrongTokenKind      = New("WRONG_TOKEN_KIND", http.StatusUnauthorized, "wrong token kind")
	ErrRevokedToken        = New("REVOKED_TOKEN", http.StatusUnauthorized, "token has been revoked")
	ErrFreshTokenRequired  = New("FRESH_TOKEN_REQUIRED", http.StatusUnauthorized, "fresh token required")
	ErrAccountNotFound     = New("ACCOUNT_NOT_FOUND", http.StatusUnauthorized, "account not found")
	ErrResetTokenNotFound  = New("RESET_TOKEN_NOT_FOUND", http.StatusNotFound, "reset password token not found")
	ErrResetTokenExpired   = New("RESET_TOKEN_EXPIRED", http.StatusUnprocessableEntity, "reset password token expired")
	ErrAlreadyConfirmed    = New("ALREADY_CONFIRMED", http.StatusUnprocessableEntity, "email already confirmed")
	ErrConfirmationExpired = New("CONFIRMATION_EXPIRED", http.StatusUnprocessableEntity, "confirmation link expired")
	ErrConfirmationUnknown = New("CONFIRMATION_NOT_FOUND", http.StatusNotFound, "confirmation key not found")
	ErrDuplicateAccount    = New("DUPLICATE_ACCOUNT", http.StatusConflict, "account already exists")
	ErrNotAuthenticated    = New("UNAUTHORIZED", http.StatusUnauthorized, "could not validate credentials")
	ErrForbidden           = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrValidation          = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUnavailable         = New("SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "service temporarily unavailable")
	ErrInternal            = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

var authenticationCodes = map[string]struct{}{
	ErrInvalidCredentials.Code: {},
	ErrInvalidToken.Code:       {},
	ErrExpiredToken.Code:       {},
	ErrWrongTokenKind.Code:     {},
	ErrRevokedToken.Code:       {},
	ErrFreshTokenRequired.Code: {},
	ErrAccountNotFound.Code:    {},
	ErrNotAuthenticated.Code:   {},
}

// IsAuthentication reports whether err is one of the authentication failures
// that must not be told apart by external callers.
func IsAuthentication(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	_, ok := authenticationCodes[e.Code]
	return ok
}

// IsTransient reports whether err is an infrastructure failure worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Unavailable wraps an infrastructure failure as a retryable error.
func Unavailable(err error, message string) *Error {
	return Wrap(err, ErrUnavailable.Code, ErrUnavailable.Status, message)
}
