package service

import (
	"errors"
	"sort"
	"strings"
)

// Errors returned by the session service.  Handlers map each of them to a
// single HTTP status; see handler.respondError.
var (
	ErrValidation      = errors.New("validation failed")
	ErrWeakPassword    = errors.New("password does not meet policy")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrBadCredentials  = errors.New("invalid credentials")
	ErrAccountInactive = errors.New("account is inactive")
	ErrTokenExpired    = errors.New("refresh token expired")
	ErrTokenInvalid    = errors.New("refresh token invalid")
	ErrReplayDetected  = errors.New("refresh token replay detected")
	ErrForbidden       = errors.New("forbidden")
	ErrUserNotFound    = errors.New("user not found")

	// ErrSessionNotOpened means Register stored the account but could not
	// issue its first tokens.  The account is usable through Login.
	ErrSessionNotOpened = errors.New("account created but session not opened")
)

// ValidationError carries field level detail for malformed input.  It
// matches ErrValidation, and ErrWeakPassword too when the password policy
// was the cause.
type ValidationError struct {
	Fields map[string]string
	cause  error
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) add(field, msg string) { e.Fields[field] = msg }

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrValidation, e.cause}
	}
	return []error{ErrValidation}
}
