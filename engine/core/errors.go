package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the core failure taxonomy. Provider failures are always
// recovered locally by a fallback path; only invalid input surfaces as a hard
// rejection to the caller.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrHandoffNotFound     = errors.New("handoff not found")
	ErrHandoffExpired      = errors.New("handoff expired")
)

// Error codes used in problem responses.
const (
	CodeInvalidInput        = "invalid_input"
	CodeProviderUnavailable = "provider_unavailable"
	CodeHandoffNotFound     = "handoff_not_found"
	CodeHandoffExpired      = "handoff_expired"
	CodeModerationBlocked   = "moderation_blocked"
	CodeInternal            = "internal_error"
)

// Error represents a typed core error with a stable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	Details string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps err with a stable code and message. The wrapped error is
// never serialized, so provider error bodies stay internal.
func WrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewInvalidInput builds an invalid-input rejection carrying caller-facing
// details.
func NewInvalidInput(details string) *Error {
	return &Error{
		Code:    CodeInvalidInput,
		Message: "request payload failed validation",
		Err:     ErrInvalidInput,
		Details: details,
	}
}

// IsInvalidInput reports whether err belongs to the invalid-input class.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
