package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for callers that map failures onto a
// transport (HTTP status, queue nack, etc.) without parsing messages.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindAuthorization Kind = "AUTHORIZATION"
	KindState         Kind = "STATE"
	KindConflict      Kind = "CONFLICT"
	KindRateLimit     Kind = "RATE_LIMIT"
	KindNotFound      Kind = "NOT_FOUND"
)

// Rejection codes surfaced to callers.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotActive         = "NOT_ACTIVE"
	CodeNotAuthorized     = "NOT_AUTHORIZED"
	CodeVotingClosed      = "VOTING_CLOSED"
	CodeInvalidWeight     = "INVALID_WEIGHT"
	CodeAlreadyVoted      = "ALREADY_VOTED"
	CodeNotExpired        = "NOT_EXPIRED"
	CodeTooManyActive     = "TOO_MANY_ACTIVE"
	CodeDailyChamberLimit = "DAILY_CHAMBER_LIMIT"
	CodeCooldownActive    = "COOLDOWN_ACTIVE"
	CodeNotFound          = "NOT_FOUND"
)

// Error carries a machine-readable kind and code plus a human-readable
// reason suitable for direct display.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of an engine error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf extracts the rejection code of an engine error, or "" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
