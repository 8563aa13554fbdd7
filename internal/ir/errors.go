package ir

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrorCode categorizes governance failures. The code doubles as the
// output case of a failed completion.
type ErrorCode string

const (
	// ErrCodeUnauthorized: the caller's mask or membership is insufficient.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeNotFound: index, name, proposal or component does not exist or
	// is tombstoned.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeValidation: malformed input.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeMalformedDigest: a content identifier failed to decode.
	ErrCodeMalformedDigest ErrorCode = "MALFORMED_DIGEST"

	ErrCodeAlreadyVoted   ErrorCode = "ALREADY_VOTED"
	ErrCodeAlreadyEnacted ErrorCode = "ALREADY_ENACTED"
	ErrCodeExpired        ErrorCode = "EXPIRED"
)

// Codes lists every error code in a stable order.
var Codes = []ErrorCode{
	ErrCodeUnauthorized,
	ErrCodeNotFound,
	ErrCodeValidation,
	ErrCodeMalformedDigest,
	ErrCodeAlreadyVoted,
	ErrCodeAlreadyEnacted,
	ErrCodeExpired,
}

// Error is the single error type returned by governance operations.
// A returned Error always means no state was changed.
type Error struct {
	Code    ErrorCode
	Message string

	// Details carries structured context (index, name, proposal id...).
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	parts := make([]string, 0, len(e.Details))
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		parts = append(parts, k+"="+e.Details[k])
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// With returns a copy of e with an extra detail.
func (e *Error) With(key, value string) *Error {
	out := &Error{Code: e.Code, Message: e.Message, Details: make(map[string]string, len(e.Details)+1)}
	maps.Copy(out.Details, e.Details)
	out.Details[key] = value
	return out
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func IsUnauthorized(err error) bool    { return hasCode(err, ErrCodeUnauthorized) }
func IsNotFound(err error) bool        { return hasCode(err, ErrCodeNotFound) }
func IsValidation(err error) bool      { return hasCode(err, ErrCodeValidation) }
func IsMalformedDigest(err error) bool { return hasCode(err, ErrCodeMalformedDigest) }
func IsAlreadyVoted(err error) bool    { return hasCode(err, ErrCodeAlreadyVoted) }
func IsAlreadyEnacted(err error) bool  { return hasCode(err, ErrCodeAlreadyEnacted) }
func IsExpired(err error) bool         { return hasCode(err, ErrCodeExpired) }

// NewUnauthorized reports that caller may not perform action.
func NewUnauthorized(caller Principal, action string) *Error {
	return &Error{
		Code:    ErrCodeUnauthorized,
		Message: fmt.Sprintf("%s is not authorized to %s", caller.Hex(), action),
		Details: map[string]string{"caller": caller.Hex(), "action": action},
	}
}

// NewNotFound reports a missing thing, e.g. NewNotFound("entry", "3").
func NewNotFound(kind, key string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, key),
		Details: map[string]string{"kind": kind, "key": key},
	}
}

// NewValidation reports malformed input for field.
func NewValidation(field, message string) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: map[string]string{"field": field},
	}
}

// NewMalformedDigest reports a content identifier decode failure.
func NewMalformedDigest(input, reason string) *Error {
	return &Error{
		Code:    ErrCodeMalformedDigest,
		Message: reason,
		Details: map[string]string{"input": input},
	}
}

func NewAlreadyVoted(voter Principal, proposal string) *Error {
	return &Error{
		Code:    ErrCodeAlreadyVoted,
		Message: fmt.Sprintf("%s already voted on %s", voter.Hex(), proposal),
		Details: map[string]string{"voter": voter.Hex(), "proposal": proposal},
	}
}

func NewAlreadyEnacted(proposal string) *Error {
	return &Error{
		Code:    ErrCodeAlreadyEnacted,
		Message: fmt.Sprintf("%s was already enacted", proposal),
		Details: map[string]string{"proposal": proposal},
	}
}

// NewExpired reports that proposal passed its deadline (or can no longer
// succeed).
func NewExpired(proposal string, deadline int64) *Error {
	return &Error{
		Code:    ErrCodeExpired,
		Message: fmt.Sprintf("%s expired at %d", proposal, deadline),
		Details: map[string]string{"proposal": proposal, "deadline": fmt.Sprintf("%d", deadline)},
	}
}
