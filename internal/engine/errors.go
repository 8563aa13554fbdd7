package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an engine fault: the call was not applied and nothing
// was journaled. Governance failures are *ir.Error values instead and are
// journaled like successes.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// FlowToken identifies the affected flow, when known.
	FlowToken string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownAction: the action is not in the dispatch table.
	ErrCodeUnknownAction RuntimeErrorCode = "UNKNOWN_ACTION"

	// ErrCodeQuotaExceeded: a call issued more nested calls than allowed.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeJournal: the journal rejected a write. The engine stops.
	ErrCodeJournal RuntimeErrorCode = "JOURNAL_FAILURE"

	// ErrCodeStopped: the engine stopped after an earlier fault.
	ErrCodeStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodeDiverged: replaying the journal did not reproduce it.
	ErrCodeDiverged RuntimeErrorCode = "JOURNAL_DIVERGED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.FlowToken != "" {
		return fmt.Sprintf("%s: %s (flow=%s)", e.Code, e.Message, e.FlowToken)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasRuntimeCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownAction returns true if the error is an unknown action fault.
func IsUnknownAction(err error) bool { return hasRuntimeCode(err, ErrCodeUnknownAction) }

// IsStopped returns true if the engine refused work after a fault.
func IsStopped(err error) bool { return hasRuntimeCode(err, ErrCodeStopped) }

// IsJournalError returns true if the journal rejected a write.
func IsJournalError(err error) bool { return hasRuntimeCode(err, ErrCodeJournal) }

// IsDiverged returns true if a journal failed to replay identically.
func IsDiverged(err error) bool { return hasRuntimeCode(err, ErrCodeDiverged) }

// IsQuotaError matches both RuntimeError with ErrCodeQuotaExceeded and
// StepsExceededError.
func IsQuotaError(err error) bool {
	if hasRuntimeCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// NewUnknownActionError reports an action missing from the dispatch table.
func NewUnknownActionError(action string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownAction,
		Message: fmt.Sprintf("unknown action %q", action),
		Details: map[string]string{"action": action},
	}
}

// NewJournalError wraps a failed journal write.
func NewJournalError(flowToken string, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeJournal,
		Message:   err.Error(),
		FlowToken: flowToken,
	}
}

func newStoppedError(cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStopped,
		Message: fmt.Sprintf("engine stopped: %v", cause),
	}
}
