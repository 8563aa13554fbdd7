package cli

import (
	"errors"

	"github.com/roach88/kelsen/internal/charter"
	"github.com/roach88/kelsen/internal/engine"
	"github.com/roach88/kelsen/internal/ir"
)

// Error code constants - unified across all CLI commands. Charter load
// errors keep the charter package's codes (E001-E004) and semantic
// problems keep theirs (E201-E211).
const (
	ErrCodeGeneric = "E000" // Generic/unknown error
	ErrCodeCompile = "E100" // Charter does not fit the schema

	ErrCodeJournal = "E300" // Journal could not be opened, read or written
	ErrCodeDeploy  = "E301" // Deployment stopped at a refused call
	ErrCodeArgs    = "E302" // Bad command arguments (principal, JSON, digest input)
	ErrCodeUnknown = "E303" // Unknown action
	ErrCodeReplay  = "E304" // Replay did not reproduce the journal
)

// loadCharter reads and compiles a charter. Semantic validation is left to
// the caller.
func loadCharter(path string) (*charter.Charter, error) {
	return charter.Load(path)
}

// errorCode maps an error to the code reported in CLI output. Governance
// failures report their own code (UNAUTHORIZED, NOT_FOUND, ...).
func errorCode(err error) string {
	var loadErr *charter.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	var compileErr *charter.CompileError
	if errors.As(err, &compileErr) {
		return ErrCodeCompile
	}
	if engine.IsUnknownAction(err) {
		return ErrCodeUnknown
	}
	if engine.IsDiverged(err) {
		return ErrCodeReplay
	}
	if engine.IsJournalError(err) || engine.IsStopped(err) {
		return ErrCodeJournal
	}
	if code, ok := ir.CodeOf(err); ok {
		return string(code)
	}
	return ErrCodeGeneric
}

// compileValidationError turns a schema error into the same shape as a
// semantic one so validate can report both together.
func compileValidationError(err error) (charter.ValidationError, bool) {
	var compileErr *charter.CompileError
	if !errors.As(err, &compileErr) {
		return charter.ValidationError{}, false
	}
	ve := charter.ValidationError{
		Field:   compileErr.Field,
		Message: compileErr.Message,
		Code:    ErrCodeCompile,
	}
	if compileErr.Pos.IsValid() {
		ve.Line = compileErr.Pos.Line()
	}
	return ve, true
}
