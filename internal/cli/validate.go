package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kelsen/internal/charter"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                      `json:"valid"`
	Errors  []charter.ValidationError `json:"errors,omitempty"`
	Summary *CharterSummary           `json:"summary,omitempty"`
}

// CharterSummary counts what a charter declares.
type CharterSummary struct {
	Factories  int `json:"factories"`
	Organs     int `json:"organs"`
	Procedures int `json:"procedures"`
	Install    int `json:"install"`
	Entries    int `json:"entries"`
}

func summarize(c *charter.Charter) *CharterSummary {
	return &CharterSummary{
		Factories:  len(c.Factories),
		Organs:     len(c.Organs),
		Procedures: len(c.Procedures),
		Install:    len(c.Install),
		Entries:    len(c.Entries),
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <charter>",
		Short: "Validate a charter without deploying it",
		Long: `Validate a CUE charter file or directory without touching the journal.

Checks the charter against the built-in schema, then cross references
(factories, organs, procedures) and per-kind configuration.

Exit codes:
  0 - Charter is valid
  1 - Schema or semantic errors
  2 - Charter could not be read or built`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	c, errs, err := checkCharter(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	formatter.VerboseLog("charter %s: %d factories, %d organs, %d procedures",
		path, len(c.Factories), len(c.Organs), len(c.Procedures))
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Summary: summarize(c)})
	}
	fmt.Fprintln(formatter.Writer, "✓ Charter valid")
	return nil
}

// checkCharter loads path and collects schema and semantic errors. err is
// set only when the charter could not be read or built.
func checkCharter(path string) (*charter.Charter, []charter.ValidationError, error) {
	c, err := loadCharter(path)
	if err != nil {
		if ve, ok := compileValidationError(err); ok {
			return nil, []charter.ValidationError{ve}, nil
		}
		return nil, nil, err
	}
	return c, charter.Validate(c), nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []charter.ValidationError) error {
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
