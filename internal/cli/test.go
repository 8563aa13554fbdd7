package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kelsen/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Golden string // golden trace directory
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against a fresh engine",
		Long: `Run every YAML scenario in a directory. Each scenario deploys its charter
into a fresh in-memory engine, runs its setup and flow calls, and checks
its assertions. The journal given by --db is not touched.

With --golden, each scenario's flow trace is also compared with
<golden>/<name>.golden; --update rewrites those files instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, bad filter, etc.)

Examples:
  kelsen test ./scenarios
  kelsen test ./scenarios --filter "vote_*"
  kelsen test ./scenarios --golden ./golden --update
  kelsen test ./scenarios --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden traces")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, fmt.Sprintf("scenarios directory not found: %s", dir), nil)
	}
	if opts.Update && opts.Golden == "" {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "--update needs --golden", nil)
	}

	result, err := harness.RunSuite(ctx, dir, harness.SuiteOptions{
		Filter:    opts.Filter,
		GoldenDir: opts.Golden,
		Update:    opts.Update,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, err.Error(), nil)
	}
	for _, s := range result.Scenarios {
		opts.logger().Debug("scenario finished", "path", s.Path, "pass", s.Pass, "golden", s.Golden)
	}

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputTestText(formatter.Writer, result, opts.Verbose)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

func outputTestText(w io.Writer, result *harness.SuiteResult, verbose bool) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, s := range result.Scenarios {
		name := s.Name
		if name == "" {
			name = s.Path
		}
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		line := fmt.Sprintf("%s %s", mark, name)
		if s.Golden != "" {
			line += fmt.Sprintf(" (golden: %s)", s.Golden)
		}
		fmt.Fprintln(w, line)
		if !s.Pass || verbose {
			for _, e := range s.Errors {
				fmt.Fprintf(w, "    %s\n", e)
			}
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
