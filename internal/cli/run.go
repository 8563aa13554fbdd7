package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/kelsen/internal/engine"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/store"
)

// commandContext derives the context commands run under. Interrupts cancel
// it; tests pass their own context through cobra.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openEngine opens the journal at opts.DB and restores its world. The
// caller closes the returned store.
func openEngine(ctx context.Context, opts *RootOptions) (*engine.Engine, *store.Store, error) {
	log := opts.logger()

	log.Debug("opening journal", "path", opts.DB)
	st, err := store.Open(opts.DB)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}

	e, err := engine.Open(ctx, st, opts.owner,
		engine.WithLogger(log),
		engine.WithMaxSteps(opts.maxSteps()),
	)
	if err != nil {
		closeStore(opts, st)
		return nil, nil, WrapExitError(ExitCommandError, "failed to restore journal", err)
	}
	log.Debug("journal restored", "path", opts.DB, "seq", e.Seq())
	return e, st, nil
}

func (o *RootOptions) maxSteps() int {
	if o.Config.MaxSteps == 0 {
		return engine.DefaultMaxSteps
	}
	return o.Config.MaxSteps
}

func closeStore(opts *RootOptions, st *store.Store) {
	if err := st.Close(); err != nil {
		opts.logger().Error("error closing journal", "error", err)
	}
}

// parsePrincipal reads a hex address, or derives one from a plain name
// the same way charters do.
func parsePrincipal(s string) (ir.Principal, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return ir.ParsePrincipal(s)
	}
	if s == "" {
		return ir.ZeroPrincipal, ir.NewValidation("principal", "must not be empty")
	}
	return ir.PrincipalFromName(s), nil
}
