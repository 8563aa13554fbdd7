package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/engine"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
	"github.com/roach88/kelsen/internal/registry"
)

// ProcedureInfo describes a procedure for inspection.
type ProcedureInfo struct {
	Address  ir.Principal  `json:"address"`
	Kind     registry.Kind `json:"kind"`
	Metadata digest.Digest `json:"metadata"`
	Target   ir.Principal  `json:"target"`
}

// InspectResult describes whatever lives at an address. Exactly one of
// Organ, Procedure and Factories is set, matching Component.
type InspectResult struct {
	Component string             `json:"component"`
	Organ     *organ.State       `json:"organ,omitempty"`
	Procedure *ProcedureInfo     `json:"procedure,omitempty"`
	Factories []registry.Factory `json:"factories,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <address>",
		Short: "Show the state of an organ, procedure or the registry",
		Long: `Show the current state of the component at an address, as restored
from the journal. Organs list every entry and procedure slot, removed
slots included so indices stay meaningful.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// NewFactoriesCommand creates the factories command.
func NewFactoriesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "factories",
		Short: "List registered procedure factories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFactories(rootOpts, cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	address, err := parsePrincipal(arg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, err.Error(), nil)
	}

	e, st, err := openEngine(ctx, opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	defer closeStore(opts, st)

	var result InspectResult
	err = e.View(func(w *engine.World) error {
		result.Component = w.Component(address)
		if o, err := w.Organ(address); err == nil {
			state := o.Snapshot()
			result.Organ = &state
		} else if p, err := w.Procedure(address); err == nil {
			result.Procedure = &ProcedureInfo{
				Address:  p.Address(),
				Kind:     p.Kind(),
				Metadata: p.Metadata(),
				Target:   p.Target(),
			}
		} else if address == w.Registry().Address() {
			result.Factories = w.Registry().Factories()
		}
		return nil
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}

	if result.Component == "" {
		err := ir.NewNotFound("component", address.Hex())
		return formatter.Fail(ExitFailure, errorCode(err), err.Error(), nil)
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	switch {
	case result.Organ != nil:
		outputOrganText(formatter, *result.Organ)
	case result.Procedure != nil:
		p := result.Procedure
		fmt.Fprintf(w, "%s %s\n", result.Component, p.Address.Hex())
		fmt.Fprintf(w, "Kind:     %s\n", p.Kind)
		fmt.Fprintf(w, "Metadata: %s\n", orDash(p.Metadata.String()))
		fmt.Fprintf(w, "Target:   %s\n", p.Target.Hex())
	default:
		fmt.Fprintf(w, "%s registry %s\n", result.Component, address.Hex())
		outputFactoriesText(formatter, result.Factories)
	}
	return nil
}

func runFactories(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, st, err := openEngine(ctx, opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	defer closeStore(opts, st)

	var factories []registry.Factory
	err = e.View(func(w *engine.World) error {
		factories = w.Registry().Factories()
		return nil
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	if factories == nil {
		factories = []registry.Factory{}
	}

	if formatter.JSON() {
		return formatter.Success(factories)
	}
	outputFactoriesText(formatter, factories)
	return nil
}

func outputOrganText(f *OutputFormatter, s organ.State) {
	w := f.Writer
	fmt.Fprintf(w, "Organ %s\n", s.Address.Hex())
	fmt.Fprintf(w, "Metadata: %s\n", orDash(s.Metadata.String()))

	fmt.Fprintf(w, "\nEntries (%d):\n", len(s.Entries))
	for i, e := range s.Entries {
		if e.IsEmpty() {
			fmt.Fprintf(w, "  [%d] (removed)\n", i)
			continue
		}
		fmt.Fprintf(w, "  [%d] %s %s\n", i, e.Address.Hex(), orDash(e.Metadata.String()))
	}

	fmt.Fprintf(w, "\nProcedures (%d):\n", len(s.Procedures))
	for i, slot := range s.Procedures {
		if slot.IsEmpty() {
			fmt.Fprintf(w, "  [%d] (removed)\n", i)
			continue
		}
		fmt.Fprintf(w, "  [%d] %s %s\n", i, slot.Address.Hex(), slot.Permissions)
	}
}

func outputFactoriesText(f *OutputFormatter, factories []registry.Factory) {
	if len(factories) == 0 {
		fmt.Fprintln(f.Writer, "No factories registered.")
		return
	}
	for _, fac := range factories {
		fmt.Fprintf(f.Writer, "  %-20s %-18s v%d %s\n", fac.Name, fac.Kind, fac.Version, fac.Address.Hex())
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
