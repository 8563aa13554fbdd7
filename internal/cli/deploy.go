package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kelsen/internal/charter"
	"github.com/roach88/kelsen/internal/ir"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	At int64 // unix time for every deployment call; zero means now
}

// NamedAddress pairs a charter name with the address it deployed to.
type NamedAddress struct {
	Name    string       `json:"name"`
	Address ir.Principal `json:"address"`
}

// DeployResult is the outcome of a deployment.
type DeployResult struct {
	Charter    string         `json:"charter"`
	Flow       string         `json:"flow"`
	Deployer   ir.Principal   `json:"deployer"`
	Registry   ir.Principal   `json:"registry"`
	Calls      int            `json:"calls"`
	Factories  []NamedAddress `json:"factories"`
	Organs     []NamedAddress `json:"organs"`
	Procedures []NamedAddress `json:"procedures"`
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy <charter>",
		Short: "Deploy a charter into the journal",
		Long: `Deploy a CUE charter: register its factories, create its organs and
procedures, install the procedures and seed the entries. Every call is
made by the world owner and journaled under one flow.

A new journal is claimed for --owner (or KELSEN_OWNER); an existing one
deploys as its recorded owner.

Exit codes:
  0 - Charter deployed
  1 - Charter invalid or a call was refused (earlier calls stay applied)
  2 - Command error (unreadable charter, journal failure)

Examples:
  kelsen deploy --owner alice ./charter.cue
  kelsen deploy --db ./gov.db --at 1700000000 ./charters`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.At, "at", 0, "unix time of the deployment (default now)")

	return cmd
}

func runDeploy(opts *DeployOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	c, errs, err := checkCharter(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	e, st, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, err.Error(), nil)
	}
	defer closeStore(opts.RootOptions, st)

	deployer := e.Owner()

	at := opts.At
	if at == 0 {
		at = time.Now().Unix()
	}
	opts.logger().Info("deploying charter", "path", path, "deployer", deployer.Hex(), "at", at)

	d, err := charter.Apply(ctx, e, c, deployer, at)
	if err != nil {
		var stepErr *charter.StepError
		if errors.As(err, &stepErr) {
			details := map[string]any{"step": stepErr.Step, "action": stepErr.Action}
			if d != nil {
				details["flow"] = d.Flow
				details["calls"] = d.Calls
			}
			exit := ExitFailure
			if _, ok := ir.CodeOf(stepErr.Err); !ok {
				exit = ExitCommandError
			}
			return formatter.Fail(exit, errorCode(stepErr.Err), stepErr.Error(), details)
		}
		return formatter.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}

	result := deployResult(path, deployer, c, d)
	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputDeployText(formatter, result)
	return nil
}

// deployResult lists deployed addresses in charter declaration order.
func deployResult(path string, deployer ir.Principal, c *charter.Charter, d *charter.Deployment) DeployResult {
	r := DeployResult{
		Charter:    path,
		Flow:       d.Flow,
		Deployer:   deployer,
		Registry:   d.Registry,
		Calls:      d.Calls,
		Factories:  []NamedAddress{},
		Organs:     []NamedAddress{},
		Procedures: []NamedAddress{},
	}
	for _, f := range c.Factories {
		r.Factories = append(r.Factories, NamedAddress{Name: f.Name, Address: d.Factories[f.Name]})
	}
	for _, o := range c.Organs {
		r.Organs = append(r.Organs, NamedAddress{Name: o.Key, Address: d.Organs[o.Key]})
	}
	for _, p := range c.Procedures {
		r.Procedures = append(r.Procedures, NamedAddress{Name: p.Key, Address: d.Procedures[p.Key]})
	}
	return r
}

func outputDeployText(f *OutputFormatter, r DeployResult) {
	w := f.Writer
	fmt.Fprintf(w, "✓ Deployed %s (%d calls)\n", r.Charter, r.Calls)
	fmt.Fprintf(w, "Flow:     %s\n", r.Flow)
	fmt.Fprintf(w, "Deployer: %s\n", r.Deployer.Hex())
	fmt.Fprintf(w, "Registry: %s\n", r.Registry.Hex())
	for _, section := range []struct {
		title string
		items []NamedAddress
	}{
		{"Factories", r.Factories},
		{"Organs", r.Organs},
		{"Procedures", r.Procedures},
	} {
		if len(section.items) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", section.title)
		for _, item := range section.items {
			fmt.Fprintf(w, "  %-20s %s\n", item.Name, item.Address.Hex())
		}
	}
}
