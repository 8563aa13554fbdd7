package charter

import (
	"context"
	"fmt"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/engine"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
)

// Deployment maps charter names to the addresses Apply produced.
type Deployment struct {
	Flow       string
	Registry   ir.Principal
	Factories  map[string]ir.Principal
	Organs     map[string]ir.Principal
	Procedures map[string]ir.Principal

	// Calls counts the top-level engine calls made.
	Calls int
}

// StepError is a deployment call the engine refused.
type StepError struct {
	Step   string
	Action string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Step, e.Action, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Apply deploys c through e as deployer, all calls sharing one flow and
// the time at. Steps run in this order: register factories, create
// organs, create procedures, install procedures, seed entries and finally
// revoke the deployer's bootstrap slot unless c.KeepBootstrap is set.
//
// Factory registration requires the deployer to own the world. Apply
// validates c first and stops at the first refused call; calls already
// made stay applied.
func Apply(ctx context.Context, e *engine.Engine, c *Charter, deployer ir.Principal, at int64) (*Deployment, error) {
	if errs := Validate(c); len(errs) > 0 {
		return nil, errs[0]
	}
	d := &Deployment{
		Flow:       e.NewFlow(),
		Registry:   e.RegistryAddress(),
		Factories:  map[string]ir.Principal{},
		Organs:     map[string]ir.Principal{},
		Procedures: map[string]ir.Principal{},
	}

	call := func(step string, target ir.Principal, action string, args ir.Object) (ir.Object, error) {
		out, err := e.Apply(ctx, engine.Request{
			Flow:   d.Flow,
			Caller: deployer,
			Target: target,
			Action: action,
			Args:   args,
			At:     at,
		})
		if err != nil {
			return nil, &StepError{Step: step, Action: action, Err: err}
		}
		d.Calls++
		if out.Err != nil {
			return nil, &StepError{Step: step, Action: action, Err: out.Err}
		}
		return out.Result(), nil
	}

	for _, f := range c.Factories {
		args := ir.Object{
			"name":    ir.String(f.Name),
			"kind":    ir.String(f.Kind),
			"version": ir.Int(f.Version),
		}
		if !ir.IsZero(f.Address) {
			args["factory"] = ir.String(f.Address.Hex())
		}
		res, err := call("register factory "+f.Name, d.Registry, "Kelsen.registerProcedureFactory", args)
		if err != nil {
			return d, err
		}
		if d.Factories[f.Name], err = resultAddress(res, "factory"); err != nil {
			return d, err
		}
	}

	for _, o := range c.Organs {
		res, err := call("create organ "+o.Key, d.Registry, "Kelsen.createOrgan", metadataObject(o.Name, o.Metadata))
		if err != nil {
			return d, err
		}
		if d.Organs[o.Key], err = resultAddress(res, "organ"); err != nil {
			return d, err
		}
	}

	for _, p := range c.Procedures {
		args := metadataObject(p.Name, "")
		args["factory"] = ir.String(p.Factory)
		for key, ref := range p.OrganRefs() {
			args[key] = ir.String(d.Organs[ref].Hex())
		}
		for key, v := range p.Params() {
			args[key] = ir.Int(v)
		}
		res, err := call("create procedure "+p.Key, d.Registry, "Kelsen.createProcedure", args)
		if err != nil {
			return d, err
		}
		if d.Procedures[p.Key], err = resultAddress(res, "procedure"); err != nil {
			return d, err
		}
	}

	for _, in := range c.Install {
		m := organ.Mutation{
			Kind:        organ.KindAddProcedure,
			Address:     d.Procedures[in.Procedure],
			Permissions: in.Permissions,
		}
		step := fmt.Sprintf("install %s on %s", in.Procedure, in.Organ)
		if _, err := call(step, d.Organs[in.Organ], m.Kind.Action(), m.Args()); err != nil {
			return d, err
		}
	}

	for _, en := range c.Entries {
		md, err := entryMetadata(en)
		if err != nil {
			return d, &StepError{Step: "seed " + en.Organ, Action: organ.KindAddEntry.Action(), Err: err}
		}
		m := organ.Mutation{Kind: organ.KindAddEntry, Address: en.Address, Metadata: md}
		step := fmt.Sprintf("seed %s with %s", en.Organ, en.Address.Hex())
		if _, err := call(step, d.Organs[en.Organ], m.Kind.Action(), m.Args()); err != nil {
			return d, err
		}
	}

	if !c.KeepBootstrap {
		for _, o := range c.Organs {
			m := organ.Mutation{Kind: organ.KindRemoveProcedure, Index: 0}
			if _, err := call("revoke bootstrap on "+o.Key, d.Organs[o.Key], m.Kind.Action(), m.Args()); err != nil {
				return d, err
			}
		}
	}
	return d, nil
}

// metadataObject passes explicit metadata through and otherwise lets the
// engine anchor the name.
func metadataObject(name, metadata string) ir.Object {
	switch {
	case metadata != "":
		return ir.Object{"metadata": ir.String(metadata)}
	case name != "":
		return ir.Object{"name": ir.String(name)}
	}
	return ir.Object{}
}

func entryMetadata(en Entry) (digest.Digest, error) {
	switch {
	case en.Metadata != "":
		return digest.Parse(en.Metadata)
	case en.Name != "":
		return engine.NameDigest(en.Name)
	}
	return digest.Digest{}, nil
}

func resultAddress(res ir.Object, key string) (ir.Principal, error) {
	s, ok := res.Str(key)
	if !ok {
		return ir.ZeroPrincipal, fmt.Errorf("result has no %q", key)
	}
	return ir.ParsePrincipal(s)
}
