package charter

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/permission"
	"github.com/roach88/kelsen/internal/registry"
)

//go:embed schema.cue
var schemaSource []byte

// CompileError is a charter that CUE accepted but that does not fit the
// charter schema.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

// Compile turns a CUE value into a Charter. Unknown fields are reported
// by name first; the value is then checked against the built-in #Charter
// schema, so range and type errors carry CUE positions.
//
//	ctx := cuecontext.New()
//	c, err := Compile(ctx.CompileString(`organs: admins: name: "Admins"`))
func Compile(v cue.Value) (*Charter, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := checkFields(v, "", "factories", "organs", "procedures", "install", "entries", "keep_bootstrap"); err != nil {
		return nil, err
	}

	c := &Charter{}
	var err error
	if c.Factories, err = compileFactories(v); err != nil {
		return nil, err
	}
	if c.Organs, err = compileOrgans(v); err != nil {
		return nil, err
	}
	if c.Procedures, err = compileProcedures(v); err != nil {
		return nil, err
	}
	if c.Install, err = compileInstall(v); err != nil {
		return nil, err
	}
	if c.Entries, err = compileEntries(v); err != nil {
		return nil, err
	}
	if kb := v.LookupPath(cue.ParsePath("keep_bootstrap")); kb.Exists() {
		if c.KeepBootstrap, err = kb.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	schema := v.Context().CompileBytes(schemaSource, cue.Filename("charter/schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("charter schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Charter")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return c, nil
}

func compileFactories(v cue.Value) ([]Factory, error) {
	var out []Factory
	err := eachField(v, "factories", func(name string, fv cue.Value) error {
		field := "factories." + name
		if err := checkFields(fv, field, "kind", "address", "version"); err != nil {
			return err
		}
		kind, err := stringField(fv, "kind")
		if err != nil {
			return err
		}
		f := Factory{Name: name, Kind: registry.Kind(kind), Version: 1, Line: fv.Pos().Line()}
		if s, ok, err := optionalString(fv, "address"); err != nil {
			return err
		} else if ok {
			if f.Address, err = resolvePrincipal(s); err != nil {
				return &CompileError{Field: field + ".address", Message: err.Error(), Pos: fv.Pos()}
			}
		}
		if n, ok, err := optionalInt(fv, "version"); err != nil {
			return err
		} else if ok {
			f.Version = n
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

func compileOrgans(v cue.Value) ([]Organ, error) {
	var out []Organ
	err := eachField(v, "organs", func(key string, ov cue.Value) error {
		if err := checkFields(ov, "organs."+key, "name", "metadata"); err != nil {
			return err
		}
		o := Organ{Key: key, Line: ov.Pos().Line()}
		var err error
		if o.Name, _, err = optionalString(ov, "name"); err != nil {
			return err
		}
		if o.Metadata, _, err = optionalString(ov, "metadata"); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

func compileProcedures(v cue.Value) ([]Procedure, error) {
	var out []Procedure
	err := eachField(v, "procedures", func(key string, pv cue.Value) error {
		if err := checkFields(pv, "procedures."+key,
			"factory", "name", "nominators", "voters", "vetoers", "enactors", "target",
			"quorum_percent", "vote_duration", "veto_duration", "nomination_window", "voting_window", "period"); err != nil {
			return err
		}
		p := Procedure{Key: key, Line: pv.Pos().Line()}
		var err error
		if p.Factory, err = stringField(pv, "factory"); err != nil {
			return err
		}
		for _, s := range []struct {
			key string
			dst *string
		}{
			{"name", &p.Name},
			{"nominators", &p.Nominators},
			{"voters", &p.Voters},
			{"vetoers", &p.Vetoers},
			{"enactors", &p.Enactors},
			{"target", &p.Target},
		} {
			if *s.dst, _, err = optionalString(pv, s.key); err != nil {
				return err
			}
		}
		for _, n := range []struct {
			key string
			dst *int64
		}{
			{"quorum_percent", &p.QuorumPercent},
			{"vote_duration", &p.VoteDuration},
			{"veto_duration", &p.VetoDuration},
			{"nomination_window", &p.NominationWindow},
			{"voting_window", &p.VotingWindow},
			{"period", &p.Period},
		} {
			if *n.dst, _, err = optionalInt(pv, n.key); err != nil {
				return err
			}
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func compileInstall(v cue.Value) ([]Install, error) {
	var out []Install
	err := eachElem(v, "install", func(i int, iv cue.Value) error {
		field := fmt.Sprintf("install[%d]", i)
		if err := checkFields(iv, field, "organ", "procedure", "permissions"); err != nil {
			return err
		}
		in := Install{Line: iv.Pos().Line()}
		var err error
		if in.Organ, err = stringField(iv, "organ"); err != nil {
			return err
		}
		if in.Procedure, err = stringField(iv, "procedure"); err != nil {
			return err
		}
		if in.Permissions, err = permissionsField(iv.LookupPath(cue.ParsePath("permissions")), field+".permissions"); err != nil {
			return err
		}
		out = append(out, in)
		return nil
	})
	return out, err
}

func compileEntries(v cue.Value) ([]Entry, error) {
	var out []Entry
	err := eachElem(v, "entries", func(i int, ev cue.Value) error {
		field := fmt.Sprintf("entries[%d]", i)
		if err := checkFields(ev, field, "organ", "address", "name", "metadata"); err != nil {
			return err
		}
		e := Entry{Line: ev.Pos().Line()}
		var err error
		if e.Organ, err = stringField(ev, "organ"); err != nil {
			return err
		}
		addr, err := stringField(ev, "address")
		if err != nil {
			return err
		}
		if e.Address, err = resolvePrincipal(addr); err != nil {
			return &CompileError{Field: field + ".address", Message: err.Error(), Pos: ev.Pos()}
		}
		if e.Name, _, err = optionalString(ev, "name"); err != nil {
			return err
		}
		if e.Metadata, _, err = optionalString(ev, "metadata"); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// permissionsField accepts a mask expression, a number or a list of
// capability names.
func permissionsField(v cue.Value, field string) (permission.Mask, error) {
	var expr string
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return permission.None, formatCUEError(err)
		}
		expr = s
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return permission.None, formatCUEError(err)
		}
		expr = fmt.Sprintf("%d", n)
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return permission.None, formatCUEError(err)
		}
		var names []string
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return permission.None, formatCUEError(err)
			}
			names = append(names, s)
		}
		expr = strings.Join(names, "|")
	default:
		return permission.None, &CompileError{Field: field, Message: "permissions must be a string, number or list", Pos: v.Pos()}
	}
	m, err := permission.Parse(expr)
	if err != nil {
		return permission.None, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return m, nil
}

// resolvePrincipal reads a hex address, or derives a stable one from a
// plain name.
func resolvePrincipal(s string) (ir.Principal, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return ir.ParsePrincipal(s)
	}
	if s == "" {
		return ir.ZeroPrincipal, fmt.Errorf("address must not be empty")
	}
	return ir.PrincipalFromName(s), nil
}

func eachField(v cue.Value, path string, fn func(label string, fv cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Selector().Unquoted(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func eachElem(v cue.Value, path string, fn func(i int, ev cue.Value) error) error {
	lv := v.LookupPath(cue.ParsePath(path))
	if !lv.Exists() {
		return nil
	}
	iter, err := lv.List()
	if err != nil {
		return formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(i, iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// checkFields rejects labels outside allowed.
func checkFields(v cue.Value, field string, allowed ...string) error {
	if v.IncompleteKind() != cue.StructKind {
		if field == "" {
			field = "charter"
		}
		return &CompileError{Field: field, Message: "must be a struct", Pos: v.Pos()}
	}
	iter, err := v.Fields(cue.Optional(true))
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		if !slices.Contains(allowed, label) {
			name := label
			if field != "" {
				name = field + "." + label
			}
			return &CompileError{Field: name, Message: "unknown field", Pos: iter.Value().Pos()}
		}
	}
	return nil
}

func stringField(v cue.Value, key string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(key))
	if !fv.Exists() {
		return "", &CompileError{Field: key, Message: key + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, key string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(key))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func optionalInt(v cue.Value, key string) (int64, bool, error) {
	fv := v.LookupPath(cue.ParsePath(key))
	if !fv.Exists() {
		return 0, false, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	return n, true, nil
}
