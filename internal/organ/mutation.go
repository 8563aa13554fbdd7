package organ

import (
	"fmt"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/permission"
)

// Kind names an organ mutation. The values double as the operation part of
// the engine's "Organ.<kind>" actions.
type Kind string

const (
	KindAddEntry         Kind = "addEntry"
	KindRemoveEntry      Kind = "removeEntry"
	KindReplaceEntry     Kind = "replaceEntry"
	KindAddProcedure     Kind = "addProcedure"
	KindRemoveProcedure  Kind = "removeProcedure"
	KindReplaceProcedure Kind = "replaceProcedure"
	KindSetMetadata      Kind = "setMetadata"
)

// Kinds lists every mutation kind.
var Kinds = []Kind{
	KindAddEntry, KindRemoveEntry, KindReplaceEntry,
	KindAddProcedure, KindRemoveProcedure, KindReplaceProcedure,
	KindSetMetadata,
}

var required = map[Kind]permission.Mask{
	KindAddEntry:         permission.CanAddEntry,
	KindRemoveEntry:      permission.CanRemoveEntry,
	KindReplaceEntry:     permission.CanReplaceEntry,
	KindAddProcedure:     permission.CanAddProcedure,
	KindRemoveProcedure:  permission.CanRemoveProcedure,
	KindReplaceProcedure: permission.CanReplaceProcedure,
	KindSetMetadata:      permission.CanSetMetadata,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := required[k]
	return ok
}

// Required returns the capability the kind needs.
func (k Kind) Required() permission.Mask {
	return required[k]
}

// Action returns the engine action name, e.g. "Organ.addEntry".
func (k Kind) Action() string {
	return "Organ." + string(k)
}

// Mutation is a deferred organ call. Nomination and voting procedures carry
// one as their payload and apply it when their workflow succeeds.
type Mutation struct {
	Kind Kind `json:"kind"`

	// Target is the organ to mutate; zero means the procedure's default.
	Target ir.Principal `json:"target,omitempty"`

	Index       int             `json:"index,omitempty"`
	Address     ir.Principal    `json:"address,omitempty"`
	Metadata    digest.Digest   `json:"metadata"`
	Permissions permission.Mask `json:"permissions,omitempty"`
}

// Required returns the capability the mutation needs.
func (m Mutation) Required() permission.Mask {
	return m.Kind.Required()
}

// Apply performs the mutation on o as caller. The returned index is the
// new slot for add kinds and m.Index otherwise.
func (m Mutation) Apply(o *Organ, caller ir.Principal) (int, error) {
	switch m.Kind {
	case KindAddEntry:
		return o.AddEntry(caller, m.Address, m.Metadata)
	case KindRemoveEntry:
		return m.Index, o.RemoveEntry(caller, m.Index)
	case KindReplaceEntry:
		return m.Index, o.ReplaceEntry(caller, m.Index, m.Address, m.Metadata)
	case KindAddProcedure:
		return o.AddProcedure(caller, m.Address, m.Permissions)
	case KindRemoveProcedure:
		return m.Index, o.RemoveProcedure(caller, m.Index)
	case KindReplaceProcedure:
		return m.Index, o.ReplaceProcedure(caller, m.Index, m.Address, m.Permissions)
	case KindSetMetadata:
		return 0, o.SetMetadata(caller, m.Metadata)
	default:
		return 0, ir.NewValidation("kind", fmt.Sprintf("unknown mutation kind %q", m.Kind))
	}
}

func (m Mutation) hasIndex() bool {
	switch m.Kind {
	case KindRemoveEntry, KindReplaceEntry, KindRemoveProcedure, KindReplaceProcedure:
		return true
	}
	return false
}

func (m Mutation) hasAddress() bool {
	switch m.Kind {
	case KindAddEntry, KindReplaceEntry, KindAddProcedure, KindReplaceProcedure:
		return true
	}
	return false
}

func (m Mutation) hasMetadata() bool {
	switch m.Kind {
	case KindAddEntry, KindReplaceEntry, KindSetMetadata:
		return true
	}
	return false
}

func (m Mutation) hasPermissions() bool {
	return m.Kind == KindAddProcedure || m.Kind == KindReplaceProcedure
}

// Args encodes the operation arguments (without kind or target) as they
// appear on an "Organ.<kind>" invocation.
func (m Mutation) Args() ir.Object {
	args := ir.Object{}
	if m.hasIndex() {
		args["index"] = ir.Int(m.Index)
	}
	if m.hasAddress() {
		args["address"] = ir.String(m.Address.Hex())
	}
	if m.hasMetadata() {
		args["metadata"] = ir.String(m.Metadata.String())
	}
	if m.hasPermissions() {
		args["permissions"] = ir.String(m.Permissions.String())
	}
	return args
}

// Object encodes the full mutation, kind and target included, as the
// payload object carried by procedure calls.
func (m Mutation) Object() ir.Object {
	obj := m.Args()
	obj["kind"] = ir.String(m.Kind)
	if !ir.IsZero(m.Target) {
		obj["target"] = ir.String(m.Target.Hex())
	}
	return obj
}

// ParseArgs decodes the arguments of an "Organ.<kind>" invocation.
func ParseArgs(kind Kind, args ir.Object) (Mutation, error) {
	if !kind.Valid() {
		return Mutation{}, ir.NewValidation("kind", fmt.Sprintf("unknown mutation kind %q", kind))
	}
	m := Mutation{Kind: kind}
	var err error
	if m.hasIndex() {
		n, ok := args.IntValue("index")
		if !ok {
			return Mutation{}, ir.NewValidation("index", "index is required")
		}
		m.Index = int(n)
	}
	if m.hasAddress() {
		if m.Address, err = principalArg(args, "address"); err != nil {
			return Mutation{}, err
		}
	}
	if m.hasMetadata() {
		if m.Metadata, err = MetadataArg(args, "metadata"); err != nil {
			return Mutation{}, err
		}
	}
	if m.hasPermissions() {
		if m.Permissions, err = permissionsArg(args, "permissions"); err != nil {
			return Mutation{}, err
		}
	}
	return m, nil
}

// ParseObject decodes a payload object produced by Mutation.Object.
func ParseObject(obj ir.Object) (Mutation, error) {
	kind, ok := obj.Str("kind")
	if !ok {
		return Mutation{}, ir.NewValidation("kind", "mutation kind is required")
	}
	m, err := ParseArgs(Kind(kind), obj)
	if err != nil {
		return Mutation{}, err
	}
	if _, present := obj["target"]; present {
		if m.Target, err = principalArg(obj, "target"); err != nil {
			return Mutation{}, err
		}
	}
	return m, nil
}

func principalArg(args ir.Object, key string) (ir.Principal, error) {
	s, ok := args.Str(key)
	if !ok {
		return ir.ZeroPrincipal, ir.NewValidation(key, key+" is required")
	}
	p, err := ir.ParsePrincipal(s)
	if err != nil {
		return ir.ZeroPrincipal, ir.NewValidation(key, err.Error())
	}
	return p, nil
}

// MetadataArg reads an optional digest argument. A missing key or "" is
// the empty digest.
func MetadataArg(args ir.Object, key string) (digest.Digest, error) {
	v, present := args[key]
	if !present {
		return digest.Digest{}, nil
	}
	s, ok := v.(ir.String)
	if !ok {
		return digest.Digest{}, ir.NewValidation(key, key+" must be a content identifier string")
	}
	if s == "" {
		return digest.Digest{}, nil
	}
	return digest.Parse(string(s))
}

func permissionsArg(args ir.Object, key string) (permission.Mask, error) {
	switch v := args[key].(type) {
	case nil:
		return permission.None, nil
	case ir.String:
		return permission.Parse(string(v))
	case ir.Int:
		if v < 0 || v > 0xffff {
			return permission.None, ir.NewValidation(key, fmt.Sprintf("mask %d out of range", v))
		}
		m := permission.Mask(v)
		return m, m.Validate()
	default:
		return permission.None, ir.NewValidation(key, "permissions must be a string or integer")
	}
}
