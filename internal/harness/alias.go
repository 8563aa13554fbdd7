package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/kelsen/internal/ir"
)

// aliases maps scenario names to principals and back. Unknown names are
// derived with ir.PrincipalFromName on first use, the same derivation
// charters apply to plain-name entries.
type aliases struct {
	byName map[string]ir.Principal
	byHex  map[string]string
}

func newAliases() *aliases {
	return &aliases{byName: map[string]ir.Principal{}, byHex: map[string]string{}}
}

// bind names p. A later binding of the same name wins; an address keeps
// the first name it was given.
func (a *aliases) bind(name string, p ir.Principal) {
	a.byName[name] = p
	if _, ok := a.byHex[p.Hex()]; !ok {
		a.byHex[p.Hex()] = name
	}
}

// principal resolves "name", "$name" or a hex address.
func (a *aliases) principal(ref string) (ir.Principal, error) {
	name := strings.TrimPrefix(ref, "$")
	if name == "" {
		return ir.ZeroPrincipal, fmt.Errorf("empty principal reference")
	}
	if p, ok := a.byName[name]; ok {
		return p, nil
	}
	if strings.HasPrefix(name, "0x") {
		return ir.ParsePrincipal(name)
	}
	p := ir.PrincipalFromName(name)
	a.bind(name, p)
	return p, nil
}

// resolve replaces every "$name" string in v with the hex address and
// converts the result to an ir.Value.
func (a *aliases) resolve(v any) (ir.Value, error) {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "$") {
			p, err := a.principal(val)
			if err != nil {
				return nil, err
			}
			return ir.String(p.Hex()), nil
		}
	case []any:
		out := make(ir.List, len(val))
		for i, elem := range val {
			ev, err := a.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		return a.resolveObject(val)
	}
	return ir.FromGo(v)
}

func (a *aliases) resolveObject(m map[string]any) (ir.Object, error) {
	out := make(ir.Object, len(m))
	for k, v := range m {
		ev, err := a.resolve(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = ev
	}
	return out, nil
}

// name renders p as "$alias", or as hex when it has none.
func (a *aliases) name(p ir.Principal) string {
	if name, ok := a.byHex[p.Hex()]; ok {
		return "$" + name
	}
	return p.Hex()
}

// render converts an ir.Object back into plain data with known addresses
// shown as "$alias".
func (a *aliases) render(obj ir.Object) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = a.renderValue(v)
	}
	return out
}

func (a *aliases) renderValue(v ir.Value) any {
	switch val := v.(type) {
	case ir.String:
		if name, ok := a.byHex[string(val)]; ok {
			return "$" + name
		}
		return string(val)
	case ir.List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = a.renderValue(elem)
		}
		return out
	case ir.Object:
		return a.render(val)
	}
	return ir.ToGo(v)
}
