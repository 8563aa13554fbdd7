package testutil

import (
	"strings"

	"github.com/roach88/kelsen/internal/ir"
)

// Principal derives a stable address from a readable name, so tests can
// say "alice" instead of a hex literal. Hex addresses pass through.
func Principal(name string) ir.Principal {
	if strings.HasPrefix(name, "0x") {
		if p, err := ir.ParsePrincipal(name); err == nil {
			return p
		}
	}
	return ir.PrincipalFromName(name)
}

// Principals maps each name to its Principal.
func Principals(names ...string) map[string]ir.Principal {
	out := make(map[string]ir.Principal, len(names))
	for _, n := range names {
		out[n] = Principal(n)
	}
	return out
}
