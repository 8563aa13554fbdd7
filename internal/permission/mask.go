// Package permission defines the capability bitmask a procedure holds on
// an organ.
//
// Bit layout (fixed, part of the external interface):
//
//	0 CAN_ADD_ENTRY
//	1 CAN_REMOVE_ENTRY
//	2 CAN_REPLACE_ENTRY
//	3 CAN_ADD_PROCEDURE
//	4 CAN_REMOVE_PROCEDURE
//	5 CAN_REPLACE_PROCEDURE
//	6 CAN_SET_METADATA
//
// Bits 7 through 15 are undefined and rejected by Validate.
package permission

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/kelsen/internal/ir"
)

// Mask is a set of capabilities.
type Mask uint16

const (
	CanAddEntry Mask = 1 << iota
	CanRemoveEntry
	CanReplaceEntry
	CanAddProcedure
	CanRemoveProcedure
	CanReplaceProcedure
	CanSetMetadata
)

// None grants nothing. All grants every defined capability.
const (
	None Mask = 0
	All  Mask = CanAddEntry | CanRemoveEntry | CanReplaceEntry |
		CanAddProcedure | CanRemoveProcedure | CanReplaceProcedure | CanSetMetadata
)

var names = []struct {
	bit  Mask
	name string
}{
	{CanAddEntry, "CAN_ADD_ENTRY"},
	{CanRemoveEntry, "CAN_REMOVE_ENTRY"},
	{CanReplaceEntry, "CAN_REPLACE_ENTRY"},
	{CanAddProcedure, "CAN_ADD_PROCEDURE"},
	{CanRemoveProcedure, "CAN_REMOVE_PROCEDURE"},
	{CanReplaceProcedure, "CAN_REPLACE_PROCEDURE"},
	{CanSetMetadata, "CAN_SET_METADATA"},
}

// Satisfies reports whether mask holds every bit of required. An empty
// requirement is satisfied by any mask.
func Satisfies(mask, required Mask) bool {
	return mask&required == required
}

// Union combines two masks.
func Union(a, b Mask) Mask {
	return a | b
}

// IsEmpty reports whether mask grants nothing.
func IsEmpty(mask Mask) bool {
	return mask == None
}

// Satisfies is the method form of the package function.
func (m Mask) Satisfies(required Mask) bool { return Satisfies(m, required) }

// Validate rejects undefined bits.
func (m Mask) Validate() error {
	if extra := m &^ All; extra != 0 {
		return ir.NewValidation("permissions", fmt.Sprintf("undefined permission bits %#04x", uint16(extra)))
	}
	return nil
}

// Names lists the capability names held by m in bit order.
func (m Mask) Names() []string {
	var out []string
	for _, n := range names {
		if m&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

// String renders m as "CAN_X|CAN_Y", "NONE", or "ALL". Undefined bits are
// appended in hex.
func (m Mask) String() string {
	switch {
	case m == None:
		return "NONE"
	case m == All:
		return "ALL"
	}
	parts := m.Names()
	if extra := m &^ All; extra != 0 {
		parts = append(parts, fmt.Sprintf("%#04x", uint16(extra)))
	}
	return strings.Join(parts, "|")
}

// Parse accepts capability names joined by "|" or ",", the words ALL and
// NONE, or a hex/decimal number. Names are case-insensitive and the CAN_
// prefix is optional. The legacy "0xffff" admin mask maps to ALL.
func Parse(s string) (Mask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return None, nil
	}
	if isNumeric(s) {
		n, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return None, ir.NewValidation("permissions", fmt.Sprintf("invalid mask %q", s))
		}
		if n == 0xffff {
			return All, nil
		}
		m := Mask(n)
		return m, m.Validate()
	}

	var m Mask
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		bit, err := parseName(tok)
		if err != nil {
			return None, err
		}
		m |= bit
	}
	return m, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Mask {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func parseName(tok string) (Mask, error) {
	name := strings.ToUpper(strings.TrimSpace(tok))
	switch name {
	case "ALL":
		return All, nil
	case "NONE":
		return None, nil
	}
	if !strings.HasPrefix(name, "CAN_") {
		name = "CAN_" + name
	}
	for _, n := range names {
		if n.name == name {
			return n.bit, nil
		}
	}
	return None, ir.NewValidation("permissions", fmt.Sprintf("unknown capability %q", tok))
}

func isNumeric(s string) bool {
	return s[0] >= '0' && s[0] <= '9'
}

// MarshalText renders the mask by name.
func (m Mask) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts anything Parse accepts.
func (m *Mask) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
