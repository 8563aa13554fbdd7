package queryir

import (
	"github.com/roach88/kelsen/internal/ir"
)

// Field names a journal attribute a predicate can test.
type Field string

const (
	FieldFlow   Field = "flow"   // flow token
	FieldParent Field = "parent" // parent invocation id, "" for top-level calls
	FieldCaller Field = "caller"
	FieldTarget Field = "target"
	FieldAction Field = "action"
	FieldCase   Field = "case" // completion output case
	FieldSeq    Field = "seq"  // invocation seq
	FieldAt     Field = "at"   // logical time of the call
)

// Fields lists every field in a stable order.
var Fields = []Field{FieldFlow, FieldParent, FieldCaller, FieldTarget, FieldAction, FieldCase, FieldSeq, FieldAt}

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Numeric reports whether f holds integers.
func (f Field) Numeric() bool {
	return f == FieldSeq || f == FieldAt
}

// Principal reports whether f holds an address.
func (f Field) Principal() bool {
	return f == FieldCaller || f == FieldTarget
}

// Query is a journal query.
//
// Query types:
//   - Select: matching records
//   - Count: number of matching records
type Query interface {
	queryNode()
}

// Predicate is a filter over one record.
//
// Predicate types:
//   - Equals: field = value
//   - Range: from <= field <= to
//   - And: all predicates hold
//   - Or: at least one predicate holds
type Predicate interface {
	predicateNode()
}

// Select returns the records matching Filter.
//
//	SELECT <record> FROM journal WHERE <filter> ORDER BY seq LIMIT <limit>
type Select struct {
	Filter     Predicate // nil matches every record
	Limit      int       // 0 means no limit
	Descending bool      // newest first
}

func (Select) queryNode() {}

// Count returns how many records match Filter.
type Count struct {
	Filter Predicate
}

func (Count) queryNode() {}

// Equals holds when the field equals Value. String fields take ir.String,
// numeric fields ir.Int. Caller and target accept a hex address as
// ir.String.
type Equals struct {
	Field Field
	Value ir.Value
}

func (Equals) predicateNode() {}

// Range holds when a numeric field lies in [From, To]. A zero bound is
// open.
type Range struct {
	Field Field
	From  int64
	To    int64
}

func (Range) predicateNode() {}

// And holds when every predicate holds. Empty is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or holds when any predicate holds. Empty is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// TopLevel matches externally issued calls.
func TopLevel() Predicate {
	return Equals{Field: FieldParent, Value: ir.String("")}
}

// All conjoins the non-nil predicates, returning nil when none remain.
func All(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return And{Predicates: out}
}
