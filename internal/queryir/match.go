package queryir

import "github.com/roach88/kelsen/internal/ir"

// Match evaluates p against one record in memory. A nil predicate matches.
// p must have passed Validate; unknown nodes never match.
func Match(p Predicate, rec ir.Record) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		return matchEquals(pred, rec)
	case *Equals:
		return matchEquals(*pred, rec)
	case Range:
		return matchRange(pred, rec)
	case *Range:
		return matchRange(*pred, rec)
	case And:
		return matchAnd(pred.Predicates, rec)
	case *And:
		return matchAnd(pred.Predicates, rec)
	case Or:
		return matchOr(pred.Predicates, rec)
	case *Or:
		return matchOr(pred.Predicates, rec)
	}
	return false
}

// Filter returns the records matching p, keeping their order.
func Filter(p Predicate, records []ir.Record) []ir.Record {
	out := []ir.Record{}
	for _, rec := range records {
		if Match(p, rec) {
			out = append(out, rec)
		}
	}
	return out
}

func matchAnd(preds []Predicate, rec ir.Record) bool {
	for _, p := range preds {
		if !Match(p, rec) {
			return false
		}
	}
	return true
}

func matchOr(preds []Predicate, rec ir.Record) bool {
	for _, p := range preds {
		if Match(p, rec) {
			return true
		}
	}
	return false
}

func matchEquals(eq Equals, rec ir.Record) bool {
	if eq.Field.Numeric() {
		n, ok := eq.Value.(ir.Int)
		return ok && numericValue(eq.Field, rec) == int64(n)
	}
	s, ok := eq.Value.(ir.String)
	if !ok {
		return false
	}
	if eq.Field.Principal() {
		return stringValue(eq.Field, rec) == PrincipalValue(string(s))
	}
	return stringValue(eq.Field, rec) == string(s)
}

func matchRange(r Range, rec ir.Record) bool {
	if !r.Field.Numeric() {
		return false
	}
	n := numericValue(r.Field, rec)
	if r.From != 0 && n < r.From {
		return false
	}
	if r.To != 0 && n > r.To {
		return false
	}
	return true
}

func stringValue(f Field, rec ir.Record) string {
	inv := rec.Invocation
	switch f {
	case FieldFlow:
		return inv.FlowToken
	case FieldParent:
		return inv.ParentID
	case FieldCaller:
		return inv.Caller.Hex()
	case FieldTarget:
		return inv.Target.Hex()
	case FieldAction:
		return inv.Action
	case FieldCase:
		return rec.Completion.OutputCase
	}
	return ""
}

func numericValue(f Field, rec ir.Record) int64 {
	switch f {
	case FieldSeq:
		return rec.Invocation.Seq
	case FieldAt:
		return rec.Invocation.At
	}
	return 0
}

// PrincipalValue renders an address the way the journal stores it, for
// backends that compare strings exactly. Unparseable input is returned
// unchanged so it simply fails to match.
func PrincipalValue(s string) string {
	p, err := ir.ParsePrincipal(s)
	if err != nil {
		return s
	}
	return p.Hex()
}
