package queryir

import (
	"fmt"

	"github.com/roach88/kelsen/internal/ir"
)

// Validate checks that q only uses known fields with values of the right
// type. It returns the first problem as an ir.Error with code VALIDATION.
func Validate(q Query) error {
	switch query := q.(type) {
	case Select:
		if query.Limit < 0 {
			return ir.NewValidation("limit", fmt.Sprintf("limit must not be negative, got %d", query.Limit))
		}
		return validatePredicate(query.Filter)
	case *Select:
		if query == nil {
			return ir.NewValidation("query", "nil query")
		}
		return Validate(*query)
	case Count:
		return validatePredicate(query.Filter)
	case *Count:
		if query == nil {
			return ir.NewValidation("query", "nil query")
		}
		return Validate(*query)
	case nil:
		return ir.NewValidation("query", "nil query")
	default:
		return ir.NewValidation("query", fmt.Sprintf("unsupported query type %T", q))
	}
}

func validatePredicate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Equals:
		return validateEquals(pred)
	case *Equals:
		return validateEquals(*pred)
	case Range:
		return validateRange(pred)
	case *Range:
		return validateRange(*pred)
	case And:
		return validateAll(pred.Predicates)
	case *And:
		return validateAll(pred.Predicates)
	case Or:
		return validateAll(pred.Predicates)
	case *Or:
		return validateAll(pred.Predicates)
	default:
		return ir.NewValidation("filter", fmt.Sprintf("unsupported predicate type %T", p))
	}
}

func validateAll(preds []Predicate) error {
	for _, p := range preds {
		if p == nil {
			return ir.NewValidation("filter", "nil predicate")
		}
		if err := validatePredicate(p); err != nil {
			return err
		}
	}
	return nil
}

func validateEquals(eq Equals) error {
	field := string(eq.Field)
	if !eq.Field.Valid() {
		return ir.NewValidation(field, fmt.Sprintf("unknown field %q", field))
	}
	switch v := eq.Value.(type) {
	case ir.Int:
		if !eq.Field.Numeric() {
			return ir.NewValidation(field, "takes a string, got an integer")
		}
	case ir.String:
		if eq.Field.Numeric() {
			return ir.NewValidation(field, "takes an integer, got a string")
		}
		if eq.Field.Principal() {
			if _, err := ir.ParsePrincipal(string(v)); err != nil {
				return ir.NewValidation(field, err.Error())
			}
		}
	default:
		return ir.NewValidation(field, "cannot be compared to "+typeName(eq.Value))
	}
	return nil
}

func validateRange(r Range) error {
	field := string(r.Field)
	if !r.Field.Valid() {
		return ir.NewValidation(field, fmt.Sprintf("unknown field %q", field))
	}
	if !r.Field.Numeric() {
		return ir.NewValidation(field, "range needs a numeric field")
	}
	if r.From != 0 && r.To != 0 && r.From > r.To {
		return ir.NewValidation(field, fmt.Sprintf("empty range %d..%d", r.From, r.To))
	}
	return nil
}

func typeName(v ir.Value) string {
	switch v.(type) {
	case nil:
		return "null"
	case ir.Bool:
		return "a boolean"
	case ir.List:
		return "a list"
	case ir.Object:
		return "an object"
	}
	return fmt.Sprintf("%T", v)
}
