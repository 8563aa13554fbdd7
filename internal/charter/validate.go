package charter

import (
	"fmt"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/registry"
)

// Validation error codes (E200-E299)
const (
	ErrDuplicateName     = "E201" // factory, organ or procedure declared twice
	ErrUnknownKind       = "E202" // factory kind is not a procedure kind
	ErrUnknownFactory    = "E203" // procedure names an undeclared factory
	ErrUnknownOrgan      = "E204" // reference to an undeclared organ
	ErrUnknownProcedure  = "E205" // install names an undeclared procedure
	ErrMissingOrgan      = "E206" // procedure kind needs an organ reference
	ErrInvalidTiming     = "E207" // quorum, duration or window out of range
	ErrZeroAddress       = "E208" // entry address is zero
	ErrDuplicateInstall  = "E209" // same procedure installed twice on an organ
	ErrMalformedMetadata = "E210" // metadata is not a content identifier
	ErrBadPermissions    = "E211" // mask has bits outside the capability set
)

// ValidationError is one semantic problem in a compiled charter.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// requiredOrgans lists the organ references each kind cannot do without.
var requiredOrgans = map[registry.Kind][]string{
	registry.KindSimpleNomination: {"nominators", "target"},
	registry.KindVote:             {"voters", "enactors", "target"},
	registry.KindCyclicalElection: {"voters", "target"},
}

// Validate checks cross references and per-kind configuration. It returns
// every problem found rather than stopping at the first.
func Validate(c *Charter) []ValidationError {
	var errs []ValidationError
	add := func(code, field string, line int, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code, Line: line})
	}

	factories := map[string]registry.Kind{}
	for _, f := range c.Factories {
		field := "factories." + f.Name
		if _, dup := factories[f.Name]; dup {
			add(ErrDuplicateName, field, f.Line, "duplicate factory %q", f.Name)
		}
		factories[f.Name] = f.Kind
		if !f.Kind.Valid() {
			add(ErrUnknownKind, field+".kind", f.Line, "unknown procedure kind %q", f.Kind)
		}
	}

	organs := map[string]bool{}
	for _, o := range c.Organs {
		field := "organs." + o.Key
		if organs[o.Key] {
			add(ErrDuplicateName, field, o.Line, "duplicate organ %q", o.Key)
		}
		organs[o.Key] = true
		if err := checkMetadata(o.Metadata); err != nil {
			add(ErrMalformedMetadata, field+".metadata", o.Line, "%v", err)
		}
	}

	procedures := map[string]bool{}
	for _, p := range c.Procedures {
		field := "procedures." + p.Key
		if procedures[p.Key] {
			add(ErrDuplicateName, field, p.Line, "duplicate procedure %q", p.Key)
		}
		procedures[p.Key] = true

		refs := p.OrganRefs()
		for key, ref := range sortedRefs(refs) {
			if !organs[ref] {
				add(ErrUnknownOrgan, field+"."+key, p.Line, "unknown organ %q", ref)
			}
		}

		kind, ok := factories[p.Factory]
		if !ok {
			add(ErrUnknownFactory, field+".factory", p.Line, "unknown factory %q", p.Factory)
			continue
		}
		for _, key := range requiredOrgans[kind] {
			if refs[key] == "" {
				add(ErrMissingOrgan, field+"."+key, p.Line, "%s procedures need %s", kind, key)
			}
		}
		errs = append(errs, validateTiming(kind, p, field)...)
	}

	installed := map[[2]string]bool{}
	for i, in := range c.Install {
		field := fmt.Sprintf("install[%d]", i)
		if !organs[in.Organ] {
			add(ErrUnknownOrgan, field+".organ", in.Line, "unknown organ %q", in.Organ)
		}
		if !procedures[in.Procedure] {
			add(ErrUnknownProcedure, field+".procedure", in.Line, "unknown procedure %q", in.Procedure)
		}
		pair := [2]string{in.Organ, in.Procedure}
		if installed[pair] {
			add(ErrDuplicateInstall, field, in.Line, "%q is already installed on %q", in.Procedure, in.Organ)
		}
		installed[pair] = true
		if err := in.Permissions.Validate(); err != nil {
			add(ErrBadPermissions, field+".permissions", in.Line, "%v", err)
		}
	}

	for i, e := range c.Entries {
		field := fmt.Sprintf("entries[%d]", i)
		if !organs[e.Organ] {
			add(ErrUnknownOrgan, field+".organ", e.Line, "unknown organ %q", e.Organ)
		}
		if ir.IsZero(e.Address) {
			add(ErrZeroAddress, field+".address", e.Line, "entry address must not be zero")
		}
		if err := checkMetadata(e.Metadata); err != nil {
			add(ErrMalformedMetadata, field+".metadata", e.Line, "%v", err)
		}
	}
	return errs
}

func validateTiming(kind registry.Kind, p Procedure, field string) []ValidationError {
	var errs []ValidationError
	bad := func(key, msg string) {
		errs = append(errs, ValidationError{Field: field + "." + key, Message: msg, Code: ErrInvalidTiming, Line: p.Line})
	}
	switch kind {
	case registry.KindVote:
		if p.QuorumPercent < 0 || p.QuorumPercent > 100 {
			bad("quorum_percent", fmt.Sprintf("quorum %d is not a percentage", p.QuorumPercent))
		}
		if p.VoteDuration < 0 {
			bad("vote_duration", "vote duration must not be negative")
		}
		if p.VetoDuration < 0 {
			bad("veto_duration", "veto duration must not be negative")
		}
	case registry.KindCyclicalElection:
		if p.NominationWindow <= 0 {
			bad("nomination_window", "nomination window must be positive")
		}
		if p.VotingWindow <= 0 {
			bad("voting_window", "voting window must be positive")
		}
		if p.Period < p.NominationWindow+p.VotingWindow {
			bad("period", fmt.Sprintf("period %d is shorter than one cycle", p.Period))
		}
	}
	return errs
}

func checkMetadata(s string) error {
	if s == "" {
		return nil
	}
	_, err := digest.Parse(s)
	return err
}

// sortedRefs iterates refs in argument-name order so reports are stable.
func sortedRefs(refs map[string]string) func(yield func(string, string) bool) {
	return func(yield func(string, string) bool) {
		for _, key := range []string{"nominators", "voters", "vetoers", "enactors", "target"} {
			ref, ok := refs[key]
			if !ok {
				continue
			}
			if !yield(key, ref) {
				return
			}
		}
	}
}
