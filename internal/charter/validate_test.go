package charter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/permission"
	"github.com/roach88/kelsen/internal/registry"
	"github.com/roach88/kelsen/internal/testutil"
)

// validCharter is a small charter Validate accepts.
func validCharter() *Charter {
	return &Charter{
		Factories: []Factory{
			{Name: "nom", Kind: registry.KindSimpleNomination, Version: 1},
			{Name: "elect", Kind: registry.KindCyclicalElection, Version: 1},
		},
		Organs: []Organ{{Key: "admins", Name: "Admins"}, {Key: "chair"}},
		Procedures: []Procedure{
			{Key: "seat", Factory: "nom", Nominators: "admins", Target: "admins"},
			{Key: "elect", Factory: "elect", Voters: "admins", Target: "chair", NominationWindow: 10, VotingWindow: 10, Period: 20},
		},
		Install: []Install{{Organ: "admins", Procedure: "seat", Permissions: permission.All}},
		Entries: []Entry{{Organ: "admins", Address: testutil.Principal("alice"), Name: "Alice"}},
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.Empty(t, Validate(validCharter()))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Charter)
		code   string
		field  string
	}{
		{"duplicate factory", func(c *Charter) {
			c.Factories = append(c.Factories, Factory{Name: "nom", Kind: registry.KindSimpleNomination})
		}, ErrDuplicateName, "factories.nom"},
		{"unknown kind", func(c *Charter) {
			c.Factories[0].Kind = "lottery"
		}, ErrUnknownKind, "factories.nom.kind"},
		{"duplicate organ", func(c *Charter) {
			c.Organs = append(c.Organs, Organ{Key: "chair"})
		}, ErrDuplicateName, "organs.chair"},
		{"unknown factory", func(c *Charter) {
			c.Procedures[0].Factory = "missing"
		}, ErrUnknownFactory, "procedures.seat.factory"},
		{"unknown organ reference", func(c *Charter) {
			c.Procedures[0].Target = "ghosts"
		}, ErrUnknownOrgan, "procedures.seat.target"},
		{"missing organ reference", func(c *Charter) {
			c.Procedures[0].Nominators = ""
		}, ErrMissingOrgan, "procedures.seat.nominators"},
		{"period too short", func(c *Charter) {
			c.Procedures[1].Period = 5
		}, ErrInvalidTiming, "procedures.elect.period"},
		{"install unknown procedure", func(c *Charter) {
			c.Install[0].Procedure = "nope"
		}, ErrUnknownProcedure, "install[0].procedure"},
		{"install unknown organ", func(c *Charter) {
			c.Install[0].Organ = "nope"
		}, ErrUnknownOrgan, "install[0].organ"},
		{"duplicate install", func(c *Charter) {
			c.Install = append(c.Install, c.Install[0])
		}, ErrDuplicateInstall, "install[1]"},
		{"bad permissions", func(c *Charter) {
			c.Install[0].Permissions = 0x100
		}, ErrBadPermissions, "install[0].permissions"},
		{"zero entry address", func(c *Charter) {
			c.Entries[0].Address = ir.ZeroPrincipal
		}, ErrZeroAddress, "entries[0].address"},
		{"malformed metadata", func(c *Charter) {
			c.Organs[1].Metadata = "not-a-cid!"
		}, ErrMalformedMetadata, "organs.chair.metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCharter()
			tt.mutate(c)
			errs := Validate(c)
			require.Len(t, errs, 1, "%v", errs)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

func TestValidate_VoteWithoutVetoers(t *testing.T) {
	c := validCharter()
	c.Factories = append(c.Factories, Factory{Name: "vote", Kind: registry.KindVote, Version: 1})
	c.Procedures = append(c.Procedures, Procedure{Key: "ballot", Factory: "vote", Voters: "admins", Enactors: "admins", Target: "chair"})
	assert.Empty(t, Validate(c))

	c.Procedures[2].VetoDuration = -1
	errs := Validate(c)
	require.Len(t, errs, 1, "%v", errs)
	assert.Equal(t, ErrInvalidTiming, errs[0].Code)
	assert.Equal(t, "procedures.ballot.veto_duration", errs[0].Field)
}

func TestValidate_CollectsAll(t *testing.T) {
	c := validCharter()
	c.Procedures[0].Factory = "missing"
	c.Entries[0].Organ = "nowhere"
	errs := Validate(c)
	require.Len(t, errs, 2)
	assert.Equal(t, ErrUnknownFactory, errs[0].Code)
	assert.Equal(t, ErrUnknownOrgan, errs[1].Code)
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "organs.x", Message: "duplicate organ", Code: ErrDuplicateName, Line: 4}
	assert.Equal(t, "[E201] line 4: organs.x: duplicate organ", e.Error())
	e.Line = 0
	assert.Equal(t, "[E201] organs.x: duplicate organ", e.Error())
}
