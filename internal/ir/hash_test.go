package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInvocation() Invocation {
	return Invocation{
		FlowToken: "flow-1",
		Caller:    PrincipalFromName("alice"),
		Target:    PrincipalFromName("council"),
		Action:    "Organ.addEntry",
		Args:      Object{"address": String("0x01"), "metadata": String("Qm")},
		Seq:       1,
		At:        1700000000,
	}
}

func TestInvocationIDDeterminism(t *testing.T) {
	id1, err := InvocationID(sampleInvocation())
	require.NoError(t, err)
	id2, err := InvocationID(sampleInvocation())
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestInvocationIDChangesWithInput(t *testing.T) {
	base := MustInvocationID(sampleInvocation())

	mutations := map[string]func(*Invocation){
		"flow":   func(i *Invocation) { i.FlowToken = "flow-2" },
		"parent": func(i *Invocation) { i.ParentID = "abc" },
		"caller": func(i *Invocation) { i.Caller = PrincipalFromName("bob") },
		"target": func(i *Invocation) { i.Target = PrincipalFromName("board") },
		"action": func(i *Invocation) { i.Action = "Organ.removeEntry" },
		"args":   func(i *Invocation) { i.Args = Object{"index": Int(0)} },
		"seq":    func(i *Invocation) { i.Seq = 2 },
		"at":     func(i *Invocation) { i.At++ },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			inv := sampleInvocation()
			mutate(&inv)
			assert.NotEqual(t, base, MustInvocationID(inv))
		})
	}
}

func TestInvocationIDIgnoresStoredID(t *testing.T) {
	inv := sampleInvocation()
	before := MustInvocationID(inv)
	inv.ID = before
	assert.Equal(t, before, MustInvocationID(inv))
}

func TestInvocationIDNilArgsEqualsEmpty(t *testing.T) {
	a := sampleInvocation()
	a.Args = nil
	b := sampleInvocation()
	b.Args = Object{}
	assert.Equal(t, MustInvocationID(a), MustInvocationID(b))
}

func TestCompletionIDLinksToInvocation(t *testing.T) {
	result := Object{"index": Int(0)}

	id1, err := CompletionID("inv-1", CaseSuccess, result, 2)
	require.NoError(t, err)
	id2, err := CompletionID("inv-2", CaseSuccess, result, 2)
	require.NoError(t, err)
	id3, err := CompletionID("inv-1", string(ErrCodeUnauthorized), result, 2)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestHashWithDomainSeparator(t *testing.T) {
	data := []byte("payload")

	h := sha256.New()
	h.Write([]byte(DomainCompletion))
	h.Write([]byte{0})
	h.Write(data)

	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), hashWithDomain(DomainCompletion, data))
	assert.NotEqual(t, hashWithDomain(DomainInvocation, data), hashWithDomain(DomainCompletion, data))
}

func TestMustInvocationIDPanicsOnBadArgs(t *testing.T) {
	inv := sampleInvocation()
	inv.Args = Object{"bad": nil}
	assert.Panics(t, func() { MustInvocationID(inv) })
}
