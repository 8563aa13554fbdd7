package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed ids. The version suffix leaves
// room for an algorithm change.
const (
	DomainInvocation = "kelsen/invocation/v1"
	DomainCompletion = "kelsen/completion/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID computes the content-addressed id of an invocation. The id
// covers everything that determines the call's effect, so replaying a
// journal reproduces identical ids.
func InvocationID(inv Invocation) (string, error) {
	args := inv.Args
	if args == nil {
		args = Object{}
	}
	obj := Object{
		"flow_token": String(inv.FlowToken),
		"parent_id":  String(inv.ParentID),
		"caller":     String(inv.Caller.Hex()),
		"target":     String(inv.Target.Hex()),
		"action":     String(inv.Action),
		"args":       args,
		"seq":        Int(inv.Seq),
		"at":         Int(inv.At),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("invocation id: %w", err)
	}
	return hashWithDomain(DomainInvocation, canonical), nil
}

// CompletionID computes the content-addressed id of a completion.
func CompletionID(invocationID, outputCase string, result Object, seq int64) (string, error) {
	if result == nil {
		result = Object{}
	}
	obj := Object{
		"invocation_id": String(invocationID),
		"output_case":   String(outputCase),
		"result":        result,
		"seq":           Int(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("completion id: %w", err)
	}
	return hashWithDomain(DomainCompletion, canonical), nil
}

// MustInvocationID is like InvocationID but panics on error. Tests only.
func MustInvocationID(inv Invocation) string {
	id, err := InvocationID(inv)
	if err != nil {
		panic(err)
	}
	return id
}
