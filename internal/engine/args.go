package engine

import (
	"fmt"

	"github.com/roach88/kelsen/internal/digest"
	"github.com/roach88/kelsen/internal/ir"
	"github.com/roach88/kelsen/internal/organ"
)

// Argument decoding for engine actions. Principals travel as hex strings,
// metadata as content identifiers, integers as JSON integers.

func stringArg(args ir.Object, key string) (string, error) {
	s, ok := args.Str(key)
	if !ok {
		return "", ir.NewValidation(key, key+" is required")
	}
	return s, nil
}

func principalArg(args ir.Object, key string) (ir.Principal, error) {
	s, err := stringArg(args, key)
	if err != nil {
		return ir.ZeroPrincipal, err
	}
	p, err := ir.ParsePrincipal(s)
	if err != nil {
		return ir.ZeroPrincipal, ir.NewValidation(key, err.Error())
	}
	return p, nil
}

// optionalPrincipal returns the zero principal when key is absent.
func optionalPrincipal(args ir.Object, key string) (ir.Principal, error) {
	if _, present := args[key]; !present {
		return ir.ZeroPrincipal, nil
	}
	return principalArg(args, key)
}

func intArg(args ir.Object, key string) (int64, error) {
	switch v := args[key].(type) {
	case ir.Int:
		return int64(v), nil
	case nil:
		return 0, ir.NewValidation(key, key+" is required")
	default:
		return 0, ir.NewValidation(key, key+" must be an integer")
	}
}

func optionalInt(args ir.Object, key string, def int64) (int64, error) {
	if _, present := args[key]; !present {
		return def, nil
	}
	return intArg(args, key)
}

func optionalBool(args ir.Object, key string, def bool) (bool, error) {
	switch v := args[key].(type) {
	case nil:
		return def, nil
	case ir.Bool:
		return bool(v), nil
	default:
		return false, ir.NewValidation(key, key+" must be a boolean")
	}
}

// metadataArgs reads "metadata" as a content identifier or, failing that,
// derives one from "name" the way deployment tooling anchors
// {"name": ...} documents.
func metadataArgs(args ir.Object) (digest.Digest, error) {
	if _, present := args["metadata"]; present {
		return organ.MetadataArg(args, "metadata")
	}
	name, ok := args.Str("name")
	if !ok || name == "" {
		return digest.Digest{}, nil
	}
	return NameDigest(name)
}

// NameDigest is the sha2-256 digest of the canonical {"name": name}
// document.
func NameDigest(name string) (digest.Digest, error) {
	doc, err := ir.MarshalCanonical(map[string]any{"name": name})
	if err != nil {
		return digest.Digest{}, ir.NewValidation("name", err.Error())
	}
	return digest.Sum(doc), nil
}

func payloadArg(args ir.Object) (organ.Mutation, error) {
	obj, ok := args.Obj("payload")
	if !ok {
		return organ.Mutation{}, ir.NewValidation("payload", "payload object is required")
	}
	return organ.ParseObject(obj)
}

func indexResult(i int) ir.Object {
	return ir.Object{"index": ir.Int(i)}
}

func principalResult(key string, p ir.Principal) ir.Object {
	return ir.Object{key: ir.String(p.Hex())}
}

func idResult(key string, id int64) ir.Object {
	return ir.Object{key: ir.Int(id)}
}

func kindMismatch(target ir.Principal, want, got string) error {
	return ir.NewValidation("target", fmt.Sprintf("%s is a %s, not a %s", target.Hex(), got, want))
}
