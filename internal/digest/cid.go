package digest

import (
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"

	"github.com/roach88/kelsen/internal/ir"
)

// CID wraps d as a CIDv1 with the raw codec, the form IPFS gateways serve
// metadata blobs under.
func (d Digest) CID() cid.Cid {
	return cid.NewCidV1(cid.Raw, d.Multihash())
}

// CIDString renders the CIDv1 in the given multibase encoding.
func (d Digest) CIDString(enc multibase.Encoding) (string, error) {
	return d.CID().StringOfBase(enc)
}

// FromCID extracts the digest from a CIDv0 or CIDv1 string in any
// multibase.
func FromCID(s string) (Digest, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return Digest{}, ir.NewMalformedDigest(s, "invalid cid: "+err.Error())
	}
	d, err := fromMultihash(c.Hash())
	if err != nil {
		return Digest{}, ir.NewMalformedDigest(s, err.Error())
	}
	return d, nil
}

// Parse accepts either a bare external identifier or a CID string. Bare
// base58 identifiers (including CIDv0 "Qm..." strings) take precedence.
func Parse(s string) (Digest, error) {
	s = strings.TrimSpace(s)
	d, err := FromExternalID(s)
	if err == nil {
		return d, nil
	}
	if dc, cerr := FromCID(s); cerr == nil {
		return dc, nil
	}
	return Digest{}, err
}

// EncodingByName resolves a multibase name such as "base32" or
// "base58btc".
func EncodingByName(name string) (multibase.Encoding, error) {
	enc, err := multibase.EncoderByName(name)
	if err != nil {
		return 0, ir.NewValidation("encoding", err.Error())
	}
	return enc.Encoding(), nil
}
