// Package digest implements the self-describing content digests used to
// anchor organ, entry and procedure metadata stored off-engine.
//
// A Digest is a multihash triple (function code, size, hash bytes). Its
// external identifier is base58btc(varint(fn) || varint(size) || hash),
// which for sha2-256 digests is exactly an IPFS CIDv0 string.
package digest

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"
	"github.com/multiformats/go-varint"

	"github.com/roach88/kelsen/internal/ir"
)

// Common multihash function codes.
const (
	SHA2_256 = uint8(multihash.SHA2_256)
	SHA2_512 = uint8(multihash.SHA2_512)
	Identity = uint8(multihash.IDENTITY)
)

// Digest is a multihash triple. The zero value is the empty digest used by
// tombstoned entries.
type Digest struct {
	Function uint8
	Size     uint8
	Hash     []byte
}

// Encode validates and builds a Digest.
func Encode(function, size uint8, hash []byte) (Digest, error) {
	if len(hash) != int(size) {
		return Digest{}, ir.NewValidation("hash",
			fmt.Sprintf("hash is %d bytes, size says %d", len(hash), size))
	}
	return Digest{Function: function, Size: size, Hash: cloneHash(hash)}, nil
}

// MustEncode is like Encode but panics on error.
func MustEncode(function, size uint8, hash []byte) Digest {
	d, err := Encode(function, size, hash)
	if err != nil {
		panic(err)
	}
	return d
}

// Sum hashes a metadata blob with sha2-256.
func Sum(data []byte) Digest {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// sha2-256 is always registered
		panic(err)
	}
	d, err := fromMultihash(mh)
	if err != nil {
		panic(err)
	}
	return d
}

// IsEmpty reports whether d is the zero digest.
func (d Digest) IsEmpty() bool {
	return d.Function == 0 && d.Size == 0 && len(d.Hash) == 0
}

// Equal compares two digests by value.
func (d Digest) Equal(other Digest) bool {
	return d.Function == other.Function && d.Size == other.Size && bytes.Equal(d.Hash, other.Hash)
}

// Multihash returns the binary multihash framing of d.
func (d Digest) Multihash() multihash.Multihash {
	buf, err := multihash.Encode(d.Hash, uint64(d.Function))
	if err != nil {
		panic(err)
	}
	return buf
}

// ExternalID returns the base58btc external content identifier.
func (d Digest) ExternalID() string {
	return base58.Encode(d.Multihash())
}

// String returns the external identifier, or "" for the empty digest.
func (d Digest) String() string {
	if d.IsEmpty() {
		return ""
	}
	return d.ExternalID()
}

// FromExternalID parses an external content identifier. All failures are
// MalformedDigest errors.
func FromExternalID(s string) (Digest, error) {
	if s == "" {
		return Digest{}, ir.NewMalformedDigest(s, "empty identifier")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return Digest{}, ir.NewMalformedDigest(s, "invalid base58: "+err.Error())
	}
	d, err := decodeMultihash(raw)
	if err != nil {
		return Digest{}, ir.NewMalformedDigest(s, err.Error())
	}
	return d, nil
}

// MustFromExternalID is like FromExternalID but panics on error.
func MustFromExternalID(s string) Digest {
	d, err := FromExternalID(s)
	if err != nil {
		panic(err)
	}
	return d
}

// decodeMultihash reads varint(fn) || varint(size) || hash and requires
// the buffer to hold exactly size hash bytes.
func decodeMultihash(buf []byte) (Digest, error) {
	fn, n, err := varint.FromUvarint(buf)
	if err != nil {
		return Digest{}, fmt.Errorf("function code: %w", err)
	}
	buf = buf[n:]
	size, n, err := varint.FromUvarint(buf)
	if err != nil {
		return Digest{}, fmt.Errorf("size: %w", err)
	}
	buf = buf[n:]

	if fn > 0xff {
		return Digest{}, fmt.Errorf("function code %#x does not fit in a byte", fn)
	}
	if size > 0xff {
		return Digest{}, fmt.Errorf("size %d does not fit in a byte", size)
	}
	if uint64(len(buf)) != size {
		return Digest{}, fmt.Errorf("hash is %d bytes, size says %d", len(buf), size)
	}
	return Digest{Function: uint8(fn), Size: uint8(size), Hash: cloneHash(buf)}, nil
}

// cloneHash copies h, normalizing empty hashes to nil so that decoded and
// constructed empty digests compare equal.
func cloneHash(h []byte) []byte {
	if len(h) == 0 {
		return nil
	}
	return bytes.Clone(h)
}

func fromMultihash(mh multihash.Multihash) (Digest, error) {
	dec, err := multihash.Decode(mh)
	if err != nil {
		return Digest{}, err
	}
	if dec.Code > 0xff || dec.Length > 0xff {
		return Digest{}, fmt.Errorf("multihash %s/%d does not fit the digest triple", dec.Name, dec.Length)
	}
	return Digest{Function: uint8(dec.Code), Size: uint8(dec.Length), Hash: cloneHash(dec.Digest)}, nil
}

// MarshalText encodes d as its external identifier ("" when empty).
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts an external identifier or "".
func (d *Digest) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Digest{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
