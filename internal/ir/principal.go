package ir

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Principal is an authenticated caller identity. Organs, procedures,
// factories and the registry itself are principals too.
type Principal = common.Address

// ZeroPrincipal is the empty sentinel stored in tombstoned slots.
var ZeroPrincipal Principal

// DeriveAddress returns the address of the nonce-th component created by
// creator, following the EVM CREATE rule.
func DeriveAddress(creator Principal, nonce uint64) Principal {
	return crypto.CreateAddress(creator, nonce)
}

// ParsePrincipal accepts a 0x-prefixed (or bare) 40 digit hex address.
func ParsePrincipal(s string) (Principal, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return ZeroPrincipal, NewValidation("principal", fmt.Sprintf("%q is not a 20-byte hex address", s))
	}
	return common.HexToAddress(s), nil
}

// PrincipalFromName derives a stable test or charter principal from a
// human readable name.
func PrincipalFromName(name string) Principal {
	return common.BytesToAddress(crypto.Keccak256([]byte(name)))
}

// IsZero reports whether p is the empty sentinel.
func IsZero(p Principal) bool {
	return p == ZeroPrincipal
}
