package state

import (
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tubbly/core/ledger"
)

// Address is a deterministic 32-byte storage location derived from a seed tag
// plus entity key material.
type Address [32]byte

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Seed tags. The byte layout is fixed for compatibility with existing stored
// data: requests are keyed by the little-endian 16-byte id, user balances by
// the raw 32-byte identity.
var (
	stateSeed   = []byte("state")
	requestSeed = []byte("request")
	userSeed    = []byte("user")
)

// Derive hashes the seed parts into a storage address. The same parts always
// yield the same address; distinct parts collide only with keccak256's
// negligible probability.
func Derive(parts ...[]byte) Address {
	var addr Address
	copy(addr[:], ethcrypto.Keccak256(parts...))
	return addr
}

// StateAddress returns the singleton ProgramState location.
func StateAddress() Address {
	return Derive(stateSeed)
}

// RequestAddress returns the location of the request with the given id.
func RequestAddress(id ledger.RequestID) Address {
	return Derive(requestSeed, id[:])
}

// UserAddress returns the location of the balance record for an identity.
func UserAddress(user ledger.Identity) Address {
	return Derive(userSeed, user[:])
}

// CheckAddress validates a caller-supplied address against the derived one.
// Instructions re-derive their target locations and refuse to touch anything
// else, so a caller cannot point an instruction at an unrelated account.
func CheckAddress(supplied, derived Address) error {
	if supplied != derived {
		return ledger.ErrAddressMismatch
	}
	return nil
}
