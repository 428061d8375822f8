package ledger

import (
	"encoding/binary"
	"errors"
	"math"
	"math/big"
)

// Identity is a 32-byte public-key reference to an actor. The zero value is
// reserved and never a valid owner or caller.
type Identity [32]byte

// IsZero reports whether the identity is the reserved all-zero value.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// RequestID is the caller-chosen 128-bit request identifier. The byte order
// is the little-endian encoding of the numeric id, matching the stored seed
// layout.
type RequestID [16]byte

// RequestIDFromUint64 builds a RequestID from a small numeric id.
func RequestIDFromUint64(n uint64) RequestID {
	var id RequestID
	binary.LittleEndian.PutUint64(id[:8], n)
	return id
}

// RequestIDFromBig builds a RequestID from an arbitrary non-negative integer
// no wider than 128 bits.
func RequestIDFromBig(n *big.Int) (RequestID, error) {
	var id RequestID
	if n == nil || n.Sign() < 0 {
		return id, ErrInvalidRequestID
	}
	if n.BitLen() > 128 {
		return id, ErrInvalidRequestID
	}
	raw := n.Bytes() // big-endian
	for i, b := range raw {
		id[len(raw)-1-i] = b
	}
	return id, nil
}

// Big returns the numeric value of the request id.
func (r RequestID) Big() *big.Int {
	raw := make([]byte, len(r))
	for i, b := range r {
		raw[len(r)-1-i] = b
	}
	return new(big.Int).SetBytes(raw)
}

var (
	ErrUnauthorized       = errors.New("ledger: unauthorized")
	ErrAlreadyExists      = errors.New("ledger: account already exists")
	ErrNotFound           = errors.New("ledger: account not found")
	ErrAddressMismatch    = errors.New("ledger: supplied address does not match derived address")
	ErrRequestNotActive   = errors.New("ledger: request not active")
	ErrRequestStillActive = errors.New("ledger: request still active")
	ErrBalanceOverflow    = errors.New("ledger: balance overflow")
	ErrAlreadyInitialized = errors.New("ledger: already initialized")
	ErrInvalidAmount      = errors.New("ledger: amount must be positive")
	ErrInvalidRequestID   = errors.New("ledger: invalid request id")
	ErrZeroOwner          = errors.New("ledger: new owner is zero identity")
)

// ProgramState is the singleton control record. The owner authorizes confirm
// and change_ownership; the counter sequences submissions for observability.
type ProgramState struct {
	Owner          Identity
	RequestCounter uint64
}

// Request tracks a single numbered credit request from creation until the
// owner confirms it. Caller and Amount are immutable after creation; Active
// flips true -> false exactly once.
type Request struct {
	ID     RequestID
	Caller Identity
	Amount uint64
	Active bool
}

// Clone returns a copy safe for the caller to retain.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// UserBalance is the per-user credit accumulator. It is created lazily on the
// first confirmation for a user and only ever increases.
type UserBalance struct {
	Owner   Identity
	Balance uint64
}

// Credit returns balance + amount, failing when the sum would exceed the
// unsigned 64-bit range. The ledger is credit-only; no debit exists.
func Credit(balance, amount uint64) (uint64, error) {
	if amount > math.MaxUint64-balance {
		return 0, ErrBalanceOverflow
	}
	return balance + amount, nil
}
