package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"

	"tubbly/core/ledger"
)

// IdentityPrefix is the human-readable part of the bech32 identity encoding.
const IdentityPrefix = "tub"

// PrivateKey wraps an ed25519 signing key. The public key doubles as the
// actor identity.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// GeneratePrivateKey creates a fresh random key.
func GeneratePrivateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromSeed rebuilds a key from its 32-byte seed.
func PrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Seed returns the 32-byte seed the key can be rebuilt from.
func (p *PrivateKey) Seed() []byte {
	return p.key.Seed()
}

// Identity returns the 32-byte public identity for this key.
func (p *PrivateKey) Identity() ledger.Identity {
	var id ledger.Identity
	copy(id[:], p.key.Public().(ed25519.PublicKey))
	return id
}

// EncodeIdentity renders an identity in its bech32 text form.
func EncodeIdentity(id ledger.Identity) string {
	conv, err := bech32.ConvertBits(id[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(IdentityPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeIdentity parses an identity from either its bech32 text form or raw
// 64-character hex.
func DecodeIdentity(s string) (ledger.Identity, error) {
	var id ledger.Identity
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return id, fmt.Errorf("crypto: empty identity")
	}
	if strings.HasPrefix(trimmed, IdentityPrefix+"1") {
		hrp, data, err := bech32.Decode(trimmed)
		if err != nil {
			return id, fmt.Errorf("crypto: invalid bech32 identity: %w", err)
		}
		if hrp != IdentityPrefix {
			return id, fmt.Errorf("crypto: unexpected identity prefix %q", hrp)
		}
		raw, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return id, fmt.Errorf("crypto: invalid bech32 identity: %w", err)
		}
		if len(raw) != len(id) {
			return id, fmt.Errorf("crypto: identity must be %d bytes, got %d", len(id), len(raw))
		}
		copy(id[:], raw)
		return id, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
	if err != nil {
		return id, fmt.Errorf("crypto: invalid hex identity: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("crypto: identity must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
