package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"tubbly/core/ledger"
)

func TestIdentityEncodeDecodeRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	id := key.Identity()

	encoded := EncodeIdentity(id)
	if !strings.HasPrefix(encoded, IdentityPrefix+"1") {
		t.Fatalf("encoded identity %q lacks %q prefix", encoded, IdentityPrefix)
	}
	decoded, err := DecodeIdentity(encoded)
	if err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if decoded != id {
		t.Fatalf("round trip mismatch: got %x want %x", decoded, id)
	}
}

func TestDecodeIdentityHex(t *testing.T) {
	var id ledger.Identity
	for i := range id {
		id[i] = byte(i)
	}
	hexForm := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	for _, input := range []string{hexForm, "0x" + hexForm} {
		decoded, err := DecodeIdentity(input)
		if err != nil {
			t.Fatalf("decode %q: %v", input, err)
		}
		if decoded != id {
			t.Fatalf("decode %q: got %x want %x", input, decoded, id)
		}
	}
}

func TestDecodeIdentityRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "zzzz", "abcd", "tub1qqqq"} {
		if _, err := DecodeIdentity(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestPrivateKeySeedRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	rebuilt, err := PrivateKeyFromSeed(key.Seed())
	if err != nil {
		t.Fatalf("rebuild from seed: %v", err)
	}
	if rebuilt.Identity() != key.Identity() {
		t.Fatal("seed round trip changed identity")
	}
}

func TestPrivateKeyFromSeedRejectsShortSeed(t *testing.T) {
	if _, err := PrivateKeyFromSeed(bytes.Repeat([]byte{1}, 16)); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestKeyFileSaveLoad(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "node.key")
	if err := SaveKeyFile(path, key); err != nil {
		t.Fatalf("save key: %v", err)
	}
	loaded, err := LoadKeyFile(path)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	if loaded.Identity() != key.Identity() {
		t.Fatal("loaded key has different identity")
	}
}

func TestLoadKeyFileMissing(t *testing.T) {
	if _, err := LoadKeyFile(filepath.Join(t.TempDir(), "absent.key")); err == nil {
		t.Fatal("expected error for missing key file")
	}
}
