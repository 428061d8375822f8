package crypto

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SaveKeyFile writes the key seed to path as hex with owner-only permissions.
func SaveKeyFile(path string, key *PrivateKey) error {
	if key == nil {
		return fmt.Errorf("crypto: nil key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	encoded := hex.EncodeToString(key.Seed()) + "\n"
	return os.WriteFile(path, []byte(encoded), 0o600)
}

// LoadKeyFile reads a key previously written by SaveKeyFile.
func LoadKeyFile(path string) (*PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid key file %s: %w", path, err)
	}
	return PrivateKeyFromSeed(seed)
}
