package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yndnr/camhub-go/pkg/crypto/adaptive"
)

// saltFile holds the Argon2id salt for passphrase-derived keys. It is
// not a snapshot category, so List never returns it.
const saltFile = "snapshot.salt"

// keyLabel separates the at-rest key from any other key derived from
// the same operator secret.
const keyLabel = "camhub/snapshot/v1"

// EncryptionConfig selects at-rest encryption for a Store.
// Key takes precedence over Passphrase; both empty disables encryption.
type EncryptionConfig struct {
	Key        []byte
	Passphrase []byte
	Algorithm  string
}

// NewCipher builds the at-rest cipher for the snapshots in dir.
// For passphrase keys the salt is created on first use and persisted
// next to the snapshots; losing it makes every snapshot unreadable.
func NewCipher(cfg EncryptionConfig, dir string) (adaptive.Cipher, error) {
	kind, err := adaptive.ParseType(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	var key []byte
	switch {
	case len(cfg.Key) > 0:
		key, err = adaptive.DeriveKey(cfg.Key, keyLabel)
	case len(cfg.Passphrase) > 0:
		var salt []byte
		salt, err = loadOrCreateSalt(dir)
		if err == nil {
			key, err = adaptive.DeriveKeyFromPassphrase(cfg.Passphrase, salt)
		}
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: derive key: %w", err)
	}
	defer adaptive.Zero(key)

	return adaptive.NewWithType(key, kind)
}

func loadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFile)

	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != adaptive.SaltLength {
			return nil, fmt.Errorf("salt file %s has %d bytes, want %d", path, len(salt), adaptive.SaltLength)
		}
		return salt, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, err
	}
	salt, err = adaptive.NewSalt()
	if err != nil {
		return nil, err
	}
	if err := writeDurable(path, salt); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}
