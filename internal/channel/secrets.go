package channel

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/camhub-go/pkg/crypto/adaptive"
)

// SecretPrefix marks an encoded channel secret. The logger redacts any
// value carrying it.
const SecretPrefix = "chs_"

const secretBytes = 32

// ErrSecretFormat is returned for a secret that is not SecretPrefix
// followed by hex.
var ErrSecretFormat = errors.New("channel: malformed secret")

// SecretsFile is the on-disk layout of provisioned channel secrets.
// Camera and app are provisioned with the same file.
type SecretsFile struct {
	Channels map[string]string `yaml:"channels"`
}

// GenerateSecrets returns a fresh encoded secret for every name.
func GenerateSecrets(names []string) (*SecretsFile, error) {
	sf := &SecretsFile{Channels: make(map[string]string, len(names))}
	for _, name := range names {
		raw, err := adaptive.RandomBytes(secretBytes)
		if err != nil {
			return nil, err
		}
		sf.Channels[name] = EncodeSecret(raw)
		adaptive.Zero(raw)
	}
	return sf, nil
}

// EncodeSecret renders raw as SecretPrefix + hex.
func EncodeSecret(raw []byte) string {
	return SecretPrefix + hex.EncodeToString(raw)
}

// DecodeSecret parses an encoded secret.
func DecodeSecret(s string) ([]byte, error) {
	if !strings.HasPrefix(s, SecretPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrSecretFormat, SecretPrefix)
	}
	raw, err := hex.DecodeString(s[len(SecretPrefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretFormat, err)
	}
	if len(raw) < adaptive.MinSecretLength {
		return nil, fmt.Errorf("%w: %d bytes", adaptive.ErrSecretTooShort, len(raw))
	}
	return raw, nil
}

// LoadSecrets reads a secrets file and decodes every entry.
func LoadSecrets(path string) (map[string][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("channel: read secrets: %w", err)
	}

	var sf SecretsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("channel: parse secrets %s: %w", path, err)
	}

	out := make(map[string][]byte, len(sf.Channels))
	for name, enc := range sf.Channels {
		raw, err := DecodeSecret(enc)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}

// WriteSecrets writes sf to path with owner-only permissions. An existing
// file is never overwritten.
func WriteSecrets(path string, sf *SecretsFile) error {
	data, err := yaml.Marshal(sf)
	if err != nil {
		return fmt.Errorf("channel: encode secrets: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("channel: create secrets: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("channel: write secrets: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("channel: sync secrets: %w", err)
	}
	return f.Close()
}
