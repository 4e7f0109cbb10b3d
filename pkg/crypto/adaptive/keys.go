package adaptive

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// MinSecretLength is the shortest secret DeriveKey accepts.
	MinSecretLength = 16

	// MinPassphraseLength is the shortest passphrase DeriveKeyFromPassphrase accepts.
	MinPassphraseLength = 8

	// SaltLength is the Argon2id salt length.
	SaltLength = 16

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

var (
	ErrSecretTooShort    = errors.New("adaptive: secret too short (minimum 16 bytes)")
	ErrPassphraseTooWeak = errors.New("adaptive: passphrase too weak (minimum 8 characters)")
)

// DeriveKey expands secret into a KeySize key bound to label.
// Different labels yield independent keys from the same secret.
func DeriveKey(secret []byte, label string) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(label)), key); err != nil {
		return nil, fmt.Errorf("adaptive: derive key: %w", err)
	}
	return key, nil
}

// DeriveKeyFromPassphrase stretches a passphrase with Argon2id.
// The salt must be persisted by the caller to derive the same key again.
func DeriveKeyFromPassphrase(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}
	if len(salt) != SaltLength {
		return nil, fmt.Errorf("adaptive: salt must be %d bytes", SaltLength)
	}
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, KeySize), nil
}

// NewSalt returns a random Argon2id salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("adaptive: generate salt: %w", err)
	}
	return salt, nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("adaptive: random bytes: %w", err)
	}
	return b, nil
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
