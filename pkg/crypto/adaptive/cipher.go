package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherType identifies the AEAD algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// KeySize is the key length accepted by every cipher in this package.
const KeySize = 32

var (
	ErrKeySize              = errors.New("adaptive: key must be 32 bytes")
	ErrCiphertextShort      = errors.New("adaptive: ciphertext too short")
	ErrUnknownCipher        = errors.New("adaptive: unknown cipher type")
	ErrAuthenticationFailed = errors.New("adaptive: message authentication failed")
)

// Cipher provides authenticated encryption with associated data.
type Cipher interface {
	Type() CipherType
	Encrypt(plaintext, additionalData []byte) ([]byte, error)
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)
	Overhead() int
}

// ParseType maps a configuration string to a CipherType.
// The empty string and "auto" select by hardware.
func ParseType(s string) (CipherType, error) {
	switch s {
	case "", "auto":
		return preferredType(), nil
	case string(CipherAESGCM):
		return CipherAESGCM, nil
	case string(CipherChaCha20):
		return CipherChaCha20, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCipher, s)
	}
}

// New creates a cipher using the algorithm best suited to this machine.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, preferredType())
}

// NewWithType creates a cipher of the given type.
func NewWithType(key []byte, t CipherType) (Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch t {
	case CipherAESGCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case CipherChaCha20:
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, t)
	}
	if err != nil {
		return nil, fmt.Errorf("adaptive: init %s: %w", t, err)
	}

	return &aeadCipher{kind: t, aead: aead}, nil
}

// preferredType picks AES-GCM where Go uses hardware AES (amd64, arm64).
func preferredType() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64", "s390x":
		return CipherAESGCM
	default:
		return CipherChaCha20
	}
}

type aeadCipher struct {
	kind CipherType
	aead cipher.AEAD
}

func (c *aeadCipher) Type() CipherType { return c.kind }

// Overhead is nonce plus tag length.
func (c *aeadCipher) Overhead() int {
	return c.aead.NonceSize() + c.aead.Overhead()
}

func (c *aeadCipher) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, fmt.Errorf("adaptive: read nonce: %w", err)
	}
	return c.aead.Seal(out, out[:nonceSize], plaintext, additionalData), nil
}

func (c *aeadCipher) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize+c.aead.Overhead() {
		return nil, ErrCiphertextShort
	}
	plain, err := c.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], additionalData)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plain, nil
}
