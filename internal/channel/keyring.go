package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/yndnr/camhub-go/internal/storage/snapshot"
	"github.com/yndnr/camhub-go/pkg/crypto/adaptive"
)

const (
	// DefaultHistory is how many superseded epochs stay decryptable.
	DefaultHistory = 4

	epochPrefixLen = 8
	rekeyLabel     = "camhub/channel/rekey"
)

var (
	// ErrEpochMismatch is returned by Decrypt with requireCurrent set when
	// the ciphertext was sealed under another epoch.
	ErrEpochMismatch = errors.New("channel: ciphertext epoch is not current")

	// ErrEpochUnknown is returned when the ciphertext epoch is in the future
	// or has aged out of the history.
	ErrEpochUnknown = errors.New("channel: unknown epoch")

	// ErrCiphertextMalformed is returned for ciphertexts too short to carry
	// an epoch prefix.
	ErrCiphertextMalformed = errors.New("channel: malformed ciphertext")
)

type keyringState struct {
	Epoch   uint64            `cbor:"epoch"`
	Secret  []byte            `cbor:"secret"`
	History map[uint64][]byte `cbor:"history"`
}

// KeyringConfig configures a KeyringSession.
type KeyringConfig struct {
	// Name is the channel name. It is bound into every ciphertext.
	Name string

	// Secret seeds epoch 0. Ignored when the store already holds state
	// for this channel.
	Secret []byte

	// Cipher must match on both ends; "auto" is hardware dependent and
	// is rejected.
	Cipher adaptive.CipherType

	// History bounds the superseded epochs kept for Decrypt without
	// requireCurrent. Zero means DefaultHistory.
	History int
}

// KeyringSession is a Session over a shared secret. Each Rekey replaces
// the secret with an HKDF ratchet of the previous one, so peers that rekey
// the same number of times agree on every epoch key without exchanging
// messages.
//
// Ciphertexts are laid out as epoch (8 bytes, big-endian) || AEAD output,
// with the channel name and epoch as associated data.
type KeyringSession struct {
	name    string
	kind    adaptive.CipherType
	history int
	store   *snapshot.Store

	mu    sync.Mutex
	state keyringState
}

var _ Session = (*KeyringSession)(nil)

// OpenKeyring loads the channel's saved state from store, or seeds a new
// session from cfg.Secret.
func OpenKeyring(store *snapshot.Store, cfg KeyringConfig) (*KeyringSession, error) {
	if store == nil {
		return nil, fmt.Errorf("channel: store is required")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("channel: name is required")
	}
	switch cfg.Cipher {
	case adaptive.CipherAESGCM, adaptive.CipherChaCha20:
	default:
		return nil, fmt.Errorf("channel %s: %w: %q", cfg.Name, adaptive.ErrUnknownCipher, cfg.Cipher)
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}

	st, err := snapshot.LoadLatestOrInit(store, StateCategory(cfg.Name), func() keyringState {
		return keyringState{Secret: append([]byte(nil), cfg.Secret...)}
	})
	if err != nil {
		return nil, fmt.Errorf("channel %s: load state: %w", cfg.Name, err)
	}
	if len(st.Secret) < adaptive.MinSecretLength {
		return nil, fmt.Errorf("channel %s: %w", cfg.Name, adaptive.ErrSecretTooShort)
	}
	if st.History == nil {
		st.History = make(map[uint64][]byte)
	}

	return &KeyringSession{
		name:    cfg.Name,
		kind:    cfg.Cipher,
		history: cfg.History,
		store:   store,
		state:   st,
	}, nil
}

// OpenStandardKeyrings opens a KeyringSession for every standard channel
// and assembles the registry.
func OpenStandardKeyrings(store *snapshot.Store, secrets map[string][]byte, kind adaptive.CipherType) (*Registry, map[string]*KeyringSession, error) {
	sessions := make(map[string]Session, len(StandardRoles))
	keyrings := make(map[string]*KeyringSession, len(StandardRoles))
	for _, sr := range StandardRoles {
		k, err := OpenKeyring(store, KeyringConfig{
			Name:   sr.Name,
			Secret: secrets[sr.Name],
			Cipher: kind,
		})
		if err != nil {
			return nil, nil, err
		}
		sessions[sr.Name] = k
		keyrings[sr.Name] = k
	}
	reg, err := NewStandardRegistry(sessions)
	if err != nil {
		return nil, nil, err
	}
	return reg, keyrings, nil
}

// StateCategory is the snapshot category of a channel's session state.
func StateCategory(name string) string {
	return "channel_" + name
}

// Name returns the channel name.
func (k *KeyringSession) Name() string { return k.name }

// Epoch returns the current epoch.
func (k *KeyringSession) Epoch() (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.Epoch, nil
}

// Encrypt seals plaintext under the current epoch key.
func (k *KeyringSession) Encrypt(plaintext []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	epoch := k.state.Epoch
	c, err := k.cipherFor(k.state.Secret, epoch)
	if err != nil {
		return nil, err
	}
	sealed, err := c.Encrypt(plaintext, k.aad(epoch))
	if err != nil {
		return nil, fmt.Errorf("channel %s: encrypt: %w", k.name, err)
	}

	out := make([]byte, epochPrefixLen, epochPrefixLen+len(sealed))
	binary.BigEndian.PutUint64(out, epoch)
	return append(out, sealed...), nil
}

// Decrypt opens a ciphertext from the current epoch or, unless
// requireCurrent is set, from a retained older epoch.
func (k *KeyringSession) Decrypt(ciphertext []byte, requireCurrent bool) ([]byte, error) {
	if len(ciphertext) < epochPrefixLen {
		return nil, ErrCiphertextMalformed
	}
	epoch := binary.BigEndian.Uint64(ciphertext[:epochPrefixLen])

	k.mu.Lock()
	defer k.mu.Unlock()

	var secret []byte
	switch {
	case epoch == k.state.Epoch:
		secret = k.state.Secret
	case requireCurrent:
		return nil, fmt.Errorf("%w: got %d, current %d", ErrEpochMismatch, epoch, k.state.Epoch)
	default:
		var ok bool
		if secret, ok = k.state.History[epoch]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrEpochUnknown, epoch)
		}
	}

	c, err := k.cipherFor(secret, epoch)
	if err != nil {
		return nil, err
	}
	plain, err := c.Decrypt(ciphertext[epochPrefixLen:], k.aad(epoch))
	if err != nil {
		return nil, fmt.Errorf("channel %s: decrypt epoch %d: %w", k.name, epoch, err)
	}
	return plain, nil
}

// Rekey advances to the next epoch and returns it. The caller persists the
// new state with SaveState.
func (k *KeyringSession) Rekey() (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	next, err := adaptive.DeriveKey(k.state.Secret, rekeyLabel)
	if err != nil {
		return 0, fmt.Errorf("channel %s: rekey: %w", k.name, err)
	}

	k.state.History[k.state.Epoch] = k.state.Secret
	k.state.Secret = next
	k.state.Epoch++

	if k.state.Epoch > uint64(k.history) {
		floor := k.state.Epoch - uint64(k.history)
		for epoch, secret := range k.state.History {
			if epoch < floor {
				adaptive.Zero(secret)
				delete(k.state.History, epoch)
			}
		}
	}
	return k.state.Epoch, nil
}

// SaveState persists the session through the snapshot store.
func (k *KeyringSession) SaveState() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, err := k.store.Save(StateCategory(k.name), k.state); err != nil && !errors.Is(err, snapshot.ErrPrune) {
		return fmt.Errorf("channel %s: save state: %w", k.name, err)
	}
	return nil
}

func (k *KeyringSession) cipherFor(secret []byte, epoch uint64) (adaptive.Cipher, error) {
	key, err := adaptive.DeriveKey(secret, "camhub/channel/"+k.name+"/epoch/"+strconv.FormatUint(epoch, 10))
	if err != nil {
		return nil, fmt.Errorf("channel %s: derive key: %w", k.name, err)
	}
	defer adaptive.Zero(key)
	return adaptive.NewWithType(key, k.kind)
}

func (k *KeyringSession) aad(epoch uint64) []byte {
	aad := make([]byte, 0, len(k.name)+1+epochPrefixLen)
	aad = append(aad, k.name...)
	aad = append(aad, 0)
	return binary.BigEndian.AppendUint64(aad, epoch)
}
