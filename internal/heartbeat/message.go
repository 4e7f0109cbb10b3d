package heartbeat

import (
	"encoding/binary"
	"fmt"

	"github.com/yndnr/camhub-go/internal/channel"
)

// Message is one heartbeat. Epochs has one entry per epoch-bearing channel
// and Ciphertexts one per participating channel, both in registry order.
type Message struct {
	Timestamp   uint64   `cbor:"1,keyasint" json:"timestamp"`
	Epochs      []uint64 `cbor:"2,keyasint" json:"epochs"`
	Ciphertexts [][]byte `cbor:"3,keyasint" json:"ciphertexts"`
}

// Generate seals ts under every participating channel of reg, saving each
// session after it encrypts. Any session failure aborts the heartbeat.
func Generate(reg *channel.Registry, ts uint64) (*Message, error) {
	msg := &Message{
		Timestamp:   ts,
		Epochs:      make([]uint64, 0, reg.EpochCount()),
		Ciphertexts: make([][]byte, 0, reg.CiphertextCount()),
	}
	plaintext := encodeTimestamp(ts)

	for _, ch := range reg.Channels() {
		if !ch.Role.CarriesCiphertext() {
			continue
		}

		ct, err := ch.Session.Encrypt(plaintext)
		if err != nil {
			return nil, fmt.Errorf("heartbeat: encrypt on %s: %w", ch.Name, err)
		}
		msg.Ciphertexts = append(msg.Ciphertexts, ct)

		if err := ch.Session.SaveState(); err != nil {
			return nil, fmt.Errorf("heartbeat: save %s: %w", ch.Name, err)
		}

		if ch.Role.CarriesEpoch() {
			epoch, err := ch.Session.Epoch()
			if err != nil {
				return nil, fmt.Errorf("heartbeat: epoch of %s: %w", ch.Name, err)
			}
			msg.Epochs = append(msg.Epochs, epoch)
		}
	}
	return msg, nil
}

// Process verifies msg against reg for the round identified by expected.
//
// Sessions are untouched when the timestamp check fails. A channel whose
// epoch cannot be read or does not match stops verification before any
// decryption on it. Once a channel has been asked to decrypt, its state
// is saved whatever the outcome; a save failure is the only error.
func Process(msg *Message, reg *channel.Registry, expected uint64) (Result, error) {
	if msg == nil {
		return InvalidCiphertext{Reason: "nil message"}, nil
	}
	if msg.Timestamp != expected {
		return InvalidTimestamp{Got: msg.Timestamp, Want: expected}, nil
	}
	if len(msg.Epochs) != reg.EpochCount() || len(msg.Ciphertexts) != reg.CiphertextCount() {
		return InvalidCiphertext{Reason: fmt.Sprintf(
			"message has %d epochs and %d ciphertexts, want %d and %d",
			len(msg.Epochs), len(msg.Ciphertexts), reg.EpochCount(), reg.CiphertextCount(),
		)}, nil
	}

	var ei, ci int
	for _, ch := range reg.Channels() {
		if !ch.Role.CarriesCiphertext() {
			continue
		}

		if ch.Role.CarriesEpoch() {
			local, err := ch.Session.Epoch()
			if err != nil {
				return InvalidCiphertext{Channel: ch.Name, Reason: "epoch unavailable: " + err.Error()}, nil
			}
			if remote := msg.Epochs[ei]; local != remote {
				return InvalidEpoch{Channel: ch.Name, Local: local, Remote: remote}, nil
			}
			ei++
		}

		plaintext, decErr := ch.Session.Decrypt(msg.Ciphertexts[ci], true)
		ci++
		if err := ch.Session.SaveState(); err != nil {
			return nil, fmt.Errorf("heartbeat: save %s: %w", ch.Name, err)
		}
		if decErr != nil {
			return InvalidCiphertext{Channel: ch.Name, Reason: decErr.Error()}, nil
		}

		sealed, ok := decodeTimestamp(plaintext)
		if !ok {
			return InvalidCiphertext{Channel: ch.Name, Reason: fmt.Sprintf("plaintext is %d bytes", len(plaintext))}, nil
		}
		if sealed != msg.Timestamp {
			return InvalidCiphertext{Channel: ch.Name, Reason: fmt.Sprintf("sealed timestamp %d", sealed)}, nil
		}
	}

	return Healthy{Timestamp: msg.Timestamp}, nil
}

func encodeTimestamp(ts uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, ts)
}

func decodeTimestamp(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}
