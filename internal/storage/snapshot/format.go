package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

var magicBytes = []byte("CAMHSNAP")

const (
	formatVersion = 1

	flagCompressed byte = 1 << 0
	flagEncrypted  byte = 1 << 1

	headerSize   = 8 + 1 + 1 + 4
	checksumSize = 32
)

var (
	// ErrCorrupt marks a file that is truncated, fails its checksum, or
	// does not decode. Loaders skip such files.
	ErrCorrupt = errors.New("snapshot: corrupt file")

	// ErrEncrypted is returned when an encrypted snapshot is found but
	// the store has no cipher configured.
	ErrEncrypted = errors.New("snapshot: file is encrypted but no key is configured")

	// ErrDecrypt is returned when an intact snapshot cannot be decrypted
	// with the configured key.
	ErrDecrypt = errors.New("snapshot: decryption failed, wrong key")
)

// frame wraps payload in the on-disk layout.
func frame(flags byte, payload []byte) []byte {
	buf := make([]byte, 0, headerSize+len(payload)+checksumSize)
	buf = append(buf, magicBytes...)
	buf = append(buf, formatVersion, flags)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)

	sum := blake3.Sum256(buf)
	return append(buf, sum[:]...)
}

// unframe validates data and returns its flags and payload.
// Every structural failure is reported as ErrCorrupt.
func unframe(data []byte) (byte, []byte, error) {
	if len(data) < headerSize+checksumSize {
		return 0, nil, fmt.Errorf("%w: %d bytes is shorter than header and checksum", ErrCorrupt, len(data))
	}

	body := data[:len(data)-checksumSize]
	sum := blake3.Sum256(body)
	if !bytes.Equal(sum[:], data[len(body):]) {
		return 0, nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if !bytes.Equal(body[:len(magicBytes)], magicBytes) {
		return 0, nil, fmt.Errorf("%w: invalid magic", ErrCorrupt)
	}
	if v := body[8]; v != formatVersion {
		return 0, nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}

	flags := body[9]
	n := binary.BigEndian.Uint32(body[10:headerSize])
	payload := body[headerSize:]
	if uint64(len(payload)) != uint64(n) {
		return 0, nil, fmt.Errorf("%w: payload length %d, header says %d", ErrCorrupt, len(payload), n)
	}
	return flags, payload, nil
}
