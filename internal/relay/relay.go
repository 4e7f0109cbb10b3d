package relay

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"path"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNoRequest is returned by NextHeartbeatRequest when no request arrived
// within the wait period.
var ErrNoRequest = errors.New("relay: no heartbeat request")

// VideoSink stores encrypted clips.
type VideoSink interface {
	// PutVideo uploads size bytes from r under the blob name. It returns
	// only once the relay holds the complete object.
	PutVideo(ctx context.Context, name string, r io.Reader, size int64) error
}

// ControlChannel carries heartbeats and live-stream updates.
type ControlChannel interface {
	// NextHeartbeatRequest waits up to wait for an encoded request.
	NextHeartbeatRequest(ctx context.Context, wait time.Duration) ([]byte, error)

	// PublishHeartbeat delivers an encoded heartbeat response.
	PublishHeartbeat(ctx context.Context, data []byte) error

	// PushUpdates delivers queued updates in order. It either stores all of
	// them or returns an error.
	PushUpdates(ctx context.Context, updates [][]byte) error
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newObjectID returns a sortable unique suffix for relay objects. Blob
// names repeat across clips that share an epoch, so every upload gets its
// own object.
func newObjectID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// ObjectKey is the relay-side key of one uploaded clip.
func ObjectKey(cameraID, name, id string) string {
	return path.Join(cameraID, "videos", name, id)
}
