package delivery

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/yndnr/camhub-go/internal/core/domain"
	"github.com/yndnr/camhub-go/internal/storage/snapshot"
)

// Category is the snapshot category holding the ledger state.
const Category = "delivery_ledger"

type ledgerState struct {
	Watch   map[uint64]domain.VideoDescriptor   `cbor:"watch"`
	Pending map[uint64][]domain.VideoDescriptor `cbor:"pending"`
	Updates [][]byte                            `cbor:"updates"`
}

func newLedgerState() ledgerState {
	return ledgerState{
		Watch:   make(map[uint64]domain.VideoDescriptor),
		Pending: make(map[uint64][]domain.VideoDescriptor),
	}
}

// Stats summarizes ledger contents.
type Stats struct {
	Unsent         int    `json:"unsent"`
	Pending        int    `json:"pending"`
	PendingEpochs  int    `json:"pending_epochs"`
	QueuedUpdates  int    `json:"queued_updates"`
	OldestUnsentTS uint64 `json:"oldest_unsent_ts,omitempty"`
}

// Ledger is the durable delivery state of one camera.
//
// Methods are safe for concurrent use, but mutations are expected to come
// from a single owner; the lock only keeps readers such as the admin API
// consistent.
type Ledger struct {
	store    *snapshot.Store
	videoDir string
	logger   *slog.Logger

	mu    sync.RWMutex
	state ledgerState
}

// Open loads the newest ledger snapshot from store, or starts empty.
func Open(store *snapshot.Store, videoDir string, logger *slog.Logger) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("delivery: store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := snapshot.LoadLatestOrInit(store, Category, newLedgerState)
	if err != nil {
		return nil, fmt.Errorf("delivery: load ledger: %w", err)
	}
	if st.Watch == nil {
		st.Watch = make(map[uint64]domain.VideoDescriptor)
	}
	if st.Pending == nil {
		st.Pending = make(map[uint64][]domain.VideoDescriptor)
	}

	l := &Ledger{
		store:    store,
		videoDir: videoDir,
		logger:   logger,
		state:    st,
	}
	logger.Info("delivery ledger opened",
		"unsent", len(st.Watch),
		"pending_epochs", len(st.Pending),
		"queued_updates", len(st.Updates),
	)
	return l, nil
}

// VideoDir returns the directory holding plaintext clips and encrypted blobs.
func (l *Ledger) VideoDir() string {
	return l.videoDir
}

// VideoPath returns the plaintext clip path of d.
func (l *Ledger) VideoPath(d domain.VideoDescriptor) string {
	return filepath.Join(l.videoDir, d.Filename)
}

// BlobPath returns the encrypted clip path of d.
func (l *Ledger) BlobPath(d domain.VideoDescriptor) string {
	return filepath.Join(l.videoDir, d.BlobName())
}

// Enqueue starts tracking d in both indexes. d must already carry its
// liveness epoch. A second clip with the same capture timestamp is
// rejected with domain.ErrVideoExists and nothing is persisted.
func (l *Ledger) Enqueue(d domain.VideoDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tracksLocked(d.CaptureTimestamp) {
		return domain.ErrVideoExists.WithDetails(d.Filename)
	}

	l.state.Watch[d.CaptureTimestamp] = d
	l.state.Pending[d.LivenessEpoch] = append(l.state.Pending[d.LivenessEpoch], d)

	if err := l.persistLocked(); err != nil {
		delete(l.state.Watch, d.CaptureTimestamp)
		l.removePendingLocked(d)
		return err
	}

	l.logger.Info("video enqueued",
		"capture_ts", d.CaptureTimestamp,
		"epoch", d.LivenessEpoch,
	)
	return nil
}

// DequeueUploaded stops watching d and deletes its encrypted blob.
// Removing an untracked clip is a no-op apart from the blob cleanup.
// When d was already acknowledged its plaintext goes too, since
// AdvanceLiveness keeps the plaintext of clips that are still unsent.
func (l *Ledger) DequeueUploaded(d domain.VideoDescriptor) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tracked, ok := l.state.Watch[d.CaptureTimestamp]
	if !ok {
		return removeFile(l.BlobPath(d))
	}

	d = tracked
	delete(l.state.Watch, d.CaptureTimestamp)
	if err := l.persistLocked(); err != nil {
		l.state.Watch[d.CaptureTimestamp] = tracked
		return err
	}
	l.logger.Info("video uploaded",
		"capture_ts", d.CaptureTimestamp,
		"epoch", d.LivenessEpoch,
	)

	err := removeFile(l.BlobPath(d))
	if !l.pendingLocked(d.CaptureTimestamp) {
		err = errors.Join(err, removeFile(l.VideoPath(d)))
	}
	return err
}

// AdvanceLiveness acknowledges every pending clip whose liveness epoch is
// at or below confirmed, persists once, then deletes the plaintext files
// of the acknowledged clips. It returns the acknowledged descriptors in
// capture order.
//
// A clip that is acknowledged but still unsent keeps its plaintext for the
// upload path; DequeueUploaded deletes it once the upload is done.
//
// When file deletion fails after the state was persisted the removed
// descriptors are still returned together with the joined errors.
func (l *Ledger) AdvanceLiveness(confirmed uint64) ([]domain.VideoDescriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		epochs  []uint64
		removed []domain.VideoDescriptor
	)
	for epoch, ds := range l.state.Pending {
		if epoch <= confirmed {
			epochs = append(epochs, epoch)
			removed = append(removed, ds...)
		}
	}
	if len(epochs) == 0 {
		return nil, nil
	}

	saved := make(map[uint64][]domain.VideoDescriptor, len(epochs))
	for _, epoch := range epochs {
		saved[epoch] = l.state.Pending[epoch]
		delete(l.state.Pending, epoch)
	}
	if err := l.persistLocked(); err != nil {
		for epoch, ds := range saved {
			l.state.Pending[epoch] = ds
		}
		return nil, err
	}

	sortByCapture(removed)

	var errs []error
	for _, d := range removed {
		if _, unsent := l.state.Watch[d.CaptureTimestamp]; unsent {
			continue
		}
		if err := removeFile(l.VideoPath(d)); err != nil {
			errs = append(errs, err)
		}
	}

	l.logger.Info("liveness advanced",
		"epoch", confirmed,
		"acknowledged", len(removed),
	)
	return removed, errors.Join(errs...)
}

// ListUnsent returns the clips not yet uploaded, oldest capture first.
func (l *Ledger) ListUnsent() []domain.VideoDescriptor {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.VideoDescriptor, 0, len(l.state.Watch))
	for _, d := range l.state.Watch {
		out = append(out, d)
	}
	sortByCapture(out)
	return out
}

// Pending returns the clips not yet acknowledged by the app, ordered by
// epoch and then capture time.
func (l *Ledger) Pending() []domain.VideoDescriptor {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.VideoDescriptor
	for _, ds := range l.state.Pending {
		out = append(out, ds...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LivenessEpoch != out[j].LivenessEpoch {
			return out[i].LivenessEpoch < out[j].LivenessEpoch
		}
		return out[i].CaptureTimestamp < out[j].CaptureTimestamp
	})
	return out
}

// Tracks reports whether a clip captured at ts is in either index.
func (l *Ledger) Tracks(ts uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tracksLocked(ts)
}

// QueueUpdate appends a live-stream control update awaiting relay
// acknowledgment.
func (l *Ledger) QueueUpdate(blob []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.state.Updates)
	l.state.Updates = append(l.state.Updates, append([]byte(nil), blob...))
	if err := l.persistLocked(); err != nil {
		l.state.Updates = l.state.Updates[:n]
		return err
	}
	return nil
}

// DrainUpdates clears the update log.
func (l *Ledger) DrainUpdates() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.state.Updates
	l.state.Updates = nil
	if err := l.persistLocked(); err != nil {
		l.state.Updates = prev
		return err
	}
	return nil
}

// PeekUpdates returns a copy of the queued updates in arrival order.
func (l *Ledger) PeekUpdates() [][]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([][]byte, len(l.state.Updates))
	for i, u := range l.state.Updates {
		out[i] = append([]byte(nil), u...)
	}
	return out
}

// Stats returns a point-in-time summary.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Stats{
		Unsent:        len(l.state.Watch),
		PendingEpochs: len(l.state.Pending),
		QueuedUpdates: len(l.state.Updates),
	}
	for _, ds := range l.state.Pending {
		st.Pending += len(ds)
	}
	for ts := range l.state.Watch {
		if st.OldestUnsentTS == 0 || ts < st.OldestUnsentTS {
			st.OldestUnsentTS = ts
		}
	}
	return st
}

func (l *Ledger) tracksLocked(ts uint64) bool {
	if _, ok := l.state.Watch[ts]; ok {
		return true
	}
	return l.pendingLocked(ts)
}

func (l *Ledger) pendingLocked(ts uint64) bool {
	for _, ds := range l.state.Pending {
		for _, d := range ds {
			if d.CaptureTimestamp == ts {
				return true
			}
		}
	}
	return false
}

func (l *Ledger) removePendingLocked(d domain.VideoDescriptor) {
	ds := l.state.Pending[d.LivenessEpoch]
	for i := range ds {
		if ds[i].CaptureTimestamp == d.CaptureTimestamp {
			ds = append(ds[:i], ds[i+1:]...)
			break
		}
	}
	if len(ds) == 0 {
		delete(l.state.Pending, d.LivenessEpoch)
		return
	}
	l.state.Pending[d.LivenessEpoch] = ds
}

// persistLocked saves the current state. A save whose only failure is the
// cleanup of older snapshots is committed, so callers keep their changes.
func (l *Ledger) persistLocked() error {
	if _, err := l.store.Save(Category, l.state); err != nil && !errors.Is(err, snapshot.ErrPrune) {
		return fmt.Errorf("delivery: persist ledger: %w", err)
	}
	return nil
}

func sortByCapture(ds []domain.VideoDescriptor) {
	sort.Slice(ds, func(i, j int) bool {
		return ds[i].CaptureTimestamp < ds[j].CaptureTimestamp
	})
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delivery: remove %s: %w", filepath.Base(path), err)
	}
	return nil
}
