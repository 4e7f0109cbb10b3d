package hub

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/camhub-go/internal/channel"
	"github.com/yndnr/camhub-go/internal/core/domain"
	"github.com/yndnr/camhub-go/internal/delivery"
	"github.com/yndnr/camhub-go/internal/heartbeat"
	"github.com/yndnr/camhub-go/internal/relay"
	"github.com/yndnr/camhub-go/internal/storage/snapshot"
	"github.com/yndnr/camhub-go/internal/telemetry/metric"
	"github.com/yndnr/camhub-go/pkg/crypto/adaptive"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openKeyrings opens the standard channels over a fresh state directory.
func openKeyrings(t *testing.T) (*snapshot.Store, *channel.Registry, map[string]*channel.KeyringSession) {
	t.Helper()
	store, err := snapshot.New(snapshot.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	secrets := map[string][]byte{}
	for _, sr := range channel.StandardRoles {
		secrets[sr.Name] = testSecret
	}
	reg, keyrings, err := channel.OpenStandardKeyrings(store, secrets, adaptive.CipherChaCha20)
	if err != nil {
		t.Fatalf("OpenStandardKeyrings: %v", err)
	}
	return store, reg, keyrings
}

// recordingSink stores uploads in memory and fails on demand.
type recordingSink struct {
	mu      sync.Mutex
	names   []string
	blobs   [][]byte
	failAt  int
	failErr error
}

func (s *recordingSink) PutVideo(ctx context.Context, name string, r io.Reader, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil && len(s.names) == s.failAt {
		return s.failErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	s.names = append(s.names, name)
	s.blobs = append(s.blobs, data)
	return nil
}

// failingControl rejects every update push.
type failingControl struct{ relay.ControlChannel }

func (failingControl) PushUpdates(context.Context, [][]byte) error {
	return errors.New("relay unavailable")
}

type fixture struct {
	hub      *Hub
	ledger   *delivery.Ledger
	keyrings map[string]*channel.KeyringSession
	relay    *relay.Dir
	sink     *recordingSink
	metrics  *metric.Registry
	videoDir string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store, reg, keyrings := openKeyrings(t)

	videoDir := t.TempDir()
	ledger, err := delivery.Open(store, videoDir, discardLogger())
	if err != nil {
		t.Fatalf("delivery.Open: %v", err)
	}
	dir, err := relay.NewDir(t.TempDir(), "cam-test")
	if err != nil {
		t.Fatalf("relay.NewDir: %v", err)
	}

	f := &fixture{
		ledger:   ledger,
		keyrings: keyrings,
		relay:    dir,
		sink:     &recordingSink{},
		metrics:  metric.NewRegistry(),
		videoDir: videoDir,
	}
	f.hub, err = New(cfg, ledger, reg, f.sink, dir, WithMetrics(f.metrics), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func (f *fixture) record(t *testing.T, ts uint64) []byte {
	t.Helper()
	content := []byte("clip-" + domain.FilenameForTimestamp(ts))
	if err := os.WriteFile(filepath.Join(f.videoDir, domain.FilenameForTimestamp(ts)), content, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return content
}

func (f *fixture) capture(t *testing.T, ts uint64) []byte {
	t.Helper()
	content := f.record(t, ts)
	if _, err := f.hub.Capture(ts); err != nil {
		t.Fatalf("Capture(%d): %v", ts, err)
	}
	return content
}

func unsentTimestamps(l *delivery.Ledger) []uint64 {
	var out []uint64
	for _, d := range l.ListUnsent() {
		out = append(out, d.CaptureTimestamp)
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNew_Validation(t *testing.T) {
	store, reg, _ := openKeyrings(t)
	ledger, err := delivery.Open(store, t.TempDir(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	dir, err := relay.NewDir(t.TempDir(), "cam")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New(Config{}, nil, reg, dir, dir); err == nil {
		t.Error("New without ledger succeeded")
	}

	motion, err := reg.Get(channel.Motion)
	if err != nil {
		t.Fatal(err)
	}
	partial, err := channel.NewRegistry(motion)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{}, ledger, partial, dir, dir); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Errorf("New without video channel = %v, want ErrChannelNotFound", err)
	}
}

func TestHub_CaptureAssignsMotionEpoch(t *testing.T) {
	f := newFixture(t, Config{})

	d1, err := f.hub.Capture(100)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if d1.LivenessEpoch != 0 || d1.Filename != "video_100.mp4" {
		t.Fatalf("descriptor = %+v", d1)
	}

	epoch, err := f.keyrings[channel.Motion].Rekey()
	if err != nil {
		t.Fatalf("Rekey: %v", err)
	}
	d2, err := f.hub.Capture(200)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if d2.LivenessEpoch != epoch {
		t.Fatalf("epoch after rekey = %d, want %d", d2.LivenessEpoch, epoch)
	}

	if _, err := f.hub.Capture(100); !errors.Is(err, domain.ErrVideoExists) {
		t.Fatalf("duplicate Capture = %v, want ErrVideoExists", err)
	}
	if got := f.ledger.Stats().Unsent; got != 2 {
		t.Fatalf("unsent = %d, want 2", got)
	}
}

func TestHub_CaptureNow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	f := newFixture(t, Config{Now: func() time.Time { return now }})

	d, err := f.hub.CaptureNow()
	if err != nil {
		t.Fatalf("CaptureNow: %v", err)
	}
	if d.CaptureTimestamp != 1_700_000_000 {
		t.Fatalf("ts = %d", d.CaptureTimestamp)
	}
}

func TestHub_Reconcile(t *testing.T) {
	f := newFixture(t, Config{})
	f.capture(t, 10)
	f.record(t, 30)
	f.record(t, 20)
	if err := os.WriteFile(filepath.Join(f.videoDir, "notes.txt"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	n, err := f.hub.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if n != 2 {
		t.Fatalf("Reconcile enqueued %d, want 2", n)
	}
	if got := unsentTimestamps(f.ledger); !reflect.DeepEqual(got, []uint64{10, 20, 30}) {
		t.Fatalf("unsent = %v", got)
	}

	if n, err := f.hub.Reconcile(); err != nil || n != 0 {
		t.Fatalf("second Reconcile = %d, %v", n, err)
	}
}

func TestHub_UploadPendingOldestFirst(t *testing.T) {
	f := newFixture(t, Config{})
	_, _, appKeyrings := openKeyrings(t)

	plain := map[uint64][]byte{}
	for _, ts := range []uint64{300, 100, 200} {
		plain[ts] = f.capture(t, ts)
	}

	n, err := f.hub.UploadPending(context.Background())
	if err != nil {
		t.Fatalf("UploadPending: %v", err)
	}
	if n != 3 {
		t.Fatalf("uploaded %d, want 3", n)
	}
	if len(f.ledger.ListUnsent()) != 0 {
		t.Fatalf("unsent after upload = %v", unsentTimestamps(f.ledger))
	}

	for i, ts := range []uint64{100, 200, 300} {
		if f.sink.names[i] != "0" {
			t.Errorf("blob name %q, want epoch 0", f.sink.names[i])
		}
		got, err := appKeyrings[channel.Video].Decrypt(f.sink.blobs[i], false)
		if err != nil {
			t.Fatalf("app Decrypt upload %d: %v", i, err)
		}
		if !bytes.Equal(got, plain[ts]) {
			t.Errorf("upload %d = %q, want %q", i, got, plain[ts])
		}
	}

	// Blobs are removed after upload; plaintexts wait for the heartbeat.
	if exists(filepath.Join(f.videoDir, "0")) {
		t.Error("encrypted blob left behind")
	}
	if !exists(filepath.Join(f.videoDir, "video_100.mp4")) {
		t.Error("plaintext removed before acknowledgement")
	}
	if got := f.ledger.Stats().Pending; got != 3 {
		t.Errorf("pending = %d, want 3", got)
	}
}

func TestHub_UploadFailureKeepsUnsent(t *testing.T) {
	f := newFixture(t, Config{})
	f.sink.failAt = 1
	f.sink.failErr = errors.New("connection reset")

	for _, ts := range []uint64{1, 2, 3} {
		f.capture(t, ts)
	}

	n, err := f.hub.UploadPending(context.Background())
	if err == nil {
		t.Fatal("UploadPending succeeded, want error")
	}
	if n != 1 {
		t.Fatalf("uploaded %d, want 1", n)
	}
	if got := unsentTimestamps(f.ledger); !reflect.DeepEqual(got, []uint64{2, 3}) {
		t.Fatalf("unsent = %v, want [2 3]", got)
	}

	f.sink.failErr = nil
	if n, err := f.hub.UploadPending(context.Background()); err != nil || n != 2 {
		t.Fatalf("retry = %d, %v", n, err)
	}
}

func TestHub_UploadMissingPlaintext(t *testing.T) {
	f := newFixture(t, Config{})
	f.capture(t, 1)
	f.capture(t, 2)
	if err := os.Remove(filepath.Join(f.videoDir, "video_1.mp4")); err != nil {
		t.Fatal(err)
	}

	n, err := f.hub.UploadPending(context.Background())
	if err != nil {
		t.Fatalf("UploadPending: %v", err)
	}
	if n != 1 || len(f.sink.names) != 1 {
		t.Fatalf("uploaded %d (%d blobs), want 1", n, len(f.sink.names))
	}
	if f.ledger.Stats().Unsent != 0 {
		t.Fatal("missing capture still unsent")
	}
}

func TestHub_UploadRespectsContext(t *testing.T) {
	f := newFixture(t, Config{UploadRate: 0.001})
	f.capture(t, 1)
	f.capture(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	n, err := f.hub.UploadPending(ctx)
	if err == nil {
		t.Fatal("UploadPending ignored the rate limit")
	}
	if n != 1 {
		t.Fatalf("uploaded %d before the limiter blocked, want 1", n)
	}
}

func TestHub_RespondHeartbeatPurgesConfirmed(t *testing.T) {
	f := newFixture(t, Config{})
	f.capture(t, 1)
	if n, err := f.hub.UploadPending(context.Background()); err != nil || n != 1 {
		t.Fatalf("UploadPending = %d, %v", n, err)
	}
	f.record(t, 2)
	d2, err := f.hub.Capture(2)
	if err != nil {
		t.Fatal(err)
	}
	if d2.LivenessEpoch != 1 {
		t.Fatalf("epoch after upload = %d, want 1", d2.LivenessEpoch)
	}

	msg, err := f.hub.RespondHeartbeat(heartbeat.Request{Timestamp: 42, MotionEpoch: 0})
	if err != nil {
		t.Fatalf("RespondHeartbeat: %v", err)
	}
	if msg.Timestamp != 42 || len(msg.Ciphertexts) != 3 || len(msg.Epochs) != 2 {
		t.Fatalf("message = %+v", msg)
	}

	if exists(filepath.Join(f.videoDir, "video_1.mp4")) {
		t.Error("confirmed plaintext not purged")
	}
	if !exists(filepath.Join(f.videoDir, "video_2.mp4")) {
		t.Error("unconfirmed plaintext purged")
	}
	st := f.ledger.Stats()
	if st.Pending != 1 || st.Unsent != 1 {
		t.Errorf("stats = %+v, want 1 pending and 1 unsent", st)
	}
}

func TestHub_UploadAdvancesMotionEpoch(t *testing.T) {
	f := newFixture(t, Config{})
	f.capture(t, 1)
	f.capture(t, 2)

	if n, err := f.hub.UploadPending(context.Background()); err != nil || n != 2 {
		t.Fatalf("UploadPending = %d, %v", n, err)
	}
	epoch, err := f.hub.Registry().MotionEpoch()
	if err != nil {
		t.Fatal(err)
	}
	if epoch != 2 {
		t.Fatalf("motion epoch = %d, want 2", epoch)
	}

	// A failed upload leaves the epoch alone.
	f.sink.failErr = errors.New("connection reset")
	f.sink.failAt = f.sink.count()
	f.capture(t, 3)
	if _, err := f.hub.UploadPending(context.Background()); err == nil {
		t.Fatal("UploadPending succeeded, want error")
	}
	if epoch, _ := f.hub.Registry().MotionEpoch(); epoch != 2 {
		t.Fatalf("motion epoch after failed upload = %d, want 2", epoch)
	}
}

func TestHub_HeartbeatBeforeUploadKeepsClip(t *testing.T) {
	f := newFixture(t, Config{})
	_, _, appKeyrings := openKeyrings(t)
	plain := f.capture(t, 100)

	if _, err := f.hub.RespondHeartbeat(heartbeat.Request{Timestamp: 1, MotionEpoch: 0}); err != nil {
		t.Fatalf("RespondHeartbeat: %v", err)
	}
	if got := unsentTimestamps(f.ledger); !reflect.DeepEqual(got, []uint64{100}) {
		t.Fatalf("unsent after heartbeat = %v, want [100]", got)
	}

	n, err := f.hub.UploadPending(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("UploadPending = %d, %v", n, err)
	}
	if f.sink.count() != 1 {
		t.Fatalf("relay received %d clips, want 1", f.sink.count())
	}
	got, err := appKeyrings[channel.Video].Decrypt(f.sink.blobs[0], false)
	if err != nil {
		t.Fatalf("app Decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("uploaded %q, want %q", got, plain)
	}

	// Uploaded and acknowledged: nothing is left on disk or in the ledger.
	if exists(filepath.Join(f.videoDir, "video_100.mp4")) {
		t.Error("plaintext kept after upload and acknowledgement")
	}
	if f.ledger.Tracks(100) {
		t.Error("clip still tracked")
	}
}

func TestHub_HeartbeatRoundTrip(t *testing.T) {
	camera := newFixture(t, Config{})
	app := newFixture(t, Config{})

	msg, err := camera.hub.RespondHeartbeat(heartbeat.Request{Timestamp: 7})
	if err != nil {
		t.Fatalf("RespondHeartbeat: %v", err)
	}
	res, err := app.hub.VerifyHeartbeat(msg, 7)
	if err != nil {
		t.Fatalf("VerifyHeartbeat: %v", err)
	}
	if !heartbeat.IsHealthy(res) {
		t.Fatalf("result = %v, want healthy", res)
	}

	if _, err := camera.keyrings[channel.Livestream].Rekey(); err != nil {
		t.Fatal(err)
	}
	msg, err = camera.hub.RespondHeartbeat(heartbeat.Request{Timestamp: 8})
	if err != nil {
		t.Fatal(err)
	}
	res, err = app.hub.VerifyHeartbeat(msg, 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.(heartbeat.InvalidEpoch); !ok {
		t.Fatalf("result after rekey = %v, want InvalidEpoch", res)
	}
}

func TestHub_FlushUpdates(t *testing.T) {
	f := newFixture(t, Config{})
	for _, u := range []string{"u1", "u2"} {
		if err := f.hub.QueueUpdate([]byte(u)); err != nil {
			t.Fatalf("QueueUpdate: %v", err)
		}
	}

	n, err := f.hub.FlushUpdates(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("FlushUpdates = %d, %v", n, err)
	}
	got, err := f.relay.Updates()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, [][]byte{[]byte("u1"), []byte("u2")}) {
		t.Fatalf("relay updates = %q", got)
	}
	if len(f.ledger.PeekUpdates()) != 0 {
		t.Fatal("updates not drained")
	}
	if n, err := f.hub.FlushUpdates(context.Background()); n != 0 || err != nil {
		t.Fatalf("empty flush = %d, %v", n, err)
	}
}

func TestHub_FlushFailureKeepsUpdates(t *testing.T) {
	f := newFixture(t, Config{})
	f.hub.control = failingControl{f.relay}
	if err := f.hub.QueueUpdate([]byte("u1")); err != nil {
		t.Fatal(err)
	}

	if _, err := f.hub.FlushUpdates(context.Background()); err == nil {
		t.Fatal("FlushUpdates succeeded over a failing relay")
	}
	if got := f.ledger.PeekUpdates(); len(got) != 1 {
		t.Fatalf("queued updates = %d, want 1", len(got))
	}
}

func TestHub_Run(t *testing.T) {
	f := newFixture(t, Config{UploadInterval: 20 * time.Millisecond, HeartbeatWait: 50 * time.Millisecond})
	// The capture must outlive the heartbeat, so it is taken after a rekey
	// and the request confirms only epoch 0.
	if _, err := f.keyrings[channel.Motion].Rekey(); err != nil {
		t.Fatal(err)
	}
	f.capture(t, 5)
	if err := f.hub.QueueUpdate([]byte("commit")); err != nil {
		t.Fatal(err)
	}
	req, err := heartbeat.EncodeRequest(heartbeat.Request{Timestamp: 99, MotionEpoch: 0})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.relay.SubmitRequest(req); err != nil {
		t.Fatal(err)
	}

	if err := f.hub.Ready(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Ready before Run = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.hub.Run(ctx) }()

	var responses [][]byte
	deadline := time.Now().Add(5 * time.Second)
	for len(responses) == 0 || f.sink.count() == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("hub did not answer: %d responses, %d uploads", len(responses), f.sink.count())
		}
		got, err := f.relay.Responses()
		if err != nil {
			t.Fatal(err)
		}
		responses = append(responses, got...)
		time.Sleep(20 * time.Millisecond)
	}
	if err := f.hub.Ready(); err != nil {
		t.Errorf("Ready while running = %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}

	msg, err := heartbeat.DecodeMessage(responses[0])
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Timestamp != 99 {
		t.Fatalf("response timestamp = %d", msg.Timestamp)
	}
	updates, err := f.relay.Updates()
	if err != nil || len(updates) != 1 {
		t.Fatalf("updates = %q, %v", updates, err)
	}
}
