package benchmark

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"

	"github.com/yndnr/camhub-go/internal/channel"
	"github.com/yndnr/camhub-go/internal/core/domain"
	"github.com/yndnr/camhub-go/internal/delivery"
	"github.com/yndnr/camhub-go/internal/storage/snapshot"
	"github.com/yndnr/camhub-go/pkg/crypto/adaptive"
)

// VideoCounts are ledger sizes to benchmark.
var VideoCounts = []int{10, 100, 1000, 5000}

// SmallVideoCounts for quick benchmarks.
var SmallVideoCounts = []int{10, 100, 1000}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// storeMode names a snapshot pipeline configuration.
type storeMode struct {
	name     string
	compress bool
	encrypt  bool
}

var storeModes = []storeMode{
	{name: "plain"},
	{name: "zstd", compress: true},
	{name: "zstd_aead", compress: true, encrypt: true},
}

// newStore opens a snapshot store in a fresh temp dir.
func newStore(b *testing.B, mode storeMode) *snapshot.Store {
	b.Helper()
	dir := b.TempDir()

	var cipher adaptive.Cipher
	if mode.encrypt {
		var err error
		cipher, err = snapshot.NewCipher(snapshot.EncryptionConfig{
			Key:       []byte("benchmark-snapshot-key"),
			Algorithm: string(adaptive.CipherChaCha20),
		}, dir)
		if err != nil {
			b.Fatalf("NewCipher: %v", err)
		}
	}

	store, err := snapshot.New(snapshot.Config{
		Dir:      dir,
		Cipher:   cipher,
		Compress: mode.compress,
		Logger:   quiet,
	})
	if err != nil {
		b.Fatalf("snapshot.New: %v", err)
	}
	b.Cleanup(func() { store.Close() })
	return store
}

// prefillLedger enqueues count clips spread over 10 epochs.
func prefillLedger(b *testing.B, ledger *delivery.Ledger, count int) {
	b.Helper()
	for i := 0; i < count; i++ {
		d := domain.NewVideoDescriptor(uint64(1_700_000_000 + i))
		d.LivenessEpoch = uint64(i % 10)
		if err := ledger.Enqueue(d); err != nil {
			b.Fatalf("Enqueue: %v", err)
		}
	}
}

// openKeyrings builds the standard registry from fresh secrets.
func openKeyrings(b *testing.B, store *snapshot.Store) (*channel.Registry, map[string]*channel.KeyringSession) {
	b.Helper()
	names := make([]string, 0, len(channel.StandardRoles))
	for _, sr := range channel.StandardRoles {
		names = append(names, sr.Name)
	}
	sf, err := channel.GenerateSecrets(names)
	if err != nil {
		b.Fatal(err)
	}
	secrets := make(map[string][]byte, len(sf.Channels))
	for name, enc := range sf.Channels {
		if secrets[name], err = channel.DecodeSecret(enc); err != nil {
			b.Fatal(err)
		}
	}
	reg, keyrings, err := channel.OpenStandardKeyrings(store, secrets, adaptive.CipherChaCha20)
	if err != nil {
		b.Fatalf("OpenStandardKeyrings: %v", err)
	}
	return reg, keyrings
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithVideoCounts runs benchFn once per ledger size.
func runWithVideoCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("videos_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
