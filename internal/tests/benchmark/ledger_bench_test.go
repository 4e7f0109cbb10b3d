package benchmark

import (
	"testing"

	"github.com/yndnr/camhub-go/internal/core/domain"
	"github.com/yndnr/camhub-go/internal/delivery"
)

// BenchmarkLedgerEnqueue measures one durable enqueue into a ledger that
// already holds count clips.
func BenchmarkLedgerEnqueue(b *testing.B) {
	runWithVideoCounts(b, SmallVideoCounts, func(b *testing.B, count int) {
		store := newStore(b, storeModes[1])
		ledger, err := delivery.Open(store, b.TempDir(), quiet)
		if err != nil {
			b.Fatal(err)
		}
		prefillLedger(b, ledger, count)

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			d := domain.NewVideoDescriptor(uint64(1_800_000_000 + i))
			d.LivenessEpoch = 10
			if err := ledger.Enqueue(d); err != nil {
				b.Fatalf("Enqueue: %v", err)
			}
		}
	})
}

// BenchmarkLedgerListUnsent measures the oldest-first unsent listing.
func BenchmarkLedgerListUnsent(b *testing.B) {
	runWithVideoCounts(b, VideoCounts, func(b *testing.B, count int) {
		store := newStore(b, storeModes[0])
		ledger, err := delivery.Open(store, b.TempDir(), quiet)
		if err != nil {
			b.Fatal(err)
		}
		prefillLedger(b, ledger, count)

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if got := len(ledger.ListUnsent()); got != count {
				b.Fatalf("ListUnsent = %d", got)
			}
		}
	})
}

// BenchmarkLedgerAdvanceLiveness measures purging every pending epoch.
func BenchmarkLedgerAdvanceLiveness(b *testing.B) {
	runWithVideoCounts(b, SmallVideoCounts, func(b *testing.B, count int) {
		store := newStore(b, storeModes[0])
		videoDir := b.TempDir()

		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			b.StopTimer()
			ledger, err := delivery.Open(store, videoDir, quiet)
			if err != nil {
				b.Fatal(err)
			}
			prefillLedger(b, ledger, count)
			b.StartTimer()

			purged, err := ledger.AdvanceLiveness(9)
			if err != nil {
				b.Fatalf("AdvanceLiveness: %v", err)
			}
			if len(purged) != count {
				b.Fatalf("purged %d, want %d", len(purged), count)
			}
		}
	})
}
