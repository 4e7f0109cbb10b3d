package hub

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCaptureWatcher(t *testing.T) {
	f := newFixture(t, Config{})
	f.capture(t, 1)

	w, err := NewCaptureWatcher(f.hub, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewCaptureWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run = %v", err)
		}
	}()

	// Give the watcher a moment to start reading events.
	time.Sleep(50 * time.Millisecond)

	f.record(t, 2)
	if err := os.WriteFile(filepath.Join(f.videoDir, "thumbnail.jpg"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Rewriting a tracked capture is ignored.
	f.record(t, 1)

	deadline := time.Now().Add(5 * time.Second)
	for !f.ledger.Tracks(2) {
		if time.Now().After(deadline) {
			t.Fatal("capture 2 was not enqueued")
		}
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := f.ledger.Stats().Unsent; got != 2 {
		t.Fatalf("unsent = %d, want 2", got)
	}
}

func TestCaptureWatcher_MissingDir(t *testing.T) {
	f := newFixture(t, Config{})
	if err := os.RemoveAll(f.videoDir); err != nil {
		t.Fatal(err)
	}
	if _, err := NewCaptureWatcher(f.hub, 0); err == nil {
		t.Fatal("NewCaptureWatcher on a missing directory succeeded")
	}
}

func TestSettleTimers_LateWriteCapturesOnce(t *testing.T) {
	timers := newSettleTimers(5 * time.Millisecond)
	defer timers.stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timers.touch(ctx, 7)
	// The first timer fires and waits on the channel before the next write.
	time.Sleep(50 * time.Millisecond)
	timers.touch(ctx, 7)

	settled := 0
	timeout := time.After(300 * time.Millisecond)
	for done := false; !done; {
		select {
		case ev := <-timers.out:
			if timers.settled(ev) {
				settled++
			}
		case <-timeout:
			done = true
		}
	}
	if settled != 1 {
		t.Fatalf("settled %d times, want 1", settled)
	}

	// A later write starts a fresh debounce.
	timers.touch(ctx, 7)
	select {
	case ev := <-timers.out:
		if !timers.settled(ev) {
			t.Fatal("fresh write did not settle")
		}
	case <-time.After(time.Second):
		t.Fatal("fresh write never settled")
	}
}
