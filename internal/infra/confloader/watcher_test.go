package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_NotifiesOnlyWatchedFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "camhub.yaml", "log:\n  level: info\n")

	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if err := w.Watch(cfgPath); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	changed := make(chan string, 8)
	w.OnChange(func(p string) { changed <- p })
	w.StartAsync()

	writeFile(t, dir, "unrelated.txt", "x")
	if err := os.WriteFile(cfgPath, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case p := <-changed:
		if filepath.Base(p) != "camhub.yaml" {
			t.Fatalf("callback for %s", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no change notification")
	}
}

func TestWatcher_WatchMissingDir(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if err := w.Watch("/nonexistent/dir/camhub.yaml"); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
