package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/camhub-go/internal/core/domain"
)

// DefaultSettleDelay is how long a capture file must stay unmodified
// before it is enqueued.
const DefaultSettleDelay = 2 * time.Second

// CaptureWatcher enqueues video_<ts>.mp4 files as they appear in the
// video directory. A file is captured once no write has touched it for
// the settle delay.
type CaptureWatcher struct {
	hub     *Hub
	dir     string
	settle  time.Duration
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewCaptureWatcher watches the hub's video directory.
func NewCaptureWatcher(h *Hub, settle time.Duration) (*CaptureWatcher, error) {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("hub: create watcher: %w", err)
	}
	dir := h.ledger.VideoDir()
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("hub: watch %s: %w", dir, err)
	}
	return &CaptureWatcher{
		hub:     h,
		dir:     dir,
		settle:  settle,
		watcher: fw,
		logger:  h.logger,
	}, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *CaptureWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	timers := newSettleTimers(w.settle)
	defer timers.stop()

	w.logger.Info("capture watcher started", "dir", w.dir)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			ts, ok := domain.ParseVideoFilename(filepath.Base(event.Name))
			if !ok {
				continue
			}
			timers.touch(ctx, ts)

		case ev := <-timers.out:
			if timers.settled(ev) {
				w.capture(ev.ts)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("capture watcher error", "error", err)
		}
	}
}

type settleEvent struct {
	ts  uint64
	gen uint64
}

type settleTimer struct {
	timer *time.Timer
	gen   uint64
}

// settleTimers debounces events per capture timestamp. Every touch starts
// a new generation, and only the expiry of the newest one counts, so a
// timer that fired while another write arrived cannot capture twice.
type settleTimers struct {
	delay  time.Duration
	out    chan settleEvent
	timers map[uint64]settleTimer
	gen    uint64
}

func newSettleTimers(delay time.Duration) *settleTimers {
	return &settleTimers{
		delay:  delay,
		out:    make(chan settleEvent),
		timers: make(map[uint64]settleTimer),
	}
}

func (s *settleTimers) touch(ctx context.Context, ts uint64) {
	if prev, ok := s.timers[ts]; ok {
		prev.timer.Stop()
	}
	s.gen++
	ev := settleEvent{ts: ts, gen: s.gen}
	s.timers[ts] = settleTimer{
		gen: ev.gen,
		timer: time.AfterFunc(s.delay, func() {
			select {
			case s.out <- ev:
			case <-ctx.Done():
			}
		}),
	}
}

// settled reports whether ev is the newest expiry for its timestamp and
// forgets the timestamp when it is.
func (s *settleTimers) settled(ev settleEvent) bool {
	cur, ok := s.timers[ev.ts]
	if !ok || cur.gen != ev.gen {
		return false
	}
	delete(s.timers, ev.ts)
	return true
}

func (s *settleTimers) stop() {
	for _, t := range s.timers {
		t.timer.Stop()
	}
}

func (w *CaptureWatcher) capture(ts uint64) {
	d, err := w.hub.Capture(ts)
	switch {
	case errors.Is(err, domain.ErrVideoExists):
		w.logger.Debug("capture already tracked", "capture_ts", ts)
	case err != nil:
		w.logger.Error("capture enqueue failed", "capture_ts", ts, "error", err)
	default:
		w.logger.Info("capture detected", "capture_ts", ts, "epoch", d.LivenessEpoch)
	}
}
