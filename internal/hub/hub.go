package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yndnr/camhub-go/internal/channel"
	"github.com/yndnr/camhub-go/internal/core/domain"
	"github.com/yndnr/camhub-go/internal/delivery"
	"github.com/yndnr/camhub-go/internal/heartbeat"
	"github.com/yndnr/camhub-go/internal/relay"
	"github.com/yndnr/camhub-go/internal/telemetry/metric"
)

// Default loop timings.
const (
	DefaultUploadInterval = 5 * time.Second
	DefaultHeartbeatWait  = 5 * time.Second

	controlRetryDelay = time.Second
)

// ErrNotRunning is reported by Ready before Run starts and after it returns.
var ErrNotRunning = errors.New("hub: not running")

// Config configures a Hub.
type Config struct {
	// UploadInterval is the period of the upload and flush pass.
	UploadInterval time.Duration

	// UploadRate caps uploads per second. Zero or less disables pacing.
	UploadRate float64

	// HeartbeatWait bounds each blocking read of the control channel.
	HeartbeatWait time.Duration

	// Now returns the capture clock. Defaults to time.Now.
	Now func() time.Time
}

// Hub sequences capture, upload, heartbeat and update delivery.
type Hub struct {
	cfg      Config
	ledger   *delivery.Ledger
	registry *channel.Registry
	sink     relay.VideoSink
	control  relay.ControlChannel
	metrics  *metric.Registry
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu      sync.Mutex
	running atomic.Bool
}

// Option configures optional Hub dependencies.
type Option func(*Hub)

// WithMetrics records hub activity in m.
func WithMetrics(m *metric.Registry) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// New creates a Hub. The registry must contain the standard channels.
func New(cfg Config, ledger *delivery.Ledger, registry *channel.Registry,
	sink relay.VideoSink, control relay.ControlChannel, opts ...Option) (*Hub, error) {
	if ledger == nil || registry == nil || sink == nil || control == nil {
		return nil, errors.New("hub: ledger, registry, sink and control are required")
	}
	if _, err := registry.Get(channel.Video); err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	if _, err := registry.MotionEpoch(); err != nil {
		return nil, fmt.Errorf("hub: motion channel: %w", err)
	}
	motion, err := registry.Get(channel.Motion)
	if err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	if _, ok := motion.Session.(channel.Rekeyer); !ok {
		return nil, fmt.Errorf("hub: %w", domain.ErrChannelLayout.WithDetails("motion session cannot rekey"))
	}

	if cfg.UploadInterval <= 0 {
		cfg.UploadInterval = DefaultUploadInterval
	}
	if cfg.HeartbeatWait <= 0 {
		cfg.HeartbeatWait = DefaultHeartbeatWait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	limit := rate.Inf
	if cfg.UploadRate > 0 {
		limit = rate.Limit(cfg.UploadRate)
	}

	h := &Hub{
		cfg:      cfg,
		ledger:   ledger,
		registry: registry,
		sink:     sink,
		control:  control,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.refreshGauges()
	return h, nil
}

// Ledger returns the delivery ledger for read-only inspection.
func (h *Hub) Ledger() *delivery.Ledger { return h.ledger }

// Registry returns the channel registry.
func (h *Hub) Registry() *channel.Registry { return h.registry }

// Ready reports whether Run is active.
func (h *Hub) Ready() error {
	if !h.running.Load() {
		return ErrNotRunning
	}
	return nil
}

// Capture enqueues the clip captured at ts under the current motion
// epoch. A clip that is already tracked yields domain.ErrVideoExists.
func (h *Hub) Capture(ts uint64) (domain.VideoDescriptor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.captureLocked(ts)
}

// CaptureNow enqueues a clip stamped with the hub clock.
func (h *Hub) CaptureNow() (domain.VideoDescriptor, error) {
	return h.Capture(uint64(h.cfg.Now().Unix()))
}

func (h *Hub) captureLocked(ts uint64) (domain.VideoDescriptor, error) {
	epoch, err := h.registry.MotionEpoch()
	if err != nil {
		return domain.VideoDescriptor{}, fmt.Errorf("hub: motion epoch: %w", err)
	}
	d := domain.NewVideoDescriptor(ts).WithEpoch(epoch)
	if err := h.ledger.Enqueue(d); err != nil {
		return domain.VideoDescriptor{}, err
	}
	if h.metrics != nil {
		h.metrics.VideosEnqueued.Inc()
	}
	h.refreshGauges()
	return d, nil
}

// Reconcile enqueues plaintext clips in the video directory that the
// ledger does not track, such as a capture interrupted before its
// enqueue was persisted. It returns the number of clips enqueued.
func (h *Hub) Reconcile() (int, error) {
	entries, err := os.ReadDir(h.ledger.VideoDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("hub: scan video dir: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ts, ok := domain.ParseVideoFilename(e.Name())
		if !ok || h.ledger.Tracks(ts) {
			continue
		}
		if _, err := h.captureLocked(ts); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		h.logger.Info("reconciled untracked captures", "count", n)
	}
	return n, nil
}

// UploadPending uploads every unsent clip, oldest capture first. The
// pass stops at the first failure, leaving that clip and every later one
// unsent. The lock is held per clip, so heartbeats interleave with a long
// pass.
func (h *Hub) UploadPending(ctx context.Context) (int, error) {
	uploaded := 0
	for _, d := range h.ledger.ListUnsent() {
		if err := h.limiter.Wait(ctx); err != nil {
			return uploaded, err
		}
		ok, err := h.uploadOne(ctx, d)
		if ok {
			uploaded++
		}
		if err != nil {
			if h.metrics != nil {
				h.metrics.UploadErrors.Inc()
			}
			h.logger.Warn("upload failed",
				"capture_ts", d.CaptureTimestamp,
				"epoch", d.LivenessEpoch,
				"error", err,
			)
			return uploaded, err
		}
	}
	return uploaded, nil
}

// uploadOne reports whether d reached the relay. After an upload the
// motion channel moves to a new epoch, so the epoch d carries can only be
// confirmed by a heartbeat sent after d was delivered.
//
// A clip whose plaintext was removed from outside the hub is dropped from
// the watch index without an upload.
func (h *Hub) uploadOne(ctx context.Context, d domain.VideoDescriptor) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.ledger.Tracks(d.CaptureTimestamp) {
		return false, nil
	}

	plaintext, err := os.ReadFile(h.ledger.VideoPath(d))
	if errors.Is(err, os.ErrNotExist) {
		h.logger.Error("capture missing, dropping from upload queue",
			"capture_ts", d.CaptureTimestamp,
			"file", d.Filename,
		)
		return false, h.ledger.DequeueUploaded(d)
	}
	if err != nil {
		return false, fmt.Errorf("hub: read capture: %w", err)
	}

	blobPath := h.ledger.BlobPath(d)
	size, err := h.sealVideo(plaintext, blobPath)
	if err != nil {
		return false, err
	}

	f, err := os.Open(blobPath)
	if err != nil {
		return false, fmt.Errorf("hub: open blob: %w", err)
	}
	err = h.sink.PutVideo(ctx, d.BlobName(), f, size)
	f.Close()
	if err != nil {
		return false, fmt.Errorf("hub: put video: %w", err)
	}

	if err := h.ledger.DequeueUploaded(d); err != nil {
		return false, err
	}
	if h.metrics != nil {
		h.metrics.VideosUploaded.Inc()
		h.metrics.UploadBytes.Add(float64(size))
	}
	h.refreshGauges()

	if _, err := h.registry.AdvanceMotion(); err != nil {
		return true, fmt.Errorf("hub: advance motion epoch: %w", err)
	}
	return true, nil
}

// sealVideo encrypts plaintext on the video channel into path and syncs
// it. It returns the blob size.
func (h *Hub) sealVideo(plaintext []byte, path string) (int64, error) {
	ch, err := h.registry.Get(channel.Video)
	if err != nil {
		return 0, err
	}
	ciphertext, err := ch.Session.Encrypt(plaintext)
	if err != nil {
		return 0, fmt.Errorf("hub: encrypt video: %w", err)
	}
	if err := ch.Session.SaveState(); err != nil {
		return 0, fmt.Errorf("hub: save video channel: %w", err)
	}
	if err := writeSynced(path, ciphertext); err != nil {
		return 0, fmt.Errorf("hub: write blob: %w", err)
	}
	return int64(len(ciphertext)), nil
}

// RespondHeartbeat answers a heartbeat request from the app: every clip
// at or below the confirmed motion epoch is purged, then a heartbeat for
// the request timestamp is generated.
func (h *Hub) RespondHeartbeat(req heartbeat.Request) (*heartbeat.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	acked, err := h.ledger.AdvanceLiveness(req.MotionEpoch)
	if err != nil && len(acked) == 0 {
		return nil, fmt.Errorf("hub: advance liveness: %w", err)
	}
	if err != nil {
		h.logger.Warn("acknowledged captures not fully removed", "epoch", req.MotionEpoch, "error", err)
	}
	if h.metrics != nil {
		h.metrics.VideosAcknowledged.Add(float64(len(acked)))
	}

	msg, err := heartbeat.Generate(h.registry, req.Timestamp)
	if h.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		h.metrics.ObserveHeartbeat("sent", result)
	}
	h.refreshGauges()
	return msg, err
}

// VerifyHeartbeat checks a heartbeat received from a peer.
func (h *Hub) VerifyHeartbeat(msg *heartbeat.Message, expected uint64) (heartbeat.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	res, err := heartbeat.Process(msg, h.registry, expected)
	if h.metrics != nil {
		result := "error"
		if err == nil {
			result = res.Kind()
		}
		h.metrics.ObserveHeartbeat("received", result)
	}
	if err == nil && !heartbeat.IsHealthy(res) {
		h.logger.Warn("unhealthy heartbeat", "result", res.Kind(), "detail", fmt.Sprint(res))
	}
	return res, err
}

// QueueUpdate stores a live-stream update for the next flush.
func (h *Hub) QueueUpdate(blob []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ledger.QueueUpdate(blob); err != nil {
		return err
	}
	h.refreshGauges()
	return nil
}

// FlushUpdates pushes the queued updates to the relay and drains them once
// the relay has accepted all of them.
func (h *Hub) FlushUpdates(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	updates := h.ledger.PeekUpdates()
	if len(updates) == 0 {
		return 0, nil
	}
	if err := h.control.PushUpdates(ctx, updates); err != nil {
		return 0, fmt.Errorf("hub: push updates: %w", err)
	}
	if err := h.ledger.DrainUpdates(); err != nil {
		return 0, err
	}
	if h.metrics != nil {
		h.metrics.UpdatesFlushed.Add(float64(len(updates)))
	}
	h.refreshGauges()
	return len(updates), nil
}

// Run drives the hub until ctx is cancelled: a periodic upload and flush
// pass, and a control loop answering heartbeat requests.
func (h *Hub) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return errors.New("hub: already running")
	}
	defer h.running.Store(false)

	h.logger.Info("hub started",
		"upload_interval", h.cfg.UploadInterval,
		"upload_rate", h.cfg.UploadRate,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.deliveryLoop(ctx) })
	g.Go(func() error { return h.controlLoop(ctx) })
	err := g.Wait()

	h.logger.Info("hub stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *Hub) deliveryLoop(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.UploadInterval)
	defer ticker.Stop()

	for {
		h.deliveryPass(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *Hub) deliveryPass(ctx context.Context) {
	if n, err := h.UploadPending(ctx); n > 0 || (err != nil && ctx.Err() == nil) {
		h.logger.Debug("upload pass", "uploaded", n, "error", err)
	}
	if _, err := h.FlushUpdates(ctx); err != nil && ctx.Err() == nil {
		h.logger.Warn("update flush failed", "error", err)
	}
}

func (h *Hub) controlLoop(ctx context.Context) error {
	for {
		data, err := h.control.NextHeartbeatRequest(ctx, h.cfg.HeartbeatWait)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, relay.ErrNoRequest):
			continue
		case err != nil:
			h.logger.Warn("control channel read failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(controlRetryDelay):
			}
			continue
		}

		if err := h.handleRequest(ctx, data); err != nil {
			h.logger.Warn("heartbeat request failed", "error", err)
		}
	}
}

func (h *Hub) handleRequest(ctx context.Context, data []byte) error {
	req, err := heartbeat.DecodeRequest(data)
	if err != nil {
		return err
	}
	msg, err := h.RespondHeartbeat(req)
	if err != nil {
		return err
	}
	out, err := heartbeat.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := h.control.PublishHeartbeat(ctx, out); err != nil {
		return fmt.Errorf("hub: publish heartbeat: %w", err)
	}
	h.logger.Debug("heartbeat answered", "timestamp", req.Timestamp, "motion_epoch", req.MotionEpoch)
	return nil
}

// refreshGauges publishes ledger and channel state. Callers hold h.mu or
// are constructing the hub.
func (h *Hub) refreshGauges() {
	if h.metrics == nil {
		return
	}
	st := h.ledger.Stats()
	h.metrics.UnsentVideos.Set(float64(st.Unsent))
	h.metrics.PendingVideos.Set(float64(st.Pending))
	h.metrics.QueuedUpdates.Set(float64(st.QueuedUpdates))
	for _, s := range h.registry.Describe() {
		if s.Error == "" {
			h.metrics.ChannelEpoch.WithLabelValues(s.Name).Set(float64(s.Epoch))
		}
	}
}

// writeSynced writes data to path through a synced temporary file.
func writeSynced(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
