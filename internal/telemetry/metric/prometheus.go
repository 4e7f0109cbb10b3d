package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "camhub"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	VideosEnqueued     prometheus.Counter
	VideosUploaded     prometheus.Counter
	VideosAcknowledged prometheus.Counter
	UploadErrors       prometheus.Counter
	UploadBytes        prometheus.Counter

	Heartbeats       *prometheus.CounterVec
	UpdatesFlushed   prometheus.Counter
	SnapshotSaves    *prometheus.CounterVec
	SnapshotDuration *prometheus.HistogramVec

	UnsentVideos  prometheus.Gauge
	PendingVideos prometheus.Gauge
	QueuedUpdates prometheus.Gauge
	ChannelEpoch  *prometheus.GaugeVec
}

// NewRegistry creates and registers every metric.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	f := factory{reg}

	return &Registry{
		registry: reg,

		VideosEnqueued: f.counter("videos_enqueued_total", "Clips admitted to the delivery ledger."),
		VideosUploaded: f.counter("videos_uploaded_total", "Encrypted clips confirmed stored by the relay."),
		VideosAcknowledged: f.counter("videos_acknowledged_total",
			"Clips purged after a heartbeat confirmed their liveness epoch."),
		UploadErrors: f.counter("upload_errors_total", "Failed clip uploads."),
		UploadBytes:  f.counter("upload_bytes_total", "Encrypted bytes uploaded to the relay."),

		Heartbeats: f.counterVec("heartbeats_total",
			"Heartbeats handled, by direction and result.", "direction", "result"),
		UpdatesFlushed: f.counter("updates_flushed_total", "Live-stream updates delivered to the relay."),
		SnapshotSaves: f.counterVec("snapshot_saves_total",
			"Snapshot saves by category and status.", "category", "status"),
		SnapshotDuration: f.histogramVec("snapshot_save_duration_seconds",
			"Time to write, sync and prune one snapshot.", "category"),

		UnsentVideos:  f.gauge("videos_unsent", "Clips not yet uploaded."),
		PendingVideos: f.gauge("videos_pending", "Clips not yet acknowledged by the app."),
		QueuedUpdates: f.gauge("updates_queued", "Live-stream updates awaiting relay delivery."),
		ChannelEpoch:  f.gaugeVec("channel_epoch", "Current epoch per channel.", "channel"),
	}
}

// RegisterRuntime adds the Go runtime and process collectors.
func (r *Registry) RegisterRuntime() {
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveSnapshotSave records one snapshot save. It satisfies
// snapshot.Observer.
func (r *Registry) ObserveSnapshotSave(category string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.SnapshotSaves.WithLabelValues(category, status).Inc()
	r.SnapshotDuration.WithLabelValues(category).Observe(elapsed.Seconds())
}

// ObserveHeartbeat counts a heartbeat; direction is "sent" or "received".
func (r *Registry) ObserveHeartbeat(direction, result string) {
	r.Heartbeats.WithLabelValues(direction, result).Inc()
}

type factory struct {
	reg prometheus.Registerer
}

func (f factory) counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	f.reg.MustRegister(c)
	return c
}

func (f factory) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	f.reg.MustRegister(c)
	return c
}

func (f factory) gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	f.reg.MustRegister(g)
	return g
}

func (f factory) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	f.reg.MustRegister(g)
	return g
}

func (f factory) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, labels)
	f.reg.MustRegister(h)
	return h
}
