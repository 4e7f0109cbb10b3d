package adminserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yndnr/camhub-go/internal/channel"
	"github.com/yndnr/camhub-go/internal/core/domain"
	"github.com/yndnr/camhub-go/internal/delivery"
)

// LedgerView is the read side of the delivery ledger.
type LedgerView interface {
	Stats() delivery.Stats
	ListUnsent() []domain.VideoDescriptor
}

// ChannelView reports channel state.
type ChannelView interface {
	Describe() []channel.Status
}

// RouterConfig holds the router dependencies. Nil views disable their
// endpoints with 404.
type RouterConfig struct {
	Ledger   LedgerView
	Channels ChannelView

	// Metrics serves /metrics.
	Metrics http.Handler

	// Ready reports whether the hub is serving. Nil means always ready.
	Ready func() error

	Logger *slog.Logger
}

// LedgerResponse is the body of GET /v1/ledger.
type LedgerResponse struct {
	Stats  delivery.Stats           `json:"stats"`
	Unsent []domain.VideoDescriptor `json:"unsent"`
}

// NewRouter builds the admin router.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestID(), Recover(log), AccessLog(log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, CodeNotFound, "not found")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(); err != nil {
				writeError(w, r, http.StatusServiceUnavailable, CodeNotReady, err.Error())
				return
			}
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.Ledger != nil {
			r.Get("/ledger", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, r, http.StatusOK, LedgerResponse{
					Stats:  cfg.Ledger.Stats(),
					Unsent: cfg.Ledger.ListUnsent(),
				})
			})
		}
		if cfg.Channels != nil {
			r.Get("/channels", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, r, http.StatusOK, cfg.Channels.Describe())
			})
		}
	})

	return r
}
