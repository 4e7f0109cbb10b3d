package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yndnr/camhub-go/internal/channel"
	"github.com/yndnr/camhub-go/internal/delivery"
	"github.com/yndnr/camhub-go/internal/hub"
	"github.com/yndnr/camhub-go/internal/infra/buildinfo"
	"github.com/yndnr/camhub-go/internal/infra/confloader"
	"github.com/yndnr/camhub-go/internal/infra/shutdown"
	"github.com/yndnr/camhub-go/internal/infra/tlsroots"
	"github.com/yndnr/camhub-go/internal/relay"
	"github.com/yndnr/camhub-go/internal/server/adminserver"
	"github.com/yndnr/camhub-go/internal/server/config"
	"github.com/yndnr/camhub-go/internal/storage/snapshot"
	"github.com/yndnr/camhub-go/internal/telemetry/logger"
	"github.com/yndnr/camhub-go/internal/telemetry/metric"
	"github.com/yndnr/camhub-go/pkg/crypto/adaptive"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		dotEnvFile  = flag.String("env-file", ".env", "Optional .env file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("camhub-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile, *dotEnvFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()

	log.Info("starting camhub-server",
		"version", buildinfo.String(),
		"camera_id", cfg.Hub.CameraID,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	metrics := metric.NewRegistry()
	metrics.RegisterRuntime()

	store, err := initStore(cfg, slogLogger, metrics)
	if err != nil {
		return fmt.Errorf("init snapshot store: %w", err)
	}

	registry, err := initChannels(cfg, store)
	if err != nil {
		store.Close()
		return fmt.Errorf("init channels: %w", err)
	}

	ledger, err := delivery.Open(store, cfg.Hub.VideoDir, slogLogger)
	if err != nil {
		store.Close()
		return fmt.Errorf("open ledger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink, control, closeRelay, err := initRelay(ctx, cfg, slogLogger)
	if err != nil {
		store.Close()
		return fmt.Errorf("init relay: %w", err)
	}

	h, err := hub.New(hub.Config{
		UploadInterval: cfg.Hub.UploadInterval,
		UploadRate:     cfg.Hub.UploadRate,
		HeartbeatWait:  cfg.Hub.HeartbeatWait,
	}, ledger, registry, sink, control,
		hub.WithMetrics(metrics),
		hub.WithLogger(slogLogger),
	)
	if err != nil {
		closeRelay()
		store.Close()
		return fmt.Errorf("init hub: %w", err)
	}

	if n, err := h.Reconcile(); err != nil {
		log.Warn("capture reconcile incomplete", "enqueued", n, "error", err)
	} else if n > 0 {
		log.Info("enqueued captures found on disk", "count", n)
	}

	shutdownHandler := shutdown.NewHandler(shutdownTimeout)
	shutdownHandler.SetLogger(slogLogger)

	// Hooks run in reverse order of registration.
	shutdownHandler.OnShutdown("snapshot-store", func(context.Context) error {
		return store.Close()
	})
	shutdownHandler.OnShutdown("relay", func(context.Context) error {
		return closeRelay()
	})

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := h.Run(ctx); err != nil {
			log.Error("hub stopped", "error", err)
			shutdownHandler.Trigger()
		}
	}()
	shutdownHandler.OnShutdown("hub", func(hookCtx context.Context) error {
		cancel()
		select {
		case <-hubDone:
			return nil
		case <-hookCtx.Done():
			return hookCtx.Err()
		}
	})

	if cfg.Hub.WatchCaptures {
		w, err := hub.NewCaptureWatcher(h, hub.DefaultSettleDelay)
		if err != nil {
			return fmt.Errorf("init capture watcher: %w", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error("capture watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Admin.Addr != "" {
		admin := adminserver.New(cfg.Admin.Addr, adminserver.NewRouter(&adminserver.RouterConfig{
			Ledger:   ledger,
			Channels: registry,
			Metrics:  metrics.Handler(),
			Ready:    h.Ready,
			Logger:   slogLogger,
		}), slogLogger)

		go func() {
			if err := admin.ListenAndServe(); err != nil {
				log.Error("admin server error", "error", err)
				shutdownHandler.Trigger()
			}
		}()
		shutdownHandler.OnShutdown("admin-server", admin.Shutdown)
	}

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, *dotEnvFile, slogLogger)
		if err != nil {
			log.Warn("configuration reload disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config-watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	log.Info("hub started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(context.Background()); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("hub stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile, dotEnvFile string) (*config.HubConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithDotEnv(dotEnvFile)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger creates the process logger and installs it as the default.
func initLogger(cfg *config.HubConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

func initStore(cfg *config.HubConfig, log *slog.Logger, metrics *metric.Registry) (*snapshot.Store, error) {
	st := cfg.Storage
	cipher, err := snapshot.NewCipher(snapshot.EncryptionConfig{
		Key:        []byte(st.EncryptionKey),
		Passphrase: []byte(st.Passphrase),
		Algorithm:  st.Cipher,
	}, st.StateDir)
	if err != nil {
		return nil, err
	}
	if cipher == nil {
		log.Warn("snapshot encryption disabled, state is stored in the clear")
	}
	return snapshot.New(snapshot.Config{
		Dir:      st.StateDir,
		Cipher:   cipher,
		Compress: st.Compress,
		Logger:   log,
		Observer: metrics,
	})
}

// initChannels opens every channel keyring and persists its state so a
// later start no longer needs the secrets file.
func initChannels(cfg *config.HubConfig, store *snapshot.Store) (*channel.Registry, error) {
	secrets, err := channel.LoadSecrets(cfg.Channels.SecretsFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	defer func() {
		for _, s := range secrets {
			adaptive.Zero(s)
		}
	}()

	kind, err := adaptive.ParseType(cfg.Channels.Cipher)
	if err != nil {
		return nil, err
	}
	registry, keyrings, err := channel.OpenStandardKeyrings(store, secrets, kind)
	if err != nil {
		return nil, err
	}
	for _, sr := range channel.StandardRoles {
		if err := keyrings[sr.Name].SaveState(); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// initRelay builds the relay transport. The returned func releases it.
func initRelay(ctx context.Context, cfg *config.HubConfig, log *slog.Logger) (relay.VideoSink, relay.ControlChannel, func() error, error) {
	rc := cfg.Relay
	switch rc.Mode {
	case config.RelayS3:
		tlsConfig, err := tlsroots.ClientConfig(rc.CAFile)
		if err != nil {
			return nil, nil, nil, err
		}
		sink, err := relay.NewMinioSink(relay.S3Config{
			Endpoint:  rc.S3Endpoint,
			Bucket:    rc.S3Bucket,
			AccessKey: rc.S3AccessKey,
			SecretKey: rc.S3SecretKey,
			UseSSL:    rc.S3UseSSL,
			Region:    rc.S3Region,
			TLS:       tlsConfig,
		}, cfg.Hub.CameraID, log)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sink.EnsureBucket(ctx); err != nil {
			return nil, nil, nil, err
		}
		redisCfg := relay.RedisConfig{
			Addr:     rc.RedisAddr,
			Password: rc.RedisPassword,
			DB:       rc.RedisDB,
			Prefix:   rc.RedisPrefix,
		}
		if rc.RedisTLS {
			redisCfg.TLS = tlsConfig
		}
		control, err := relay.NewRedisControl(ctx, redisCfg, cfg.Hub.CameraID)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("relay configured", "mode", rc.Mode, "endpoint", rc.S3Endpoint, "bucket", rc.S3Bucket, "redis", rc.RedisAddr)
		return sink, control, control.Close, nil

	default:
		dir, err := relay.NewDir(rc.Dir, cfg.Hub.CameraID)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("relay configured", "mode", config.RelayLocal, "dir", dir.String())
		return dir, dir, func() error { return nil }, nil
	}
}

// watchConfig reloads the log level when the configuration file changes.
// Other settings take effect on restart.
func watchConfig(configFile, dotEnvFile string, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		watcher.Stop()
		return nil, err
	}
	watcher.OnChange(func(path string) {
		cfg := config.Default()
		loader := confloader.NewLoader(
			confloader.WithConfigFile(path),
			confloader.WithDotEnv(dotEnvFile),
		)
		if err := loader.Load(cfg); err != nil {
			log.Warn("configuration reload failed", "path", path, "error", err)
			return
		}
		if !logger.ValidLevel(cfg.Log.Level) {
			log.Warn("ignoring invalid log level", "level", cfg.Log.Level)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	watcher.StartAsync()
	return watcher, nil
}
