package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/camhub-go/internal/telemetry/logger"
	"github.com/yndnr/camhub-go/pkg/crypto/adaptive"
)

// minKeyLen is the shortest accepted storage.encryption_key.
const minKeyLen = 16

// Verify validates the configuration and creates the state and video
// directories when missing.
func Verify(cfg *HubConfig) error {
	return errors.Join(
		verifyHub(&cfg.Hub),
		verifyStorage(&cfg.Storage),
		verifyChannels(&cfg.Channels),
		verifyRelay(&cfg.Relay),
		verifyAdmin(&cfg.Admin),
		verifyLog(&cfg.Log),
	)
}

func verifyHub(cfg *HubSection) error {
	if cfg.CameraID == "" {
		return errors.New("hub.camera_id is required")
	}
	if strings.ContainsAny(cfg.CameraID, "/\\: ") {
		return fmt.Errorf("hub.camera_id %q must not contain '/', '\\', ':' or spaces", cfg.CameraID)
	}
	if cfg.VideoDir == "" {
		return errors.New("hub.video_dir is required")
	}
	if err := os.MkdirAll(cfg.VideoDir, 0o750); err != nil {
		return fmt.Errorf("cannot create video directory: %w", err)
	}
	if cfg.UploadInterval <= 0 {
		return errors.New("hub.upload_interval must be positive")
	}
	if cfg.UploadRate < 0 {
		return errors.New("hub.upload_rate must not be negative")
	}
	if cfg.HeartbeatWait <= 0 {
		return errors.New("hub.heartbeat_wait must be positive")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.StateDir == "" {
		return errors.New("storage.state_dir is required")
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("cannot create state directory: %w", err)
	}
	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) < minKeyLen {
		return fmt.Errorf("storage.encryption_key must be at least %d bytes", minKeyLen)
	}
	if _, err := adaptive.ParseType(cfg.Cipher); err != nil {
		return fmt.Errorf("storage.cipher: %w", err)
	}
	return nil
}

func verifyChannels(cfg *ChannelsSection) error {
	if cfg.SecretsFile == "" {
		return errors.New("channels.secrets_file is required")
	}
	if !filepath.IsAbs(cfg.SecretsFile) {
		return fmt.Errorf("channels.secrets_file %q must be an absolute path", cfg.SecretsFile)
	}
	// Both ends of a channel must agree on the algorithm, so hardware
	// selection is not allowed here.
	switch adaptive.CipherType(cfg.Cipher) {
	case adaptive.CipherAESGCM, adaptive.CipherChaCha20:
		return nil
	default:
		return fmt.Errorf("channels.cipher must be %q or %q, got %q",
			adaptive.CipherAESGCM, adaptive.CipherChaCha20, cfg.Cipher)
	}
}

func verifyRelay(cfg *RelaySection) error {
	switch cfg.Mode {
	case RelayLocal:
		if cfg.Dir == "" {
			return errors.New("relay.dir is required in local mode")
		}
	case RelayS3:
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" {
			return errors.New("relay.s3_endpoint and relay.s3_bucket are required in s3 mode")
		}
		if cfg.RedisAddr == "" {
			return errors.New("relay.redis_addr is required in s3 mode")
		}
		if _, _, err := net.SplitHostPort(cfg.RedisAddr); err != nil {
			return fmt.Errorf("relay.redis_addr: %w", err)
		}
		if cfg.RedisDB < 0 {
			return errors.New("relay.redis_db must not be negative")
		}
		if cfg.CAFile != "" {
			if _, err := os.Stat(cfg.CAFile); err != nil {
				return fmt.Errorf("relay.ca_file: %w", err)
			}
		}
	default:
		return fmt.Errorf("relay.mode must be %q or %q, got %q", RelayLocal, RelayS3, cfg.Mode)
	}
	return nil
}

func verifyAdmin(cfg *AdminSection) error {
	if cfg.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("admin.addr: %w", err)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !logger.ValidLevel(cfg.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Format)
	}
}
