package config

import "time"

// Relay modes.
const (
	RelayLocal = "local"
	RelayS3    = "s3"
)

// Default configuration values.
const (
	DefaultCameraID       = "camera-0"
	DefaultVideoDir       = "/var/lib/camhub/videos"
	DefaultUploadInterval = 5 * time.Second
	DefaultUploadRate     = 2.0
	DefaultHeartbeatWait  = 5 * time.Second

	DefaultStateDir    = "/var/lib/camhub/state"
	DefaultSecretsFile = "/etc/camhub/channel_secrets.yaml"
	DefaultCipher      = "chacha20-poly1305"

	DefaultRelayDir    = "/var/lib/camhub/relay"
	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultRedisPrefix = "camhub"

	DefaultAdminAddr = "127.0.0.1:5080"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *HubConfig {
	return &HubConfig{
		Hub: HubSection{
			CameraID:       DefaultCameraID,
			VideoDir:       DefaultVideoDir,
			UploadInterval: DefaultUploadInterval,
			UploadRate:     DefaultUploadRate,
			WatchCaptures:  true,
			HeartbeatWait:  DefaultHeartbeatWait,
		},
		Storage: StorageSection{
			StateDir: DefaultStateDir,
			Compress: true,
			Cipher:   DefaultCipher,
		},
		Channels: ChannelsSection{
			SecretsFile: DefaultSecretsFile,
			Cipher:      DefaultCipher,
		},
		Relay: RelaySection{
			Mode:        RelayLocal,
			Dir:         DefaultRelayDir,
			S3UseSSL:    true,
			RedisAddr:   DefaultRedisAddr,
			RedisPrefix: DefaultRedisPrefix,
		},
		Admin: AdminSection{
			Addr: DefaultAdminAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
