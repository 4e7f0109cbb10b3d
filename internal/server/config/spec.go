package config

import "time"

// HubConfig is the root configuration for camhub-server.
type HubConfig struct {
	Hub      HubSection      `koanf:"hub"`
	Storage  StorageSection  `koanf:"storage"`
	Channels ChannelsSection `koanf:"channels"`
	Relay    RelaySection    `koanf:"relay"`
	Admin    AdminSection    `koanf:"admin"`
	Log      LogSection      `koanf:"log"`
}

// HubSection configures the capture and delivery loop.
type HubSection struct {
	// CameraID names this camera in relay object keys and control lists.
	CameraID string `koanf:"camera_id"`

	// VideoDir holds plaintext captures and encrypted upload blobs.
	VideoDir string `koanf:"video_dir"`

	UploadInterval time.Duration `koanf:"upload_interval"`

	// UploadRate caps uploads per second. Zero disables pacing.
	UploadRate float64 `koanf:"upload_rate"`

	// WatchCaptures enqueues new video_<ts>.mp4 files as they appear.
	WatchCaptures bool `koanf:"watch_captures"`

	// HeartbeatWait bounds each blocking read of the control channel.
	HeartbeatWait time.Duration `koanf:"heartbeat_wait"`
}

// StorageSection configures the snapshot store.
type StorageSection struct {
	StateDir      string `koanf:"state_dir"`
	Compress      bool   `koanf:"compress"`
	EncryptionKey string `koanf:"encryption_key"`
	Passphrase    string `koanf:"passphrase"`
	Cipher        string `koanf:"cipher"`
}

// ChannelsSection configures the per-channel keyrings.
type ChannelsSection struct {
	SecretsFile string `koanf:"secrets_file"`
	Cipher      string `koanf:"cipher"`
}

// RelaySection selects and configures the relay transport.
//
// Mode "local" writes to Dir. Mode "s3" uploads videos to an
// S3-compatible store and exchanges control messages over Redis.
type RelaySection struct {
	Mode string `koanf:"mode"`
	Dir  string `koanf:"dir"`

	S3Endpoint  string `koanf:"s3_endpoint"`
	S3Bucket    string `koanf:"s3_bucket"`
	S3AccessKey string `koanf:"s3_access_key"`
	S3SecretKey string `koanf:"s3_secret_key"`
	S3UseSSL    bool   `koanf:"s3_use_ssl"`
	S3Region    string `koanf:"s3_region"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`
	RedisTLS      bool   `koanf:"redis_tls"`

	// CAFile adds a private CA to the system roots for the S3 and Redis
	// TLS connections.
	CAFile string `koanf:"ca_file"`
}

// AdminSection configures the admin HTTP server. An empty Addr disables it.
type AdminSection struct {
	Addr string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
