package config

import "strings"

// Sanitize returns a copy of the config with secrets masked, for logging.
func Sanitize(cfg *HubConfig) *HubConfig {
	sanitized := *cfg

	sanitized.Storage.EncryptionKey = maskSecret(sanitized.Storage.EncryptionKey)
	sanitized.Storage.Passphrase = maskSecret(sanitized.Storage.Passphrase)
	sanitized.Relay.S3SecretKey = maskSecret(sanitized.Relay.S3SecretKey)
	sanitized.Relay.RedisPassword = maskSecret(sanitized.Relay.RedisPassword)

	return &sanitized
}

// maskSecret keeps the first and last two characters. Empty stays empty.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
	}
}
