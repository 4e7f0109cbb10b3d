// Package config defines the camhub-server configuration.
//
//   - spec.go: HubConfig struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking of secrets before logging
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// an optional .env file, CAMHUB_SECTION_KEY environment variables and
// command-line overrides, in that order.
package config
