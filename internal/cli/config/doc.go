// Package config holds camhub-cli's own settings in ~/.camhub/cli.yaml:
// output defaults and named hub profiles, each pairing an admin server
// address with the camhub-server configuration file used for offline
// inspection.
package config
