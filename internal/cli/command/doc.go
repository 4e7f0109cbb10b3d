// Package command defines the camhub-cli commands using urfave/cli/v2:
//
//   - root.go: application, global flags, output helpers
//   - status.go: queries against a running camhub-server admin API
//   - inspect.go: offline reads of a hub's state directory
//   - config.go: effective configuration and validation
//   - credentials.go: relay user credentials
//   - channels.go: channel secret provisioning
//
// Commands write to the app's Writer so that tests can capture output.
package command
