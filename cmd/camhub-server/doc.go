// Package main provides the entry point for camhub-server.
//
// camhub-server runs on a camera hub and keeps its recordings flowing to
// the relay:
//
//   - encrypts and uploads captured clips, oldest first
//   - answers heartbeat requests from the app and purges clips whose
//     liveness epoch the app has confirmed
//   - flushes queued live-stream updates
//   - serves health, readiness, metrics and ledger state over HTTP
//
// Usage:
//
//	camhub-server [flags]
//	camhub-server -config /etc/camhub/camhub.yaml
//
// Configuration is read from the YAML file, an optional .env file and
// CAMHUB_<SECTION>_<KEY> environment variables, in that order.
package main
