// Package adminserver serves the camhub-server admin HTTP API:
//
//   - GET /health: liveness
//   - GET /ready: readiness of the hub
//   - GET /metrics: Prometheus exposition
//   - GET /v1/ledger: delivery ledger counts and the unsent queue
//   - GET /v1/channels: channel roles and current epochs
//
// Every request passes through RequestID, Recover and AccessLog.
// The API is read-only and is meant to be bound to a loopback or
// management address.
package adminserver
