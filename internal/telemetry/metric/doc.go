// Package metric exposes camhub's Prometheus metrics.
//
// A Registry owns its own prometheus.Registry so tests can build fresh
// instances; the server registers Go and process collectors on it and
// serves it at /metrics.
package metric
