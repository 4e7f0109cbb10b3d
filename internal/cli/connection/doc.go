// Package connection is the camhub-cli client for the camhub-server
// admin API.
package connection
