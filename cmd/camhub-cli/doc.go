// Package main provides the entry point for camhub-cli.
//
// camhub-cli provisions channel secrets and relay credentials, queries a
// running camhub-server and inspects a hub's state directory offline.
package main
