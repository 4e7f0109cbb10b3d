// Package buildinfo exposes version information injected at build time:
//
//	go build -ldflags "-X github.com/yndnr/camhub-go/internal/infra/buildinfo.Version=v0.3.0 \
//	  -X github.com/yndnr/camhub-go/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// When ldflags are absent, Get falls back to the module build info
// recorded by the Go toolchain.
package buildinfo
