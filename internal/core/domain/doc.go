// Package domain defines the core domain types for camhub.
//
// Types here are plain values without IO dependencies:
//
//   - VideoDescriptor: one captured clip tracked until delivery
//   - Errors: coded domain errors shared across packages
package domain
