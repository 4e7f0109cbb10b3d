// Package heartbeat builds and verifies the multi-channel liveness message
// exchanged between a camera and its app.
//
// A heartbeat carries one timestamp. Every channel that takes part seals
// that timestamp under its own session, and epoch-bearing channels also
// report their current epoch. Verification checks the outer timestamp,
// then walks the registry in order: epoch first, then decryption, then
// the sealed timestamp. The first failure decides the Result.
//
// Verification outcomes are values, not errors. Process returns an error
// only when a session's state cannot be persisted.
package heartbeat
