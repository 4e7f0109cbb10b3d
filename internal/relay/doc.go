// Package relay is the transport boundary between a camera hub and the
// untrusted relay that forwards data to the app.
//
// The relay only ever sees ciphertext: encrypted clips through a VideoSink,
// and heartbeats plus queued live-stream updates through a ControlChannel.
// MinioSink and RedisControl talk to real services; Dir implements both
// interfaces on a local directory for development and tests.
package relay
