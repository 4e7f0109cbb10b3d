// Package hub runs the delivery loop of one camera.
//
// A Hub owns the delivery ledger and the channel registry and is the only
// code that mutates them. Captures are enqueued under the current motion
// epoch, uploaded oldest first as ciphertext sealed on the video channel,
// and purged once a heartbeat request confirms their epoch. Live-stream
// updates are queued durably and flushed to the relay in order.
//
// Every mutation runs under one mutex, so the ledger and the channel
// sessions observe a single sequential owner even when the capture
// watcher, the upload ticker and the control loop run concurrently.
package hub
