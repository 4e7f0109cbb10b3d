// Package delivery tracks captured clips until they are both uploaded
// to the relay and acknowledged by the viewing app.
//
// A Ledger keeps two independent indexes:
//
//	watch    capture timestamp -> descriptor, cleared by DequeueUploaded
//	pending  liveness epoch    -> descriptors, cleared by AdvanceLiveness
//
// plus an ordered log of live-stream control updates that the relay has
// not acknowledged. Every mutation is persisted through a snapshot.Store
// before the call returns. A stale snapshot can only make a clip reappear
// as unsent; it never marks an unseen clip as delivered.
package delivery
