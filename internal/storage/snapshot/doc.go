// Package snapshot provides crash-consistent, file-based persistence of
// small state objects.
//
// Every state object belongs to a category (for example
// "delivery_ledger" or "channel_motion"). Each Save writes a complete new
// image of the state to
//
//	<dir>/<category>_<generation>
//
// where generation is a strictly increasing nanosecond timestamp, makes
// it durable, and only then deletes every older file of that category.
// A crash at any point leaves at least one loadable image behind:
//
//   - before the rename: only a <category>_<generation>.tmp file exists,
//     which loaders ignore and the next Save removes
//   - after the rename but before pruning: several images exist, the
//     loader picks the newest that decodes, the next Save prunes
//
// File layout:
//
//	[magic:8 "CAMHSNAP"][version:1][flags:1][payloadLen:4 BE]
//	[payload:payloadLen]            (CBOR, optionally zstd, optionally AEAD)
//	[checksum:32 BLAKE3 of all bytes above]
//
// A truncated or bit-flipped file fails the checksum and is skipped by
// the loader, which then falls back to the next older generation.
//
// Store is not safe for concurrent Saves to the same category; callers
// serialize them (camhub funnels every mutation through the hub's lock).
package snapshot
