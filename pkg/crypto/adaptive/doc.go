// Package adaptive provides the AEAD primitives camhub builds on.
//
// Two algorithms are supported, both with 256-bit keys:
//
//   - AES-256-GCM, preferred where the CPU has AES instructions
//   - ChaCha20-Poly1305, used on everything else
//
// The ciphertext layout is nonce || sealed, so a Cipher is stateless
// apart from its key and safe for concurrent use.
//
// Keys are never used directly from configuration. DeriveKey expands a
// secret with HKDF-SHA256 under a purpose label (one label per channel
// epoch, one for snapshot encryption), and DeriveKeyFromPassphrase
// stretches an operator passphrase with Argon2id.
package adaptive
