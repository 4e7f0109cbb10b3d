// Package channel defines the ordered set of encrypted channels a camera
// shares with its app.
//
// Each channel is backed by an independent Session whose cryptographic
// epoch advances on rekey. The Registry fixes channel order and roles once
// at construction; the heartbeat protocol walks it by position.
//
// KeyringSession is the Session used by camhub itself: a symmetric ratchet
// over a provisioned shared secret. Group-membership key agreement is
// outside this package.
package channel
