// Package codec provides the CBOR encoding shared by camhub.
//
// CBOR is used for everything camhub writes for itself: snapshot
// payloads (delivery ledger, channel session state) and the heartbeat
// wire envelope exchanged with the app through the relay. JSON is
// reserved for the admin HTTP API and CLI output.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical value always produces identical bytes:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types that are only ever CBOR-encoded use `cbor` struct tags.
package codec
