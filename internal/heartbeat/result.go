package heartbeat

import "fmt"

// Result is the outcome of Process. It is one of InvalidTimestamp,
// InvalidCiphertext, InvalidEpoch or Healthy.
type Result interface {
	// Kind is a stable label for logs and metrics.
	Kind() string
	String() string

	isResult()
}

// InvalidTimestamp means the message timestamp is not the expected one.
type InvalidTimestamp struct {
	Got  uint64
	Want uint64
}

// InvalidCiphertext means a channel's entry could not be authenticated or
// did not seal this round's timestamp. Channel is empty when the message
// itself is malformed.
type InvalidCiphertext struct {
	Channel string
	Reason  string
}

// InvalidEpoch means an epoch-bearing channel has diverged between peers.
type InvalidEpoch struct {
	Channel string
	Local   uint64
	Remote  uint64
}

// Healthy means every channel attested to Timestamp.
type Healthy struct {
	Timestamp uint64
}

func (InvalidTimestamp) isResult()  {}
func (InvalidCiphertext) isResult() {}
func (InvalidEpoch) isResult()      {}
func (Healthy) isResult()           {}

func (InvalidTimestamp) Kind() string  { return "invalid_timestamp" }
func (InvalidCiphertext) Kind() string { return "invalid_ciphertext" }
func (InvalidEpoch) Kind() string      { return "invalid_epoch" }
func (Healthy) Kind() string           { return "healthy" }

func (r InvalidTimestamp) String() string {
	return fmt.Sprintf("invalid timestamp: got %d, want %d", r.Got, r.Want)
}

func (r InvalidCiphertext) String() string {
	if r.Channel == "" {
		return "invalid ciphertext: " + r.Reason
	}
	return fmt.Sprintf("invalid ciphertext on %s: %s", r.Channel, r.Reason)
}

func (r InvalidEpoch) String() string {
	return fmt.Sprintf("invalid epoch on %s: local %d, remote %d", r.Channel, r.Local, r.Remote)
}

func (r Healthy) String() string {
	return fmt.Sprintf("healthy heartbeat %d", r.Timestamp)
}

// IsHealthy reports whether r is Healthy.
func IsHealthy(r Result) bool {
	_, ok := r.(Healthy)
	return ok
}
