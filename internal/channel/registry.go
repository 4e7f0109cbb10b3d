package channel

import (
	"fmt"

	"github.com/yndnr/camhub-go/internal/core/domain"
)

// Standard channel names.
const (
	Motion     = "motion"
	Livestream = "livestream"
	Video      = "video"
	Config     = "config"
)

// Session is one channel's encryption state.
//
// Implementations are not required to be safe for concurrent use; callers
// sequence all access to a session.
type Session interface {
	// Encrypt seals plaintext under the current epoch.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt opens ciphertext. With requireCurrent set, ciphertexts from
	// any epoch other than the current one are rejected.
	Decrypt(ciphertext []byte, requireCurrent bool) ([]byte, error)

	// Epoch returns the current epoch.
	Epoch() (uint64, error)

	// SaveState persists the session.
	SaveState() error
}

// Rekeyer is implemented by sessions that can advance their own epoch.
type Rekeyer interface {
	Rekey() (uint64, error)
}

// Role says what a channel contributes to a heartbeat.
type Role int

const (
	// RoleEpochBearing channels contribute a ciphertext and their epoch.
	RoleEpochBearing Role = iota + 1

	// RoleCiphertextOnly channels contribute a ciphertext only.
	RoleCiphertextOnly

	// RoleExcluded channels take no part in heartbeats.
	RoleExcluded
)

func (r Role) String() string {
	switch r {
	case RoleEpochBearing:
		return "epoch"
	case RoleCiphertextOnly:
		return "ciphertext"
	case RoleExcluded:
		return "excluded"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// CarriesCiphertext reports whether the role contributes a ciphertext.
func (r Role) CarriesCiphertext() bool {
	return r == RoleEpochBearing || r == RoleCiphertextOnly
}

// CarriesEpoch reports whether the role contributes an epoch.
func (r Role) CarriesEpoch() bool {
	return r == RoleEpochBearing
}

func (r Role) valid() bool {
	return r >= RoleEpochBearing && r <= RoleExcluded
}

// StandardRoles is the channel layout every camera uses, in order.
var StandardRoles = []struct {
	Name string
	Role Role
}{
	{Motion, RoleEpochBearing},
	{Livestream, RoleEpochBearing},
	{Video, RoleCiphertextOnly},
	{Config, RoleExcluded},
}

// Channel is a named session with a fixed role.
type Channel struct {
	Name    string
	Role    Role
	Session Session
}

// Registry is an immutable ordered list of channels.
type Registry struct {
	channels    []Channel
	index       map[string]int
	epochs      int
	ciphertexts int
}

// NewRegistry validates the layout and fixes its order. It requires
// unique non-empty names, a session per channel, and an epoch-bearing
// motion channel.
func NewRegistry(channels ...Channel) (*Registry, error) {
	if len(channels) == 0 {
		return nil, domain.ErrChannelLayout.WithDetails("no channels")
	}

	r := &Registry{
		channels: make([]Channel, len(channels)),
		index:    make(map[string]int, len(channels)),
	}
	copy(r.channels, channels)

	for i, ch := range r.channels {
		switch {
		case ch.Name == "":
			return nil, domain.ErrChannelLayout.WithDetails(fmt.Sprintf("channel %d has no name", i))
		case ch.Session == nil:
			return nil, domain.ErrChannelLayout.WithDetails(ch.Name + ": nil session")
		case !ch.Role.valid():
			return nil, domain.ErrChannelLayout.WithDetails(ch.Name + ": unknown role " + ch.Role.String())
		}
		if _, dup := r.index[ch.Name]; dup {
			return nil, domain.ErrChannelLayout.WithDetails("duplicate channel " + ch.Name)
		}
		r.index[ch.Name] = i

		if ch.Role.CarriesEpoch() {
			r.epochs++
		}
		if ch.Role.CarriesCiphertext() {
			r.ciphertexts++
		}
	}

	i, ok := r.index[Motion]
	if !ok {
		return nil, domain.ErrChannelLayout.WithDetails("missing " + Motion + " channel")
	}
	if !r.channels[i].Role.CarriesEpoch() {
		return nil, domain.ErrChannelLayout.WithDetails(Motion + " channel must be epoch-bearing")
	}
	return r, nil
}

// NewStandardRegistry builds the StandardRoles layout from sessions keyed
// by channel name.
func NewStandardRegistry(sessions map[string]Session) (*Registry, error) {
	channels := make([]Channel, 0, len(StandardRoles))
	for _, sr := range StandardRoles {
		s, ok := sessions[sr.Name]
		if !ok {
			return nil, domain.ErrChannelLayout.WithDetails("missing session for " + sr.Name)
		}
		channels = append(channels, Channel{Name: sr.Name, Role: sr.Role, Session: s})
	}
	return NewRegistry(channels...)
}

// Channels returns the channels in registry order.
func (r *Registry) Channels() []Channel {
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

// Len returns the number of channels.
func (r *Registry) Len() int { return len(r.channels) }

// EpochCount is the number of epoch entries a heartbeat carries.
func (r *Registry) EpochCount() int { return r.epochs }

// CiphertextCount is the number of ciphertext entries a heartbeat carries.
func (r *Registry) CiphertextCount() int { return r.ciphertexts }

// Get looks up a channel by name.
func (r *Registry) Get(name string) (Channel, error) {
	i, ok := r.index[name]
	if !ok {
		return Channel{}, domain.ErrChannelNotFound.WithDetails(name)
	}
	return r.channels[i], nil
}

// MotionEpoch returns the current epoch of the motion channel, which
// stamps every enqueued clip.
func (r *Registry) MotionEpoch() (uint64, error) {
	return r.channels[r.index[Motion]].Session.Epoch()
}

// AdvanceMotion moves the motion channel to its next epoch and persists
// it. Clips enqueued afterwards carry the new epoch, so a heartbeat
// confirming the old one covers only clips captured before the call.
func (r *Registry) AdvanceMotion() (uint64, error) {
	s := r.channels[r.index[Motion]].Session
	rk, ok := s.(Rekeyer)
	if !ok {
		return 0, domain.ErrChannelLayout.WithDetails("motion session cannot rekey")
	}
	epoch, err := rk.Rekey()
	if err != nil {
		return 0, err
	}
	if err := s.SaveState(); err != nil {
		return 0, err
	}
	return epoch, nil
}

// Status describes one channel for diagnostics.
type Status struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Epoch uint64 `json:"epoch"`
	Error string `json:"error,omitempty"`
}

// Describe reports every channel's role and current epoch.
func (r *Registry) Describe() []Status {
	out := make([]Status, 0, len(r.channels))
	for _, ch := range r.channels {
		st := Status{Name: ch.Name, Role: ch.Role.String()}
		if epoch, err := ch.Session.Epoch(); err != nil {
			st.Error = err.Error()
		} else {
			st.Epoch = epoch
		}
		out = append(out, st)
	}
	return out
}
