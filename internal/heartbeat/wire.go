package heartbeat

import (
	"errors"
	"fmt"

	"github.com/yndnr/camhub-go/pkg/codec"
)

// Opcode tags a control-channel envelope.
type Opcode uint8

const (
	// OpHeartbeatRequest is sent by the app and carries a Request.
	OpHeartbeatRequest Opcode = 0

	// OpHeartbeatResponse is sent by the camera and carries a Message.
	OpHeartbeatResponse Opcode = 1
)

func (o Opcode) String() string {
	switch o {
	case OpHeartbeatRequest:
		return "heartbeat_request"
	case OpHeartbeatResponse:
		return "heartbeat_response"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
}

// ErrUnexpectedOpcode is returned when an envelope carries another opcode
// than the decoder expects.
var ErrUnexpectedOpcode = errors.New("heartbeat: unexpected opcode")

// Request asks the camera for a heartbeat. MotionEpoch is the newest
// motion epoch the app has processed; the camera treats every clip at or
// below it as delivered.
type Request struct {
	Timestamp   uint64 `cbor:"1,keyasint" json:"timestamp"`
	MotionEpoch uint64 `cbor:"2,keyasint" json:"motion_epoch"`
}

type envelope struct {
	Op   Opcode           `cbor:"1,keyasint"`
	Body codec.RawMessage `cbor:"2,keyasint"`
}

// EncodeRequest wraps req in an OpHeartbeatRequest envelope.
func EncodeRequest(req Request) ([]byte, error) {
	return encode(OpHeartbeatRequest, req)
}

// DecodeRequest unwraps an OpHeartbeatRequest envelope.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	err := decode(data, OpHeartbeatRequest, &req)
	return req, err
}

// EncodeMessage wraps msg in an OpHeartbeatResponse envelope.
func EncodeMessage(msg *Message) ([]byte, error) {
	return encode(OpHeartbeatResponse, msg)
}

// DecodeMessage unwraps an OpHeartbeatResponse envelope.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := decode(data, OpHeartbeatResponse, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PeekOpcode returns the opcode of an envelope without decoding its body.
func PeekOpcode(data []byte) (Opcode, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("heartbeat: decode envelope: %w", err)
	}
	return env.Op, nil
}

func encode(op Opcode, body any) ([]byte, error) {
	raw, err := codec.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: encode %s: %w", op, err)
	}
	return codec.Marshal(envelope{Op: op, Body: raw})
}

func decode(data []byte, want Opcode, body any) error {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("heartbeat: decode envelope: %w", err)
	}
	if env.Op != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedOpcode, env.Op, want)
	}
	if err := codec.Unmarshal(env.Body, body); err != nil {
		return fmt.Errorf("heartbeat: decode %s: %w", want, err)
	}
	return nil
}
