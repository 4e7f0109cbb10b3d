package heartbeat

import (
	"errors"
	"reflect"
	"testing"
)

func TestWire_Request(t *testing.T) {
	req := Request{Timestamp: 1700000000, MotionEpoch: 12}
	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	op, err := PeekOpcode(data)
	if err != nil || op != OpHeartbeatRequest {
		t.Fatalf("PeekOpcode = (%v, %v)", op, err)
	}
	got, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if got != req {
		t.Fatalf("got %+v, want %+v", got, req)
	}

	if _, err := DecodeMessage(data); !errors.Is(err, ErrUnexpectedOpcode) {
		t.Fatalf("DecodeMessage(request) err = %v, want ErrUnexpectedOpcode", err)
	}
}

func TestWire_Message(t *testing.T) {
	msg := &Message{
		Timestamp:   42,
		Epochs:      []uint64{3, 4},
		Ciphertexts: [][]byte{{1, 2}, {3}, {4, 5, 6}},
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
}

func TestWire_Garbage(t *testing.T) {
	if _, err := DecodeRequest([]byte{0xff, 0x00}); err == nil {
		t.Fatalf("DecodeRequest accepted garbage")
	}
	if _, err := PeekOpcode(nil); err == nil {
		t.Fatalf("PeekOpcode accepted empty input")
	}
}
