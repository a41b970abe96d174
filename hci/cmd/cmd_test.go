package cmd

import (
	"bytes"
	"testing"
)

func TestLECreateConnectionMarshal(t *testing.T) {
	c := &LECreateConnection{
		LEScanInterval:     0x0040,
		LEScanWindow:       0x0030,
		PeerAddressType:    0x01,
		PeerAddress:        [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
		ConnIntervalMin:    0x0006,
		ConnIntervalMax:    0x000C,
		SupervisionTimeout: 0x0400,
	}

	b := make([]byte, c.Len())
	if err := c.Marshal(b); err != nil {
		t.Fatalf("marshal: %v", err)
	}

	exp := []byte{
		0x40, 0x00, 0x30, 0x00, 0x00, 0x01,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06,
		0x00, 0x06, 0x00, 0x0C, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(b, exp) {
		t.Fatalf("got % X, expected % X", b, exp)
	}
	if c.OpCode() != 0x200D {
		t.Fatalf("opcode 0x%04X", c.OpCode())
	}
}

func TestDisconnectMarshal(t *testing.T) {
	c := &Disconnect{ConnectionHandle: 0x0040, Reason: 0x13}
	b := make([]byte, c.Len())
	if err := c.Marshal(b); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(b, []byte{0x40, 0x00, 0x13}) {
		t.Fatalf("got % X", b)
	}
	if c.OpCode() != 0x0406 {
		t.Fatalf("opcode 0x%04X", c.OpCode())
	}
}

func TestMarshalShortBuffer(t *testing.T) {
	for _, c := range []interface {
		Len() int
		Marshal([]byte) error
	}{
		&Disconnect{},
		&LECreateConnection{},
		&SetEventMask{},
		&LESetEventMask{},
	} {
		if err := c.Marshal(make([]byte, c.Len()-1)); err == nil {
			t.Fatalf("%T: expected error", c)
		}
	}
}

func TestUnmarshalRP(t *testing.T) {
	var rp LECreateConnectionCancelRP
	if err := rp.Unmarshal(nil); err == nil {
		t.Fatal("expected error for empty return parameters")
	}
	if err := rp.Unmarshal([]byte{0x0C}); err != nil || rp.Status != 0x0C {
		t.Fatalf("got %v, status 0x%02X", err, rp.Status)
	}
}
