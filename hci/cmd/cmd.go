// Package cmd holds the HCI commands the connection layer sends.
package cmd

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var errShortBuffer = errors.New("buffer too short")

func checkLen(b []byte, n int) error {
	if len(b) < n {
		return errors.Wrapf(errShortBuffer, "need %d, have %d", n, len(b))
	}
	return nil
}

// Reset implements Reset (0x03|0x0003) [Vol 2, Part E, 7.3.2]
type Reset struct{}

func (c *Reset) OpCode() int            { return 0x03<<10 | 0x0003 }
func (c *Reset) Len() int               { return 0 }
func (c *Reset) Marshal(b []byte) error { return nil }

// ResetRP is the return parameters of Reset.
type ResetRP struct {
	Status uint8
}

func (rp *ResetRP) Unmarshal(b []byte) error {
	if err := checkLen(b, 1); err != nil {
		return err
	}
	rp.Status = b[0]
	return nil
}

// SetEventMask implements Set Event Mask (0x03|0x0001) [Vol 2, Part E, 7.3.1]
type SetEventMask struct {
	EventMask uint64
}

func (c *SetEventMask) OpCode() int { return 0x03<<10 | 0x0001 }
func (c *SetEventMask) Len() int    { return 8 }
func (c *SetEventMask) Marshal(b []byte) error {
	if err := checkLen(b, c.Len()); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, c.EventMask)
	return nil
}

// LESetEventMask implements LE Set Event Mask (0x08|0x0001) [Vol 2, Part E, 7.8.1]
type LESetEventMask struct {
	LEEventMask uint64
}

func (c *LESetEventMask) OpCode() int { return 0x08<<10 | 0x0001 }
func (c *LESetEventMask) Len() int    { return 8 }
func (c *LESetEventMask) Marshal(b []byte) error {
	if err := checkLen(b, c.Len()); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, c.LEEventMask)
	return nil
}

// Disconnect implements Disconnect (0x01|0x0006) [Vol 2, Part E, 7.1.6]
type Disconnect struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (c *Disconnect) OpCode() int { return 0x01<<10 | 0x0006 }
func (c *Disconnect) Len() int    { return 3 }
func (c *Disconnect) Marshal(b []byte) error {
	if err := checkLen(b, c.Len()); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, c.ConnectionHandle)
	b[2] = c.Reason
	return nil
}

// LECreateConnection implements LE Create Connection (0x08|0x000D) [Vol 2, Part E, 7.8.12]
type LECreateConnection struct {
	LEScanInterval        uint16
	LEScanWindow          uint16
	InitiatorFilterPolicy uint8
	PeerAddressType       uint8
	PeerAddress           [6]byte
	OwnAddressType        uint8
	ConnIntervalMin       uint16
	ConnIntervalMax       uint16
	ConnLatency           uint16
	SupervisionTimeout    uint16
	MinimumCELength       uint16
	MaximumCELength       uint16
}

func (c *LECreateConnection) OpCode() int { return 0x08<<10 | 0x000D }
func (c *LECreateConnection) Len() int    { return 25 }
func (c *LECreateConnection) Marshal(b []byte) error {
	if err := checkLen(b, c.Len()); err != nil {
		return err
	}
	o := binary.LittleEndian
	o.PutUint16(b[0:], c.LEScanInterval)
	o.PutUint16(b[2:], c.LEScanWindow)
	b[4] = c.InitiatorFilterPolicy
	b[5] = c.PeerAddressType
	copy(b[6:12], c.PeerAddress[:])
	b[12] = c.OwnAddressType
	o.PutUint16(b[13:], c.ConnIntervalMin)
	o.PutUint16(b[15:], c.ConnIntervalMax)
	o.PutUint16(b[17:], c.ConnLatency)
	o.PutUint16(b[19:], c.SupervisionTimeout)
	o.PutUint16(b[21:], c.MinimumCELength)
	o.PutUint16(b[23:], c.MaximumCELength)
	return nil
}

// LECreateConnectionCancel implements LE Create Connection Cancel (0x08|0x000E) [Vol 2, Part E, 7.8.13]
type LECreateConnectionCancel struct{}

func (c *LECreateConnectionCancel) OpCode() int            { return 0x08<<10 | 0x000E }
func (c *LECreateConnectionCancel) Len() int               { return 0 }
func (c *LECreateConnectionCancel) Marshal(b []byte) error { return nil }

// LECreateConnectionCancelRP is the return parameters of LE Create
// Connection Cancel.
type LECreateConnectionCancelRP struct {
	Status uint8
}

func (rp *LECreateConnectionCancelRP) Unmarshal(b []byte) error {
	if err := checkLen(b, 1); err != nil {
		return err
	}
	rp.Status = b[0]
	return nil
}
