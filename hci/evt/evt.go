// Package evt decodes the HCI events the connection layer consumes. Every
// accessor bounds-checks and reports short packets as errors.
package evt

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Event codes [Vol 2, Part E, 7.7].
const (
	DisconnectionCompleteCode = 0x05
	CommandCompleteCode       = 0x0E
	CommandStatusCode         = 0x0F
	LEMetaCode                = 0x3E
	VendorCode                = 0xFF
)

// LE Meta subevent codes [Vol 2, Part E, 7.7.65].
const (
	LEConnectionCompleteSubCode         = 0x01
	LEEnhancedConnectionCompleteSubCode = 0x0A
)

// ErrIndex is returned when an event is shorter than its fields require.
var ErrIndex = errors.New("index error")

// CommandComplete [Vol 2, Part E, 7.7.14]
type CommandComplete []byte

func (e CommandComplete) NumHCICommandPacketsWErr() (uint8, error) {
	return getByte(e, 0, 0)
}

func (e CommandComplete) CommandOpcodeWErr() (uint16, error) {
	return getUint16LE(e, 1, 0xffff)
}

func (e CommandComplete) ReturnParametersWErr() ([]byte, error) {
	if len(e) == 3 {
		return []byte{}, nil
	}
	return getBytes(e, 3, -1)
}

// CommandStatus [Vol 2, Part E, 7.7.15]
type CommandStatus []byte

func (e CommandStatus) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e CommandStatus) NumHCICommandPacketsWErr() (uint8, error) {
	return getByte(e, 1, 0)
}

func (e CommandStatus) CommandOpcodeWErr() (uint16, error) {
	return getUint16LE(e, 2, 0xffff)
}

// DisconnectionComplete [Vol 2, Part E, 7.7.5]
type DisconnectionComplete []byte

func (e DisconnectionComplete) StatusWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e DisconnectionComplete) ConnectionHandleWErr() (uint16, error) {
	h, err := getUint16LE(e, 1, 0xffff)
	return h & 0x0fff, err
}

func (e DisconnectionComplete) ReasonWErr() (uint8, error) {
	return getByte(e, 3, 0xff)
}

// LEConnectionComplete [Vol 2, Part E, 7.7.65.1]. The enhanced variant
// [7.7.65.10] carries two extra addresses before the interval; use
// LEEnhancedConnectionComplete.Legacy to read it through the same accessors.
type LEConnectionComplete []byte

func (e LEConnectionComplete) SubeventCodeWErr() (uint8, error) {
	return getByte(e, 0, 0xff)
}

func (e LEConnectionComplete) StatusWErr() (uint8, error) {
	return getByte(e, 1, 0xff)
}

func (e LEConnectionComplete) ConnectionHandleWErr() (uint16, error) {
	h, err := getUint16LE(e, 2, 0xffff)
	return h & 0x0fff, err
}

func (e LEConnectionComplete) RoleWErr() (uint8, error) {
	return getByte(e, 4, 0xff)
}

func (e LEConnectionComplete) PeerAddressTypeWErr() (uint8, error) {
	return getByte(e, 5, 0xff)
}

// PeerAddressWErr returns the address in HCI byte order.
func (e LEConnectionComplete) PeerAddressWErr() ([6]byte, error) {
	var out [6]byte
	bb, err := getBytes(e, 6, 6)
	if err != nil {
		return out, err
	}
	copy(out[:], bb)
	return out, nil
}

func (e LEConnectionComplete) ConnIntervalWErr() (uint16, error) {
	return getUint16LE(e, 12, 0)
}

func (e LEConnectionComplete) ConnLatencyWErr() (uint16, error) {
	return getUint16LE(e, 14, 0)
}

func (e LEConnectionComplete) SupervisionTimeoutWErr() (uint16, error) {
	return getUint16LE(e, 16, 0)
}

// LEEnhancedConnectionComplete [Vol 2, Part E, 7.7.65.10]
type LEEnhancedConnectionComplete []byte

// Legacy drops the local and peer resolvable private addresses so the
// event can be read as an LEConnectionComplete.
func (e LEEnhancedConnectionComplete) Legacy() (LEConnectionComplete, error) {
	head, err := getBytes(e, 0, 12)
	if err != nil {
		return nil, err
	}
	tail, err := getBytes(e, 24, -1)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(head)+len(tail))
	out = append(out, head...)
	out = append(out, tail...)
	out[0] = LEConnectionCompleteSubCode
	return LEConnectionComplete(out), nil
}

// get or default
func getByte(b []byte, i int, def byte) (byte, error) {
	bb, err := getBytes(b, i, 1)
	if err != nil {
		return def, err
	}
	return bb[0], nil
}

// get or default
func getUint16LE(b []byte, i int, def uint16) (uint16, error) {
	bb, err := getBytes(b, i, 2)
	if err != nil {
		return def, err
	}
	return binary.LittleEndian.Uint16(bb), nil
}

func getBytes(bytes []byte, start int, count int) ([]byte, error) {
	if bytes == nil || start >= len(bytes) {
		return nil, errors.Wrapf(ErrIndex, "start %d, len %d", start, len(bytes))
	}

	if count < 0 {
		return bytes[start:], nil
	}

	end := start + count
	//end is non-inclusive
	if end > len(bytes) {
		return nil, errors.Wrapf(ErrIndex, "end %d, len %d", end, len(bytes))
	}

	return bytes[start:end], nil
}
