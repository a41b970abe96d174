package hci

import (
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidAddr is returned when an address string is not a 48-bit MAC.
var ErrInvalidAddr = errors.New("invalid address")

// AddressType distinguishes public and random LE device addresses.
type AddressType uint8

const (
	AddressTypePublic AddressType = 0x00
	AddressTypeRandom AddressType = 0x01
)

func (t AddressType) String() string {
	switch t {
	case AddressTypePublic:
		return "public"
	case AddressTypeRandom:
		return "random"
	default:
		return fmt.Sprintf("type(0x%02X)", uint8(t))
	}
}

// Address is a 48-bit device address, stored in display order (most
// significant byte first). HCI carries it little-endian; see AddressFromLE.
type Address [6]byte

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (any separator net.ParseMAC accepts).
func ParseAddress(s string) (Address, error) {
	var a Address
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return a, errors.Wrapf(ErrInvalidAddr, "%q", s)
	}
	if len(hw) != len(a) {
		return a, errors.Wrapf(ErrInvalidAddr, "%q is not 48 bits", s)
	}
	copy(a[:], hw)
	return a, nil
}

// AddressFromLE converts an address as it appears in HCI packets.
func AddressFromLE(b [6]byte) Address {
	return Address{b[5], b[4], b[3], b[2], b[1], b[0]}
}

// LE returns the address in HCI (little-endian) byte order.
func (a Address) LE() [6]byte {
	return [6]byte{a[5], a[4], a[3], a[2], a[1], a[0]}
}

func (a Address) String() string {
	return strings.ToUpper(net.HardwareAddr(a[:]).String())
}

// PeerIdentity is the key for all per-peer link state. Both fields take part
// in equality, so it can be used directly as a map key.
type PeerIdentity struct {
	Address Address
	Type    AddressType
}

// NewPeerIdentity parses addr and pairs it with the given type.
func NewPeerIdentity(addr string, t AddressType) (PeerIdentity, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return PeerIdentity{}, err
	}
	return PeerIdentity{Address: a, Type: t}, nil
}

// Hash folds the address bits only. Identities that differ only in type
// collide; lookups stay correct because equality still compares both fields.
func (p PeerIdentity) Hash() uint64 {
	var h uint64
	for _, b := range p.Address {
		h = h<<8 | uint64(b)
	}
	return h
}

func (p PeerIdentity) String() string {
	return fmt.Sprintf("%s/%s", p.Address, p.Type)
}
