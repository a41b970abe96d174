package l2cap

// L2CAP Channel Identifier namespace for LE-U logical link [Vol 3, Part A, 2.1].
const (
	CidAtt    uint16 = 0x0004 // Attribute Protocol [Vol 3, Part F].
	CidSignal uint16 = 0x0005 // Low Energy L2CAP Signaling channel [Vol 3, Part A, 4].
	CidSmp    uint16 = 0x0006 // Security Manager Protocol [Vol 3, Part H].

	FirstFixedCid uint16 = 0x0001
	LastFixedCid  uint16 = 0x003F
)

// IsValidFixedCid reports whether cid may carry a registered fixed channel
// service. The signaling channel belongs to L2CAP itself.
func IsValidFixedCid(cid uint16) bool {
	return cid >= FirstFixedCid && cid <= LastFixedCid && cid != CidSignal
}
