package hci

// HCI Packet types
const (
	PktTypeCommand uint8 = 0x01
	PktTypeACLData uint8 = 0x02
	PktTypeSCOData uint8 = 0x03
	PktTypeEvent   uint8 = 0x04
	PktTypeVendor  uint8 = 0xFF
)

// Command is an HCI command packet payload [Vol 2, Part E, 5.4.1].
type Command interface {
	OpCode() int
	Len() int
	Marshal([]byte) error
}

// CommandRP is the return parameters of a command, as carried by Command
// Complete.
type CommandRP interface {
	Unmarshal(b []byte) error
}
