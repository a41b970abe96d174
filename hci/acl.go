package hci

import "github.com/pkg/errors"

// ErrCallbacksRegistered is returned when a second receiver tries to
// register for LE connection events on the same AclManager.
var ErrCallbacksRegistered = errors.New("le connection callbacks already registered")

// Role is the local role on a connection.
type Role uint8

const (
	RoleCentral    Role = 0x00
	RolePeripheral Role = 0x01
)

func (r Role) String() string {
	if r == RoleCentral {
		return "central"
	}
	return "peripheral"
}

// AclConnection is an established LE ACL connection as reported by the
// controller side.
type AclConnection interface {
	Identity() PeerIdentity
	Handle() uint16
	Role() Role

	// Disconnect asks the controller to tear the connection down without
	// waiting for it. The LeDisconnect event follows asynchronously.
	Disconnect(reason ErrorCode) error
}

// AclManager is the controller-facing connection manager.
type AclManager interface {
	// RegisterLeCallbacks installs the single receiver of LE connection
	// events. Events are sent in the order the controller reported them,
	// including those reported before the receiver was installed.
	RegisterLeCallbacks(events chan<- LeConnectionEvent) error

	// CreateLeConnection starts an attempt to connect to the peer. Every
	// attempt ends with exactly one LeConnectSuccess or LeConnectFail.
	CreateLeConnection(peer PeerIdentity) error
}
