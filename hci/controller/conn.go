package controller

import (
	"github.com/pkg/errors"
	"github.com/rigado/l2cap/hci"
	"github.com/rigado/l2cap/hci/cmd"
	"github.com/rigado/l2cap/hci/evt"
)

// aclConnection is an established LE link on this controller.
type aclConnection struct {
	c      *Controller
	id     hci.PeerIdentity
	handle uint16
	role   hci.Role

	interval           uint16
	latency            uint16
	supervisionTimeout uint16
}

var _ hci.AclConnection = (*aclConnection)(nil)

func newAclConnection(c *Controller, e evt.LEConnectionComplete) (*aclConnection, error) {
	handle, err := e.ConnectionHandleWErr()
	if err != nil {
		return nil, err
	}
	role, err := e.RoleWErr()
	if err != nil {
		return nil, err
	}
	at, err := e.PeerAddressTypeWErr()
	if err != nil {
		return nil, err
	}
	a, err := e.PeerAddressWErr()
	if err != nil {
		return nil, err
	}

	ac := &aclConnection{
		c:      c,
		handle: handle,
		role:   hci.Role(role),
		id: hci.PeerIdentity{
			Address: hci.AddressFromLE(a),
			// 0x02 and 0x03 are resolved identity addresses
			Type: hci.AddressType(at & 0x01),
		},
	}
	// timing parameters are informational; a short event leaves them zero
	ac.interval, _ = e.ConnIntervalWErr()
	ac.latency, _ = e.ConnLatencyWErr()
	ac.supervisionTimeout, _ = e.SupervisionTimeoutWErr()
	return ac, nil
}

func (ac *aclConnection) Identity() hci.PeerIdentity { return ac.id }
func (ac *aclConnection) Handle() uint16             { return ac.handle }
func (ac *aclConnection) Role() hci.Role             { return ac.role }

// Disconnect queues HCI Disconnect and returns without waiting for the
// controller. The Disconnection Complete that follows is reported as
// hci.LeDisconnect; a rejected command is only logged.
func (ac *aclConnection) Disconnect(reason hci.ErrorCode) error {
	if _, ok := ac.c.lookupConn(ac.handle); !ok {
		return errors.Errorf("disconnecting an invalid handle 0x%04X", ac.handle)
	}
	if !ac.c.disconnector.Post(func() { ac.disconnect(reason) }) {
		return ErrClosed
	}
	return nil
}

func (ac *aclConnection) disconnect(reason hci.ErrorCode) {
	if _, ok := ac.c.lookupConn(ac.handle); !ok {
		ac.c.log.Debugf("handle 0x%04X gone before disconnect", ac.handle)
		return
	}
	err := ac.c.Send(&cmd.Disconnect{
		ConnectionHandle: ac.handle,
		Reason:           uint8(reason),
	}, nil)
	if err != nil {
		ac.c.log.Warnf("disconnect %s handle 0x%04X: %v", ac.id, ac.handle, err)
	}
}
