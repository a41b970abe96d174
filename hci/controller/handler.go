package controller

import (
	"github.com/pkg/errors"
	"github.com/rigado/l2cap/hci"
	"github.com/rigado/l2cap/hci/evt"
)

func (c *Controller) handlePkt(b []byte) error {
	if len(b) == 0 {
		return errors.New("empty packet")
	}

	// Strip the 1-byte HCI header and pass down the rest of the packet.
	t, b := b[0], b[1:]
	switch t {
	case hci.PktTypeEvent:
		return c.handleEvt(b)
	case hci.PktTypeACLData:
		// data is not routed by this layer
		return nil

	case hci.PktTypeCommand:
		return errors.Errorf("unmanaged cmd: % X", b)
	case hci.PktTypeSCOData:
		return errors.Errorf("unsupported sco packet: % X", b)
	case hci.PktTypeVendor:
		return errors.Errorf("unsupported vendor packet: % X", b)
	default:
		return errors.Errorf("invalid packet: 0x%02X % X", t, b)
	}
}

func (c *Controller) handleEvt(b []byte) error {
	if len(b) < 2 {
		return errors.Errorf("short event packet: % X", b)
	}
	code, plen := int(b[0]), int(b[1])
	if plen != len(b[2:]) {
		return errors.Errorf("invalid event packet: % X", b)
	}

	if f := c.evth[code]; f != nil {
		return f(b[2:])
	}
	if code == evt.VendorCode {
		return nil
	}
	c.log.Debugf("unhandled event 0x%02X: % X", code, b[2:])
	return nil
}

func (c *Controller) handleLEMeta(b []byte) error {
	if len(b) == 0 {
		return errors.New("empty le meta event")
	}
	subcode := int(b[0])
	if f := c.subh[subcode]; f != nil {
		return f(b)
	}
	c.log.Debugf("unhandled le event 0x%02X: % X", subcode, b)
	return nil
}

func (c *Controller) handleCommandComplete(b []byte) error {
	e := evt.CommandComplete(b)
	n, err := e.NumHCICommandPacketsWErr()
	if err != nil {
		return errors.Wrap(err, "command complete")
	}
	c.setAllowedCommands(int(n))

	op, err := e.CommandOpcodeWErr()
	if err != nil {
		return errors.Wrap(err, "command complete")
	}
	// NOP command, used for flow control purpose [Vol 2, Part E, 4.4]
	if op == 0x0000 {
		return nil
	}
	rp, err := e.ReturnParametersWErr()
	if err != nil {
		return errors.Wrap(err, "command complete")
	}
	return c.complete(int(op), rp)
}

func (c *Controller) handleCommandStatus(b []byte) error {
	e := evt.CommandStatus(b)
	status, err := e.StatusWErr()
	if err != nil {
		return errors.Wrap(err, "command status")
	}
	n, err := e.NumHCICommandPacketsWErr()
	if err != nil {
		return errors.Wrap(err, "command status")
	}
	c.setAllowedCommands(int(n))

	op, err := e.CommandOpcodeWErr()
	if err != nil {
		return errors.Wrap(err, "command status")
	}
	if op == 0x0000 {
		return nil
	}
	return c.complete(int(op), []byte{status})
}

func (c *Controller) complete(op int, rp []byte) error {
	c.muSent.Lock()
	p, found := c.sent[op]
	c.muSent.Unlock()
	if !found {
		return errors.Errorf("no pending command for opcode 0x%04X", op)
	}

	select {
	case p.done <- rp:
	default:
		return errors.Errorf("duplicate response for opcode 0x%04X", op)
	}
	return nil
}

func (c *Controller) handleLEEnhancedConnectionComplete(b []byte) error {
	e, err := evt.LEEnhancedConnectionComplete(b).Legacy()
	if err != nil {
		return errors.Wrap(err, "le enhanced connection complete")
	}
	return c.handleLEConnectionComplete(e)
}

func (c *Controller) handleLEConnectionComplete(b []byte) error {
	e := evt.LEConnectionComplete(b)
	status, err := e.StatusWErr()
	if err != nil {
		return errors.Wrap(err, "le connection complete")
	}
	role, err := e.RoleWErr()
	if err != nil {
		return errors.Wrap(err, "le connection complete")
	}

	if status != 0x00 {
		// only an initiating attempt can fail; an advertiser never sees it
		att := c.claimAttempt(nil)
		if att == nil {
			c.log.Debugf("connection complete with status %s and no attempt", hci.ErrorCode(status))
			return nil
		}
		c.failAttempt(att, hci.ErrorCode(status))
		return nil
	}

	ac, err := newAclConnection(c, e)
	if err != nil {
		return errors.Wrap(err, "le connection complete")
	}

	c.muConns.Lock()
	c.conns[ac.handle] = ac
	c.muConns.Unlock()

	if hci.Role(role) == hci.RoleCentral {
		if att := c.claimAttempt(nil); att != nil && att.peer != ac.id {
			c.log.Warnf("connected to %s while attempting %s", ac.id, att.peer)
			c.failAttempt(att, hci.ErrUnspecified)
		}
	}

	c.log.Infof("connected %s handle 0x%04X as %s", ac.id, ac.handle, ac.role)
	c.emit(hci.LeConnectSuccess{Connection: ac})
	return nil
}

func (c *Controller) handleDisconnectionComplete(b []byte) error {
	e := evt.DisconnectionComplete(b)
	status, err := e.StatusWErr()
	if err != nil {
		return errors.Wrap(err, "disconnection complete")
	}
	handle, err := e.ConnectionHandleWErr()
	if err != nil {
		return errors.Wrap(err, "disconnection complete")
	}
	if status != 0x00 {
		c.log.Warnf("disconnect of handle 0x%04X failed: %s", handle, hci.ErrorCode(status))
		return nil
	}
	reason, err := e.ReasonWErr()
	if err != nil {
		return errors.Wrap(err, "disconnection complete")
	}

	c.muConns.Lock()
	ac, found := c.conns[handle]
	delete(c.conns, handle)
	c.muConns.Unlock()
	if !found {
		return errors.Errorf("disconnect of unknown handle 0x%04X", handle)
	}

	c.log.Infof("disconnected %s handle 0x%04X: %s", ac.id, handle, hci.ErrorCode(reason))
	c.emit(hci.LeDisconnect{Identity: ac.id, Handle: handle, Status: hci.ErrorCode(reason)})
	return nil
}
