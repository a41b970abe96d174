package controller

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap/hci"
)

// Send issues c and waits for its Command Complete or Command Status. A
// non-zero status is returned as an hci.ErrorCode.
func (c *Controller) Send(cm hci.Command, rp hci.CommandRP) error {
	b, err := c.send(cm)
	if err != nil {
		return err
	}
	if len(b) > 0 && b[0] != 0x00 {
		return errors.Wrapf(hci.ErrorCode(b[0]), "opcode 0x%04X", cm.OpCode())
	}
	if rp != nil {
		return rp.Unmarshal(b)
	}
	return nil
}

func (c *Controller) send(cm hci.Command) ([]byte, error) {
	if !c.isOpen() {
		return nil, ErrClosed
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	p := &pkt{cm, make(chan []byte, 1)}
	timeout := c.params.CommandTimeout

	// get buffer w/timeout
	var b []byte
	select {
	case <-c.done:
		return nil, ErrClosed
	case b = <-c.chCmdBufs:
	case <-time.After(timeout):
		return nil, errors.New("command buffer get timeout")
	}

	// only a command that reached the controller gets its credit back from
	// Command Complete or Command Status
	written := false
	defer func() {
		if !written {
			c.putCmdBuf(b)
		}
	}()

	if 4+cm.Len() > len(b) {
		return nil, errors.Errorf("command 0x%04X too long: %d", cm.OpCode(), cm.Len())
	}
	b[0] = hci.PktTypeCommand // HCI header
	b[1] = byte(cm.OpCode())
	b[2] = byte(cm.OpCode() >> 8)
	b[3] = byte(cm.Len())
	if err := cm.Marshal(b[4:]); err != nil {
		return nil, errors.Wrapf(err, "can't marshal command 0x%04X", cm.OpCode())
	}

	c.muSent.Lock()
	if _, ok := c.sent[cm.OpCode()]; ok {
		c.muSent.Unlock()
		return nil, errors.Errorf("command with opcode 0x%04X pending", cm.OpCode())
	}
	c.sent[cm.OpCode()] = p
	c.muSent.Unlock()

	// clear sent table when done, the controller sometimes answers commands
	// we are no longer waiting for
	defer func() {
		c.muSent.Lock()
		delete(c.sent, cm.OpCode())
		c.muSent.Unlock()
	}()

	c.log.Debugf("send cmd [% X]", b[:4+cm.Len()])
	if n, err := c.skt.Write(b[:4+cm.Len()]); err != nil {
		return nil, errors.Wrap(err, "can't write command")
	} else if n != 4+cm.Len() {
		return nil, errors.Errorf("short command write %d/%d", n, 4+cm.Len())
	}
	written = true

	select {
	case <-time.After(timeout):
		return nil, errors.Errorf("no response to command 0x%04X", cm.OpCode())
	case <-c.done:
		return nil, ErrClosed
	case r := <-p.done:
		return r, nil
	}
}

func (c *Controller) putCmdBuf(b []byte) {
	select {
	case c.chCmdBufs <- b:
	default:
	}
}

func (c *Controller) sktProcessLoop() {
	defer close(c.loopDone)
	defer c.cleanup()

	for {
		var p []byte
		var ok bool

		select {
		case <-c.done:
			return
		case p, ok = <-c.sktRxChan:
			if !ok {
				c.log.Info("hci transport closed")
				return
			}
		}

		if err := c.handlePkt(p); err != nil {
			c.log.Warnf("skt: %v", err)
		}
	}
}

func (c *Controller) sktReadLoop() {
	defer close(c.sktRxChan)

	b := make([]byte, sktReadBufSize)
	for {
		n, err := c.skt.Read(b)

		switch {
		case n == 0 && err == nil:
			// read timeout
			if !c.isOpen() {
				return
			}
			continue

		case err == io.EOF:
			c.setErr(err)
			return

		case err != nil:
			if c.isOpen() {
				c.setErr(errors.Wrap(err, "skt read error"))
			}
			return

		default:
			p := make([]byte, n)
			copy(p, b)
			select {
			case c.sktRxChan <- p:
			case <-c.done:
				return
			}
		}
	}
}

// cleanup runs when the process loop exits. Links the controller no longer
// tracks are reported lost.
func (c *Controller) cleanup() {
	c.muConns.Lock()
	conns := c.conns
	c.conns = make(map[uint16]*aclConnection)
	c.muConns.Unlock()

	if !c.isOpen() {
		return
	}
	for h, ac := range conns {
		c.emit(hci.LeDisconnect{Identity: ac.id, Handle: h, Status: hci.ErrUnspecified})
	}
}
