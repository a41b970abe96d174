package controller

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rigado/l2cap/hci"
	"github.com/rigado/l2cap/hci/cmd"
)

// attempt is the LE Create Connection currently outstanding on the
// controller. done is closed once it is resolved.
type attempt struct {
	peer hci.PeerIdentity
	done chan struct{}
}

func defaultConnParams() cmd.LECreateConnection {
	return cmd.LECreateConnection{
		LEScanInterval:        0x0040, // 0x0004 - 0x4000; N * 0.625 msec
		LEScanWindow:          0x0040, // 0x0004 - 0x4000; N * 0.625 msec
		InitiatorFilterPolicy: 0x00,   // White list is not used
		OwnAddressType:        0x00,   // Public Device Address
		ConnIntervalMin:       0x0006, // 0x0006 - 0x0C80; N * 1.25 msec
		ConnIntervalMax:       0x0006, // 0x0006 - 0x0C80; N * 1.25 msec
		ConnLatency:           0x0000, // 0x0000 - 0x01F3; N * 1.25 msec
		SupervisionTimeout:    0x0400, // 0x000A - 0x0C80; N * 10 msec
		MinimumCELength:       0x0000, // 0x0000 - 0xFFFF; N * 0.625 msec
		MaximumCELength:       0x0000, // 0x0000 - 0xFFFF; N * 0.625 msec
	}
}

// connect runs one attempt to completion on the connector handler.
func (c *Controller) connect(peer hci.PeerIdentity) {
	log := c.log.ChildLogger(map[string]interface{}{"peer": peer.String()})
	if !c.isOpen() {
		log.Debug("controller closed, dropping attempt")
		return
	}
	if ac := c.connectedTo(peer); ac != nil {
		// its LeConnectSuccess was emitted, or is held until a receiver registers
		log.Debugf("already connected on handle 0x%04X", ac.handle)
		return
	}

	att := &attempt{peer: peer, done: make(chan struct{})}
	c.muAttempt.Lock()
	c.attempt = att
	c.muAttempt.Unlock()

	cc := c.conn
	cc.PeerAddressType = uint8(peer.Type)
	cc.PeerAddress = peer.Address.LE()

	if err := c.createConnection(&cc); err != nil {
		log.Warnf("le create connection: %v", err)
		if c.claimAttempt(att) != nil {
			c.failAttempt(att, reasonOf(err))
		}
		return
	}

	timer := time.NewTimer(c.params.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-att.done:
		return
	case <-c.done:
		return
	case <-timer.C:
	}

	log.Infof("no connection after %v, cancelling", c.params.ConnectTimeout)
	if err := c.Send(&cmd.LECreateConnectionCancel{}, nil); err != nil {
		// the attempt most likely completed while we were cancelling
		log.Debugf("le create connection cancel: %v", err)
	}

	// the controller answers a successful cancel with LE Connection
	// Complete carrying Unknown Connection Identifier
	guard := time.NewTimer(c.params.CommandTimeout)
	defer guard.Stop()
	select {
	case <-att.done:
	case <-c.done:
	case <-guard.C:
		if c.claimAttempt(att) != nil {
			log.Warn("controller never completed the cancelled attempt")
			c.failAttempt(att, hci.ErrConnectionTimeout)
		}
	}
}

// createConnection sends LE Create Connection, retrying while the
// controller is busy or still has a previous attempt outstanding.
func (c *Controller) createConnection(cc *cmd.LECreateConnection) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = c.params.ConnectRetryMaxElapsed

	return backoff.RetryNotify(func() error {
		err := c.Send(cc, nil)
		switch errors.Cause(err) {
		case nil:
			return nil
		case hci.ErrControllerBusy, hci.ErrCommandDisallowed:
			return err
		default:
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(b, c.ctx), func(err error, d time.Duration) {
		c.log.Debugf("le create connection: %v, retry in %v", err, d)
	})
}

func (c *Controller) connectedTo(peer hci.PeerIdentity) *aclConnection {
	c.muConns.Lock()
	defer c.muConns.Unlock()
	for _, ac := range c.conns {
		if ac.id == peer {
			return ac
		}
	}
	return nil
}

// claimAttempt resolves the outstanding attempt if it is want, or whatever
// attempt is outstanding when want is nil. Only the caller that gets a
// non-nil result may report it.
func (c *Controller) claimAttempt(want *attempt) *attempt {
	c.muAttempt.Lock()
	defer c.muAttempt.Unlock()

	att := c.attempt
	if att == nil || (want != nil && att != want) {
		return nil
	}
	c.attempt = nil
	close(att.done)
	return att
}

func (c *Controller) failAttempt(att *attempt, reason hci.ErrorCode) {
	c.log.Infof("connection to %s failed: %s", att.peer, reason)
	c.emit(hci.LeConnectFail{Identity: att.peer, Reason: reason})
}

func reasonOf(err error) hci.ErrorCode {
	if code, ok := errors.Cause(err).(hci.ErrorCode); ok {
		return code
	}
	return hci.ErrUnspecified
}
