package link

import (
	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/hci"
)

type closeCallback struct {
	handler *l2cap.Handler
	fn      func(hci.ErrorCode)
}

// FixedChannel is the l2cap.FixedChannel handed to services. Its state is
// owned by the link's handler; the exported methods post onto it.
type FixedChannel struct {
	link   *Link
	cid    uint16
	device hci.PeerIdentity

	acquired    bool
	closed      bool
	closeStatus hci.ErrorCode
	onClose     []closeCallback
}

var _ l2cap.FixedChannel = (*FixedChannel)(nil)

func newFixedChannel(l *Link, cid uint16) *FixedChannel {
	return &FixedChannel{link: l, cid: cid, device: l.Identity()}
}

func (c *FixedChannel) Device() hci.PeerIdentity { return c.device }
func (c *FixedChannel) CID() uint16              { return c.cid }

func (c *FixedChannel) Acquire() {
	c.link.handler.Post(func() { c.setAcquired(true) })
}

func (c *FixedChannel) Release() {
	c.link.handler.Post(func() { c.setAcquired(false) })
}

func (c *FixedChannel) RegisterOnCloseCallback(h *l2cap.Handler, fn func(hci.ErrorCode)) {
	c.link.handler.Post(func() {
		if c.closed {
			status := c.closeStatus
			postOrRun(c.link.handler, h, func() { fn(status) })
			return
		}
		c.onClose = append(c.onClose, closeCallback{handler: h, fn: fn})
	})
}

// IsAcquired must be called on the link's handler.
func (c *FixedChannel) IsAcquired() bool { return c.acquired }

// IsClosed must be called on the link's handler.
func (c *FixedChannel) IsClosed() bool { return c.closed }

func (c *FixedChannel) setAcquired(v bool) {
	if c.closed || c.acquired == v {
		return
	}
	c.acquired = v
	c.link.refreshRefCount()
}

func (c *FixedChannel) onClosed(status hci.ErrorCode) {
	if c.closed {
		return
	}
	c.closed = true
	c.acquired = false
	c.closeStatus = status
	for _, cb := range c.onClose {
		fn := cb.fn
		if !postOrRun(c.link.handler, cb.handler, func() { fn(status) }) {
			c.link.log.Warnf("channel 0x%04X: close callback handler %s closed", c.cid, cb.handler.Name())
		}
	}
	c.onClose = nil
}
