package link

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/hci"
)

var ErrChannelAllocated = errors.New("fixed channel already allocated")

// Link is one established LE link. It is owned by the Manager and must only
// be used from the l2cap handler; a *Link returned by Manager.GetLink is not
// valid past the task it was obtained in.
type Link struct {
	handler *l2cap.Handler
	conn    hci.AclConnection
	params  l2cap.Params
	log     l2cap.Logger

	channels map[uint16]*FixedChannel

	idleTimer *time.Timer
	idleGen   uint64
	down      bool
}

func newLink(h *l2cap.Handler, conn hci.AclConnection, params l2cap.Params, l l2cap.Logger) *Link {
	lk := &Link{
		handler:  h,
		conn:     conn,
		params:   params,
		channels: make(map[uint16]*FixedChannel),
		log: l.ChildLogger(map[string]interface{}{
			"peer":   conn.Identity().String(),
			"handle": conn.Handle(),
		}),
	}
	lk.refreshRefCount()
	return lk
}

func (l *Link) Identity() hci.PeerIdentity       { return l.conn.Identity() }
func (l *Link) Connection() hci.AclConnection    { return l.conn }
func (l *Link) Channel(cid uint16) *FixedChannel { return l.channels[cid] }
func (l *Link) IsFixedChannelAllocated(cid uint16) bool {
	_, ok := l.channels[cid]
	return ok
}

// AllocateFixedChannel opens the fixed channel cid on this link.
func (l *Link) AllocateFixedChannel(cid uint16) (*FixedChannel, error) {
	if l.IsFixedChannelAllocated(cid) {
		return nil, errors.Wrapf(ErrChannelAllocated, "cid 0x%04X", cid)
	}
	ch := newFixedChannel(l, cid)
	l.channels[cid] = ch
	l.log.Debugf("allocated fixed channel 0x%04X", cid)
	return ch, nil
}

// Disconnect asks the controller to drop the link. The link stays registered
// until the disconnection is reported.
func (l *Link) Disconnect(reason hci.ErrorCode) error {
	return errors.Wrap(l.conn.Disconnect(reason), "link disconnect")
}

// OnAclDisconnected closes every channel with status and stops the idle timer.
func (l *Link) OnAclDisconnected(status hci.ErrorCode) {
	if l.down {
		return
	}
	l.down = true
	l.stopIdleTimer()

	cids := make([]uint16, 0, len(l.channels))
	for cid := range l.channels {
		cids = append(cids, cid)
	}
	sort.Slice(cids, func(i, j int) bool { return cids[i] < cids[j] })
	for _, cid := range cids {
		l.channels[cid].onClosed(status)
	}
	l.log.Debugf("link down: %s, closed %d channels", status, len(cids))
}

func (l *Link) refCount() int {
	n := 0
	for _, ch := range l.channels {
		if ch.acquired {
			n++
		}
	}
	return n
}

// refreshRefCount keeps the idle timer running while no channel is acquired.
func (l *Link) refreshRefCount() {
	if l.down {
		return
	}
	if l.refCount() > 0 {
		l.stopIdleTimer()
		return
	}
	if l.idleTimer != nil || l.params.LinkIdleDisconnectTimeout <= 0 {
		return
	}

	l.idleGen++
	gen := l.idleGen
	l.idleTimer = time.AfterFunc(l.params.LinkIdleDisconnectTimeout, func() {
		l.handler.Post(func() { l.onIdleTimeout(gen) })
	})
}

func (l *Link) stopIdleTimer() {
	if l.idleTimer == nil {
		return
	}
	l.idleTimer.Stop()
	l.idleTimer = nil
	l.idleGen++
}

func (l *Link) onIdleTimeout(gen uint64) {
	if l.down || gen != l.idleGen {
		return
	}
	l.idleTimer = nil
	if l.refCount() > 0 {
		return
	}

	l.log.Infof("link idle for %s, disconnecting", l.params.LinkIdleDisconnectTimeout)
	if err := l.Disconnect(hci.ErrRemoteUserTerminated); err != nil {
		l.log.Warnf("idle disconnect: %v", err)
	}
}
