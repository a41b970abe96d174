// Package link tracks LE links per peer and sequences fixed channel connect
// requests against them.
//
// Every Manager method runs on the l2cap handler. Requests from upper layers
// and connection events from the ACL manager are both posted there, so they
// are handled strictly in the order they were submitted and the state maps
// need no locking.
package link

import (
	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/hci"
	"github.com/rigado/l2cap/le/internal/service"
)

const eventChanSize = 16

// Manager owns the pending and established link state for every peer. A peer
// is in at most one of pendingLinks and links.
type Manager struct {
	handler  *l2cap.Handler
	acl      hci.AclManager
	services *service.Manager
	params   l2cap.Params
	log      l2cap.Logger

	pendingLinks map[hci.PeerIdentity]*pendingLink
	links        map[hci.PeerIdentity]*Link

	events   chan hci.LeConnectionEvent
	done     chan struct{}
	pumpDone chan struct{}
}

// NewManager registers the manager as the receiver of LE connection events
// on acl and starts forwarding them onto h.
func NewManager(h *l2cap.Handler, acl hci.AclManager, services *service.Manager, params l2cap.Params) (*Manager, error) {
	m := &Manager{
		handler:  h,
		acl:      acl,
		services: services,
		params:   params,
		log:      l2cap.ComponentLogger(params.Logger, "link-manager"),

		pendingLinks: make(map[hci.PeerIdentity]*pendingLink),
		links:        make(map[hci.PeerIdentity]*Link),

		events:   make(chan hci.LeConnectionEvent, eventChanSize),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}

	if err := acl.RegisterLeCallbacks(m.events); err != nil {
		return nil, errors.Wrap(err, "can't register le callbacks")
	}

	go m.pump()
	return m, nil
}

// pump moves controller events onto the handler.
func (m *Manager) pump() {
	defer close(m.pumpDone)
	for {
		select {
		case <-m.done:
			return
		case ev := <-m.events:
			if !m.handler.Post(func() { m.dispatch(ev) }) {
				m.log.Warnf("handler closed, dropping %T for %s", ev, ev.Peer())
				return
			}
		}
	}
}

// Close stops forwarding controller events. Call Shutdown on the handler
// afterwards to release links and pending requests.
func (m *Manager) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	<-m.pumpDone
}

func (m *Manager) dispatch(ev hci.LeConnectionEvent) {
	switch e := ev.(type) {
	case hci.LeConnectSuccess:
		m.OnLeConnectSuccess(e.Connection)
	case hci.LeConnectFail:
		m.OnLeConnectFail(e.Identity, e.Reason)
	case hci.LeDisconnect:
		if l := m.links[e.Identity]; l != nil && l.conn.Handle() != e.Handle {
			m.log.Debugf("disconnect of replaced handle 0x%04X for %s, ignoring", e.Handle, e.Identity)
			return
		}
		m.OnDisconnect(e.Identity, e.Status)
	default:
		m.log.Errorf("unknown le connection event %T", ev)
	}
}

// GetLink returns the established link to device, or nil.
func (m *Manager) GetLink(device hci.PeerIdentity) *Link {
	return m.links[device]
}

// HasPendingLink reports whether an attempt to reach device is outstanding.
func (m *Manager) HasPendingLink(device hci.PeerIdentity) bool {
	_, ok := m.pendingLinks[device]
	return ok
}

// ConnectFixedChannelServices makes sure every registered service gets a
// channel to device. Failures are reported through p.OnFail only.
func (m *Manager) ConnectFixedChannelServices(device hci.PeerIdentity, p PendingFixedChannelConnection) {
	p.assignID()
	log := m.log.ChildLogger(map[string]interface{}{"peer": device.String(), "request": p.ID()})

	services := m.services.Registered()
	if len(services) == 0 {
		log.Warn("no fixed channel service registered")
		m.fail(p, l2cap.ConnectionResult{Code: l2cap.ResultFailNoServiceRegistered})
		return
	}

	if link := m.GetLink(device); link != nil {
		if m.connectServices(link, services) == 0 {
			log.Debug("every registered service already has a channel")
			m.fail(p, l2cap.ConnectionResult{Code: l2cap.ResultFailAllServicesHaveChannel})
		}
		return
	}

	if pl, ok := m.pendingLinks[device]; ok {
		n := pl.enqueue(p)
		log.Debugf("queued behind outstanding attempt, %d waiting", n)
		return
	}

	pl := &pendingLink{}
	pl.enqueue(p)
	m.pendingLinks[device] = pl

	log.Debug("creating le connection")
	if err := m.acl.CreateLeConnection(device); err != nil {
		log.Errorf("create le connection: %v", err)
		reason := hci.ErrUnspecified
		if code, ok := errors.Cause(err).(hci.ErrorCode); ok {
			reason = code
		}
		m.OnLeConnectFail(device, reason)
	}
}

// OnLeConnectSuccess installs the link for conn and replays the requests
// that were waiting for it.
func (m *Manager) OnLeConnectSuccess(conn hci.AclConnection) {
	device := conn.Identity()
	log := m.log.ChildLogger(map[string]interface{}{"peer": device.String()})

	if old := m.links[device]; old != nil {
		log.Warnf("link already established on handle 0x%04X, replacing with 0x%04X",
			old.conn.Handle(), conn.Handle())
		delete(m.links, device)
		old.OnAclDisconnected(hci.ErrConnectionTerminatedLocalHost)
		if err := old.Disconnect(hci.ErrRemoteUserTerminated); err != nil {
			log.Warnf("disconnect replaced link: %v", err)
		}
	}

	link := newLink(m.handler, conn, m.params, m.log)
	m.links[device] = link

	pl, ok := m.pendingLinks[device]
	delete(m.pendingLinks, device)

	services := m.services.Registered()
	if len(services) == 0 {
		log.Warn("link up with no fixed channel service registered")
	}

	if !ok {
		n := m.connectServices(link, services)
		log.Debugf("unsolicited link on handle 0x%04X (%s), %d channels", conn.Handle(), conn.Role(), n)
		return
	}

	for _, p := range pl.connections {
		if len(services) == 0 {
			m.fail(p, l2cap.ConnectionResult{Code: l2cap.ResultFailNoServiceRegistered})
			continue
		}
		n := m.connectServices(link, services)
		log.Debugf("request %s served, %d new channels", p.ID(), n)
	}
}

// OnLeConnectFail reports reason to every request waiting on device.
func (m *Manager) OnLeConnectFail(device hci.PeerIdentity, reason hci.ErrorCode) {
	pl, ok := m.pendingLinks[device]
	if !ok {
		m.log.Debugf("connect fail for %s with nothing pending: %s", device, reason)
		return
	}
	delete(m.pendingLinks, device)

	m.log.Infof("connect to %s failed: %s, notifying %d requests", device, reason, len(pl.connections))
	result := l2cap.ConnectionResult{Code: l2cap.ResultFailHCIError, HCIError: reason}
	for _, p := range pl.connections {
		m.fail(p, result)
	}
}

// OnDisconnect closes the link to device and forgets it.
func (m *Manager) OnDisconnect(device hci.PeerIdentity, status hci.ErrorCode) {
	link, ok := m.links[device]
	if !ok {
		m.log.Debugf("disconnect for %s with no link: %s", device, status)
		return
	}
	link.OnAclDisconnected(status)
	delete(m.links, device)
	m.log.Infof("link to %s disconnected: %s", device, status)
}

// Shutdown fails every pending request and closes every link. It runs as the
// final task of the handler, after Close.
func (m *Manager) Shutdown() {
	for device := range m.pendingLinks {
		m.OnLeConnectFail(device, hci.ErrConnectionTerminatedLocalHost)
	}
	for device, link := range m.links {
		link.OnAclDisconnected(hci.ErrConnectionTerminatedLocalHost)
		if err := link.Disconnect(hci.ErrRemoteUserTerminated); err != nil {
			m.log.Debugf("shutdown disconnect %s: %v", device, err)
		}
		delete(m.links, device)
	}
}

// connectServices allocates a channel on link for every service that does
// not have one yet and returns how many were allocated.
func (m *Manager) connectServices(link *Link, services []service.Entry) int {
	n := 0
	for _, e := range services {
		if link.IsFixedChannelAllocated(e.CID) {
			continue
		}
		ch, err := link.AllocateFixedChannel(e.CID)
		if err != nil {
			m.log.Errorf("allocate 0x%04X: %v", e.CID, err)
			continue
		}
		e.Service.NotifyChannelCreation(ch)
		n++
	}
	return n
}

func (m *Manager) fail(p PendingFixedChannelConnection, result l2cap.ConnectionResult) {
	if p.OnFail == nil {
		return
	}
	h := p.Handler
	if h == nil {
		h = m.handler
	}
	onFail := p.OnFail
	if !postOrRun(m.handler, h, func() { onFail(result) }) {
		m.log.Warnf("request %s: handler closed, dropping %s", p.ID(), result)
	}
}

// postOrRun posts fn onto target. Once own stops taking posts, tasks for it
// run inline, since the caller is the last task running on own.
func postOrRun(own, target *l2cap.Handler, fn func()) bool {
	if target.Post(fn) {
		return true
	}
	if target == own {
		fn()
		return true
	}
	return false
}
