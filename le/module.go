// Package le is the LE fixed channel layer of the host stack. It owns the
// l2cap handler and wires the link manager to an hci.AclManager.
package le

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/hci"
	"github.com/rigado/l2cap/le/internal/link"
	"github.com/rigado/l2cap/le/internal/service"
)

// ErrClosed is returned by operations on a closed Module.
var ErrClosed = errors.New("l2cap le module closed")

// Module is a running LE fixed channel layer.
type Module struct {
	handler  *l2cap.Handler
	services *service.Manager
	links    *link.Manager
	params   l2cap.Params
	log      l2cap.Logger

	fcm *FixedChannelManager

	closeOnce sync.Once
}

// New starts the layer on top of acl. acl accepts a single event receiver, so
// one AclManager can back only one Module.
func New(acl hci.AclManager, opts ...l2cap.Option) (*Module, error) {
	params, err := l2cap.NewParams(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}

	m := &Module{
		handler: l2cap.NewHandler("l2cap-le"),
		params:  params,
		log:     l2cap.ComponentLogger(params.Logger, "l2cap-le"),
	}
	m.services = service.NewManager(params.Logger)

	m.links, err = link.NewManager(m.handler, acl, m.services, params)
	if err != nil {
		m.handler.Close()
		return nil, err
	}
	m.fcm = &FixedChannelManager{module: m}

	m.log.Debugf("started, connect timeout %v, idle timeout %v",
		params.ConnectTimeout, params.LinkIdleDisconnectTimeout)
	return m, nil
}

// FixedChannelManager returns the service facing API of the module.
func (m *Module) FixedChannelManager() *FixedChannelManager {
	return m.fcm
}

// Handler returns the l2cap handler. Callers may use it as the handler for
// their own callbacks.
func (m *Module) Handler() *l2cap.Handler {
	return m.handler
}

// HasLink reports whether an LE link to device is established.
func (m *Module) HasLink(device hci.PeerIdentity) bool {
	var ok bool
	m.handler.Call(func() { ok = m.links.GetLink(device) != nil })
	return ok
}

// HasPendingLink reports whether a connection attempt to device is
// outstanding.
func (m *Module) HasPendingLink(device hci.PeerIdentity) bool {
	var ok bool
	m.handler.Call(func() { ok = m.links.HasPendingLink(device) })
	return ok
}

// Close stops event delivery, fails outstanding requests, closes every link
// and stops the handler. Requests accepted before Close are all answered:
// callbacks for the module handler run before Close returns, callbacks for
// other handlers are posted there.
func (m *Module) Close() error {
	m.closeOnce.Do(func() {
		m.links.Close()
		m.handler.CloseWith(m.links.Shutdown)
		m.log.Debug("closed")
	})
	return nil
}
