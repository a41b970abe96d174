package link

import (
	"sync"
	"testing"

	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/hci"
	"github.com/rigado/l2cap/le/internal/service"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     hci.PeerIdentity
	handle uint16
	role   hci.Role

	mu           sync.Mutex
	disconnects  []hci.ErrorCode
	disconnected chan hci.ErrorCode
}

func newFakeConn(id hci.PeerIdentity, handle uint16) *fakeConn {
	return &fakeConn{id: id, handle: handle, disconnected: make(chan hci.ErrorCode, 4)}
}

func (c *fakeConn) Identity() hci.PeerIdentity { return c.id }
func (c *fakeConn) Handle() uint16             { return c.handle }
func (c *fakeConn) Role() hci.Role             { return c.role }

func (c *fakeConn) Disconnect(reason hci.ErrorCode) error {
	c.mu.Lock()
	c.disconnects = append(c.disconnects, reason)
	c.mu.Unlock()
	select {
	case c.disconnected <- reason:
	default:
	}
	return nil
}

func (c *fakeConn) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.disconnects)
}

type fakeAcl struct {
	mu        sync.Mutex
	events    chan<- hci.LeConnectionEvent
	attempts  []hci.PeerIdentity
	createErr error
}

func (a *fakeAcl) RegisterLeCallbacks(events chan<- hci.LeConnectionEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.events != nil {
		return hci.ErrCallbacksRegistered
	}
	a.events = events
	return nil
}

func (a *fakeAcl) CreateLeConnection(peer hci.PeerIdentity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, peer)
	return a.createErr
}

func (a *fakeAcl) attemptsFor(peer hci.PeerIdentity) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, p := range a.attempts {
		if p == peer {
			n++
		}
	}
	return n
}

type failure struct {
	request string
	result  l2cap.ConnectionResult
}

// env wires a Manager to fakes. Tests drive the manager through the l2cap
// handler exactly like the production facade does.
type env struct {
	t        *testing.T
	handler  *l2cap.Handler
	user     *l2cap.Handler
	acl      *fakeAcl
	services *service.Manager
	m        *Manager

	opened   []l2cap.FixedChannel
	failures []failure
}

func newEnv(t *testing.T, params l2cap.Params, cids ...uint16) *env {
	e := &env{
		t:       t,
		handler: l2cap.NewHandler("l2cap"),
		user:    l2cap.NewHandler("user"),
		acl:     &fakeAcl{},
	}
	e.services = service.NewManager(nil)
	for _, cid := range cids {
		e.registerService(cid)
	}

	m, err := NewManager(e.handler, e.acl, e.services, params)
	require.NoError(t, err)
	e.m = m

	t.Cleanup(func() {
		e.m.Close()
		e.handler.Call(e.m.Shutdown)
		e.handler.Close()
		e.user.Close()
	})
	return e
}

func defaultParams() l2cap.Params {
	p := l2cap.DefaultParams()
	p.LinkIdleDisconnectTimeout = 0
	return p
}

func (e *env) registerService(cid uint16) {
	s := service.New(cid, e.user, func(ch l2cap.FixedChannel) { e.opened = append(e.opened, ch) })
	require.NoError(e.t, e.services.Register(cid, s))
}

func (e *env) call(fn func()) {
	require.True(e.t, e.handler.Call(fn))
}

// settle waits for the l2cap handler and then for everything it posted to
// the user handler.
func (e *env) settle() {
	e.handler.Sync()
	e.user.Sync()
}

func (e *env) request(device hci.PeerIdentity, name string) {
	e.call(func() {
		e.m.ConnectFixedChannelServices(device, PendingFixedChannelConnection{
			Handler: e.user,
			OnFail: func(r l2cap.ConnectionResult) {
				e.failures = append(e.failures, failure{request: name, result: r})
			},
		})
	})
}

func (e *env) state(device hci.PeerIdentity) (pending bool, established bool) {
	e.call(func() {
		pending = e.m.HasPendingLink(device)
		established = e.m.GetLink(device) != nil
	})
	return pending, established
}

func peer(t *testing.T, addr string) hci.PeerIdentity {
	p, err := hci.NewPeerIdentity(addr, hci.AddressTypePublic)
	require.NoError(t, err)
	return p
}
