package controller

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/hci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	opReset          = 0x0C03
	opSetEventMask   = 0x0C01
	opLESetEventMask = 0x2001
	opDisconnect     = 0x0406
	opCreateConn     = 0x200D
	opCreateCancel   = 0x200E
)

// fakeController plays the controller side of a net.Pipe transport.
type fakeController struct {
	t    *testing.T
	conn net.Conn
	cmds chan []byte
}

func newTestController(t *testing.T, opts ...l2cap.Option) (*Controller, *fakeController, chan hci.LeConnectionEvent) {
	c, f := newUnregisteredController(t, opts...)

	events := make(chan hci.LeConnectionEvent, 8)
	require.NoError(t, c.RegisterLeCallbacks(events))
	return c, f, events
}

func newUnregisteredController(t *testing.T, opts ...l2cap.Option) (*Controller, *fakeController) {
	host, dev := net.Pipe()
	opts = append([]l2cap.Option{l2cap.OptCommandTimeout(time.Second)}, opts...)

	c, err := New(host, opts...)
	require.NoError(t, err)

	f := &fakeController{t: t, conn: dev, cmds: make(chan []byte, 16)}
	go f.readLoop()

	t.Cleanup(func() {
		c.Close()
		dev.Close()
	})
	return c, f
}

func (f *fakeController) readLoop() {
	b := make([]byte, 512)
	for {
		n, err := f.conn.Read(b)
		if err != nil {
			close(f.cmds)
			return
		}
		p := make([]byte, n)
		copy(p, b)
		f.cmds <- p
	}
}

// expectCmd returns the parameters of the next command, which must be op.
func (f *fakeController) expectCmd(op uint16) []byte {
	select {
	case p, ok := <-f.cmds:
		require.True(f.t, ok, "transport closed")
		require.True(f.t, len(p) >= 4, "short command % X", p)
		require.Equal(f.t, hci.PktTypeCommand, p[0])
		require.Equal(f.t, op, binary.LittleEndian.Uint16(p[1:]), "command % X", p)
		require.Equal(f.t, int(p[3]), len(p[4:]))
		return p[4:]
	case <-time.After(2 * time.Second):
		f.t.Fatalf("no command 0x%04X", op)
		return nil
	}
}

func (f *fakeController) expectNoCmd(d time.Duration) {
	select {
	case p := <-f.cmds:
		f.t.Fatalf("unexpected command % X", p)
	case <-time.After(d):
	}
}

func (f *fakeController) event(code byte, params ...byte) {
	b := append([]byte{hci.PktTypeEvent, code, byte(len(params))}, params...)
	_, err := f.conn.Write(b)
	require.NoError(f.t, err)
}

func (f *fakeController) commandStatus(op uint16, status byte) {
	f.event(0x0F, status, 0x01, byte(op), byte(op>>8))
}

func (f *fakeController) commandComplete(op uint16, rp ...byte) {
	f.event(0x0E, append([]byte{0x01, byte(op), byte(op >> 8)}, rp...)...)
}

func (f *fakeController) connectionComplete(status byte, handle uint16, role byte, peer hci.PeerIdentity) {
	a := peer.Address.LE()
	p := []byte{0x01, status, byte(handle), byte(handle >> 8), role, byte(peer.Type)}
	p = append(p, a[:]...)
	p = append(p, 0x18, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00)
	f.event(0x3E, p...)
}

func (f *fakeController) disconnectionComplete(handle uint16, reason byte) {
	f.event(0x05, 0x00, byte(handle), byte(handle>>8), reason)
}

func nextEvent(t *testing.T, events chan hci.LeConnectionEvent) hci.LeConnectionEvent {
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no connection event")
		return nil
	}
}

func testPeer(t *testing.T, addr string, at hci.AddressType) hci.PeerIdentity {
	p, err := hci.NewPeerIdentity(addr, at)
	require.NoError(t, err)
	return p
}

func TestInit(t *testing.T) {
	c, f, _ := newTestController(t)

	done := make(chan error, 1)
	go func() { done <- c.Init() }()

	f.expectCmd(opReset)
	f.commandComplete(opReset, 0x00)
	f.expectCmd(opSetEventMask)
	f.commandComplete(opSetEventMask, 0x00)
	mask := f.expectCmd(opLESetEventMask)
	assert.Equal(t, uint64(0x0201), binary.LittleEndian.Uint64(mask))
	f.commandComplete(opLESetEventMask, 0x00)

	require.NoError(t, <-done)
}

func TestInitReportsCommandFailure(t *testing.T) {
	c, f, _ := newTestController(t)

	done := make(chan error, 1)
	go func() { done <- c.Init() }()

	f.expectCmd(opReset)
	f.commandComplete(opReset, byte(hci.ErrHardwareFailure))

	err := <-done
	require.Error(t, err)
	assert.Equal(t, hci.ErrHardwareFailure, reasonOf(err))
}

func TestConnectAndDisconnect(t *testing.T) {
	c, f, events := newTestController(t)
	peer := testPeer(t, "C0:11:22:33:44:55", hci.AddressTypeRandom)

	require.NoError(t, c.CreateLeConnection(peer))
	p := f.expectCmd(opCreateConn)
	assert.Equal(t, byte(hci.AddressTypeRandom), p[5])
	a := peer.Address.LE()
	assert.Equal(t, a[:], p[6:12])
	f.commandStatus(opCreateConn, 0x00)

	f.connectionComplete(0x00, 0x0041, 0x00, peer)
	ev, ok := nextEvent(t, events).(hci.LeConnectSuccess)
	require.True(t, ok)
	assert.Equal(t, peer, ev.Connection.Identity())
	assert.Equal(t, uint16(0x0041), ev.Connection.Handle())
	assert.Equal(t, hci.RoleCentral, ev.Connection.Role())

	done := make(chan error, 1)
	go func() { done <- ev.Connection.Disconnect(hci.ErrRemoteUserTerminated) }()
	assert.Equal(t, []byte{0x41, 0x00, 0x13}, f.expectCmd(opDisconnect))
	f.commandStatus(opDisconnect, 0x00)
	require.NoError(t, <-done)

	f.disconnectionComplete(0x0041, 0x16)
	dis, ok := nextEvent(t, events).(hci.LeDisconnect)
	require.True(t, ok)
	assert.Equal(t, hci.LeDisconnect{Identity: peer, Handle: 0x0041, Status: hci.ErrConnectionTerminatedLocalHost}, dis)

	assert.Error(t, ev.Connection.Disconnect(hci.ErrRemoteUserTerminated))
}

func TestConnectTimeoutCancels(t *testing.T) {
	c, f, events := newTestController(t, l2cap.OptConnectTimeout(50*time.Millisecond))
	peer := testPeer(t, "00:11:22:33:44:55", hci.AddressTypePublic)

	require.NoError(t, c.CreateLeConnection(peer))
	f.expectCmd(opCreateConn)
	f.commandStatus(opCreateConn, 0x00)

	f.expectCmd(opCreateCancel)
	f.commandComplete(opCreateCancel, 0x00)
	f.connectionComplete(byte(hci.ErrUnknownConnectionID), 0x0000, 0x00, hci.PeerIdentity{})

	ev, ok := nextEvent(t, events).(hci.LeConnectFail)
	require.True(t, ok)
	assert.Equal(t, hci.LeConnectFail{Identity: peer, Reason: hci.ErrUnknownConnectionID}, ev)
}

func TestConnectAttemptsAreSerialized(t *testing.T) {
	c, f, events := newTestController(t)
	a := testPeer(t, "00:11:22:33:44:55", hci.AddressTypePublic)
	b := testPeer(t, "00:11:22:33:44:66", hci.AddressTypePublic)

	require.NoError(t, c.CreateLeConnection(a))
	require.NoError(t, c.CreateLeConnection(b))

	f.expectCmd(opCreateConn)
	f.commandStatus(opCreateConn, 0x00)
	f.expectNoCmd(100 * time.Millisecond)

	f.connectionComplete(byte(hci.ErrConnectionFailedToEstablish), 0x0000, 0x00, a)
	assert.Equal(t, hci.LeConnectFail{Identity: a, Reason: hci.ErrConnectionFailedToEstablish}, nextEvent(t, events))

	p := f.expectCmd(opCreateConn)
	bb := b.Address.LE()
	assert.Equal(t, bb[:], p[6:12])
	f.commandStatus(opCreateConn, 0x00)
	f.connectionComplete(0x00, 0x0042, 0x00, b)
	ev, ok := nextEvent(t, events).(hci.LeConnectSuccess)
	require.True(t, ok)
	assert.Equal(t, b, ev.Peer())
}

func TestConnectRetriesWhileBusy(t *testing.T) {
	c, f, events := newTestController(t)
	peer := testPeer(t, "00:11:22:33:44:55", hci.AddressTypePublic)

	require.NoError(t, c.CreateLeConnection(peer))
	f.expectCmd(opCreateConn)
	f.commandStatus(opCreateConn, byte(hci.ErrControllerBusy))
	f.expectCmd(opCreateConn)
	f.commandStatus(opCreateConn, 0x00)
	f.connectionComplete(0x00, 0x0043, 0x00, peer)

	_, ok := nextEvent(t, events).(hci.LeConnectSuccess)
	assert.True(t, ok)
}

func TestConnectCommandRejected(t *testing.T) {
	c, f, events := newTestController(t)
	peer := testPeer(t, "00:11:22:33:44:55", hci.AddressTypePublic)

	require.NoError(t, c.CreateLeConnection(peer))
	f.expectCmd(opCreateConn)
	f.commandStatus(opCreateConn, byte(hci.ErrInvalidParameters))

	assert.Equal(t, hci.LeConnectFail{Identity: peer, Reason: hci.ErrInvalidParameters}, nextEvent(t, events))
}

func TestPeripheralConnection(t *testing.T) {
	_, f, events := newTestController(t)
	peer := testPeer(t, "D0:11:22:33:44:55", hci.AddressTypeRandom)

	f.connectionComplete(0x00, 0x0044, 0x01, peer)
	ev, ok := nextEvent(t, events).(hci.LeConnectSuccess)
	require.True(t, ok)
	assert.Equal(t, peer, ev.Connection.Identity())
	assert.Equal(t, hci.RolePeripheral, ev.Connection.Role())

	// failed completions without an attempt are not reported
	f.connectionComplete(byte(hci.ErrUnknownConnectionID), 0x0000, 0x00, peer)
	f.disconnectionComplete(0x0044, 0x13)
	_, ok = nextEvent(t, events).(hci.LeDisconnect)
	assert.True(t, ok)
}

func TestRegisterLeCallbacksOnce(t *testing.T) {
	c, _, _ := newTestController(t)
	assert.Equal(t, hci.ErrCallbacksRegistered, c.RegisterLeCallbacks(make(chan hci.LeConnectionEvent)))
}

func TestClose(t *testing.T) {
	c, _, _ := newTestController(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	peer := testPeer(t, "00:11:22:33:44:55", hci.AddressTypePublic)
	assert.Equal(t, ErrClosed, c.CreateLeConnection(peer))
	assert.Equal(t, ErrClosed, c.Send(&resetCmd{}, nil))
}

func TestEventsBeforeRegistrationAreDelivered(t *testing.T) {
	c, f := newUnregisteredController(t)
	a := testPeer(t, "D0:11:22:33:44:55", hci.AddressTypeRandom)
	b := testPeer(t, "D0:11:22:33:44:66", hci.AddressTypeRandom)

	f.connectionComplete(0x00, 0x0045, 0x01, a)
	f.connectionComplete(0x00, 0x0046, 0x01, b)
	require.Eventually(t, func() bool { return c.connectedTo(b) != nil }, time.Second, 5*time.Millisecond)

	// an attempt to a peer that is already up adds nothing to the stream
	require.NoError(t, c.CreateLeConnection(a))
	f.expectNoCmd(100 * time.Millisecond)

	events := make(chan hci.LeConnectionEvent)
	require.NoError(t, c.RegisterLeCallbacks(events))

	ev, ok := nextEvent(t, events).(hci.LeConnectSuccess)
	require.True(t, ok)
	assert.Equal(t, a, ev.Peer())
	assert.Equal(t, uint16(0x0045), ev.Connection.Handle())

	ev, ok = nextEvent(t, events).(hci.LeConnectSuccess)
	require.True(t, ok)
	assert.Equal(t, b, ev.Peer())

	f.disconnectionComplete(0x0045, 0x13)
	assert.Equal(t, hci.LeDisconnect{Identity: a, Handle: 0x0045, Status: hci.ErrRemoteUserTerminated}, nextEvent(t, events))
}

func TestDisconnectDoesNotWaitForController(t *testing.T) {
	_, f, events := newTestController(t)
	peer := testPeer(t, "D0:11:22:33:44:55", hci.AddressTypeRandom)

	f.connectionComplete(0x00, 0x0047, 0x01, peer)
	ev, ok := nextEvent(t, events).(hci.LeConnectSuccess)
	require.True(t, ok)

	start := time.Now()
	require.NoError(t, ev.Connection.Disconnect(hci.ErrRemoteUserTerminated))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// the command still goes out and the controller never answers it
	assert.Equal(t, []byte{0x47, 0x00, 0x13}, f.expectCmd(opDisconnect))
}

func TestUnsentCommandKeepsCredit(t *testing.T) {
	c, f, _ := newTestController(t)

	assert.Error(t, c.Send(oversizeCmd{}, nil))
	assert.Error(t, c.Send(badCmd{}, nil))

	done := make(chan error, 1)
	go func() { done <- c.Send(&resetCmd{}, nil) }()
	f.expectCmd(opReset)
	f.commandComplete(opReset, 0x00)
	require.NoError(t, <-done)
}

type oversizeCmd struct{}

func (oversizeCmd) OpCode() int          { return 0xFC01 }
func (oversizeCmd) Len() int             { return 300 }
func (oversizeCmd) Marshal([]byte) error { return nil }

type badCmd struct{}

func (badCmd) OpCode() int          { return 0xFC02 }
func (badCmd) Len() int             { return 1 }
func (badCmd) Marshal([]byte) error { return errors.New("bad parameters") }

type resetCmd struct{}

func (resetCmd) OpCode() int          { return opReset }
func (resetCmd) Len() int             { return 0 }
func (resetCmd) Marshal([]byte) error { return nil }
