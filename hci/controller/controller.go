// Package controller implements hci.AclManager on top of an HCI transport.
// It owns the command flow control towards the controller and turns LE
// Connection Complete and Disconnection Complete events into
// hci.LeConnectionEvent values.
package controller

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/hci"
	"github.com/rigado/l2cap/hci/cmd"
	"github.com/rigado/l2cap/hci/evt"
)

const (
	chCmdBufChanSize    = 16
	chCmdBufElementSize = 260
	sktRxChanSize       = 16
	sktReadBufSize      = 4096
)

// ErrClosed is returned once the controller has been closed.
var ErrClosed = errors.New("hci controller closed")

type handlerFn func(b []byte) error

type pkt struct {
	cmd  hci.Command
	done chan []byte
}

// Controller drives one HCI transport.
type Controller struct {
	skt    io.ReadWriteCloser
	params l2cap.Params
	conn   cmd.LECreateConnection
	log    l2cap.Logger

	// Host to Controller command flow control [Vol 2, Part E, 4.4]
	chCmdBufs chan []byte
	muSent    sync.Mutex
	sent      map[int]*pkt

	// evtHub
	evth map[int]handlerFn
	subh map[int]handlerFn

	muConns sync.Mutex
	conns   map[uint16]*aclConnection

	// events decoded before a receiver is registered wait in backlog
	muEvents sync.Mutex
	events   chan<- hci.LeConnectionEvent
	backlog  []hci.LeConnectionEvent
	flushed  chan struct{}

	// connection attempts run one at a time on connector, disconnects on
	// disconnector so neither blocks its caller
	connector    *l2cap.Handler
	disconnector *l2cap.Handler
	muAttempt    sync.Mutex
	attempt      *attempt

	sktRxChan chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	muClose  sync.Mutex
	done     chan struct{}
	loopDone chan struct{}
	err      error
}

var _ hci.AclManager = (*Controller)(nil)

// New starts reading HCI packets from skt. Call Init to reset the controller
// and enable the events the connection layer needs.
func New(skt io.ReadWriteCloser, opts ...l2cap.Option) (*Controller, error) {
	params, err := l2cap.NewParams(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}

	c := &Controller{
		skt:    skt,
		params: params,
		conn:   defaultConnParams(),
		log:    l2cap.ComponentLogger(params.Logger, "hci"),

		chCmdBufs: make(chan []byte, chCmdBufChanSize),
		sent:      make(map[int]*pkt),

		evth: map[int]handlerFn{},
		subh: map[int]handlerFn{},

		conns:     make(map[uint16]*aclConnection),
		connector: l2cap.NewHandler("hci-connector"),

		disconnector: l2cap.NewHandler("hci-disconnector"),
		sktRxChan:    make(chan []byte, sktRxChanSize),

		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.evth[evt.LEMetaCode] = c.handleLEMeta
	c.evth[evt.CommandCompleteCode] = c.handleCommandComplete
	c.evth[evt.CommandStatusCode] = c.handleCommandStatus
	c.evth[evt.DisconnectionCompleteCode] = c.handleDisconnectionComplete

	c.subh[evt.LEConnectionCompleteSubCode] = c.handleLEConnectionComplete
	c.subh[evt.LEEnhancedConnectionCompleteSubCode] = c.handleLEEnhancedConnectionComplete

	c.setAllowedCommands(1)

	go c.sktReadLoop()
	go c.sktProcessLoop()
	return c, nil
}

// Init resets the controller and unmasks the connection events.
func (c *Controller) Init() error {
	c.log.Info("hci reset")
	if err := c.Send(&cmd.Reset{}, nil); err != nil {
		return errors.Wrap(err, "reset")
	}
	if err := c.Send(&cmd.SetEventMask{EventMask: 0x3dbff807fffbffff}, nil); err != nil {
		return errors.Wrap(err, "set event mask")
	}
	// LE Connection Complete, LE Enhanced Connection Complete
	if err := c.Send(&cmd.LESetEventMask{LEEventMask: 0x0000000000000201}, nil); err != nil {
		return errors.Wrap(err, "le set event mask")
	}
	return nil
}

// RegisterLeCallbacks implements hci.AclManager.
func (c *Controller) RegisterLeCallbacks(events chan<- hci.LeConnectionEvent) error {
	if events == nil {
		return errors.New("nil event channel")
	}
	c.muEvents.Lock()
	defer c.muEvents.Unlock()
	if c.events != nil {
		return hci.ErrCallbacksRegistered
	}
	c.events = events

	backlog := c.backlog
	c.backlog = nil
	flushed := make(chan struct{})
	c.flushed = flushed
	if len(backlog) > 0 {
		c.log.Debugf("delivering %d events decoded before registration", len(backlog))
	}
	go func() {
		defer close(flushed)
		for _, ev := range backlog {
			select {
			case events <- ev:
			case <-c.done:
				return
			}
		}
	}()
	return nil
}

// CreateLeConnection implements hci.AclManager. Attempts are queued and run
// one after another since the controller accepts a single LE Create
// Connection at a time.
func (c *Controller) CreateLeConnection(peer hci.PeerIdentity) error {
	if !c.isOpen() {
		return ErrClosed
	}
	if !c.connector.Post(func() { c.connect(peer) }) {
		return ErrClosed
	}
	return nil
}

// Close stops the read loops and releases the transport. Pending connection
// attempts are abandoned without events.
func (c *Controller) Close() error {
	c.muClose.Lock()
	select {
	case <-c.done:
		c.muClose.Unlock()
		return nil
	default:
		close(c.done)
	}
	c.muClose.Unlock()

	c.cancel()
	err := c.skt.Close()
	<-c.loopDone
	c.connector.Close()
	c.disconnector.Close()
	return errors.Wrap(err, "can't close hci transport")
}

// Err returns the error that stopped the read loop, if any.
func (c *Controller) Err() error {
	c.muClose.Lock()
	defer c.muClose.Unlock()
	return c.err
}

func (c *Controller) isOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Controller) setErr(err error) {
	c.muClose.Lock()
	if c.err == nil {
		c.err = err
	}
	c.muClose.Unlock()
}

func (c *Controller) setAllowedCommands(n int) {
	if n > chCmdBufChanSize {
		c.log.Warnf("allowed commands %d, capping at %d", n, chCmdBufChanSize)
		n = chCmdBufChanSize
	}

	for len(c.chCmdBufs) < n {
		select {
		case c.chCmdBufs <- make([]byte, chCmdBufElementSize):
		default:
			return
		}
	}
}

// emit delivers ev to the registered receiver in the order events were
// decoded. Without a receiver ev is held until one registers.
func (c *Controller) emit(ev hci.LeConnectionEvent) {
	c.muEvents.Lock()
	ch, flushed := c.events, c.flushed
	if ch == nil {
		c.backlog = append(c.backlog, ev)
		c.muEvents.Unlock()
		c.log.Debugf("no receiver registered, holding %T for %s", ev, ev.Peer())
		return
	}
	c.muEvents.Unlock()

	select {
	case <-flushed:
	case <-c.done:
		return
	}
	select {
	case ch <- ev:
	case <-c.done:
	}
}

func (c *Controller) lookupConn(handle uint16) (*aclConnection, bool) {
	c.muConns.Lock()
	defer c.muConns.Unlock()
	ac, ok := c.conns[handle]
	return ac, ok
}
