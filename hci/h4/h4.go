// Package h4 provides HCI transports using the UART (H4) framing, over a
// serial port or a TCP connection to an emulator or bridge.
package h4

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
)

const (
	rxQueueSize = 64
	rawReadSize = 512
	readTimeout = time.Second
)

// h4 turns a raw byte stream into one HCI packet per Read.
type h4 struct {
	rw  io.ReadWriteCloser
	log l2cap.Logger

	// retry reports whether a read error from rw is a timeout
	retry func(error) bool

	rmu sync.Mutex
	wmu sync.Mutex

	rxQueue chan []byte
	done    chan struct{}
	cmu     sync.Mutex
}

func newH4(rw io.ReadWriteCloser, retry func(error) bool, l l2cap.Logger) *h4 {
	h := &h4{
		rw:      rw,
		retry:   retry,
		log:     l2cap.ComponentLogger(l, "h4"),
		rxQueue: make(chan []byte, rxQueueSize),
		done:    make(chan struct{}),
	}
	go h.rxLoop()
	return h
}

// Read returns one packet. It returns 0, nil if nothing arrived within the
// read timeout.
func (h *h4) Read(p []byte) (int, error) {
	h.rmu.Lock()
	defer h.rmu.Unlock()

	select {
	case <-h.done:
		return 0, io.EOF
	case t, ok := <-h.rxQueue:
		if !ok {
			return 0, io.EOF
		}
		if len(p) < len(t) {
			return 0, errors.Errorf("buffer too small: %d < %d", len(p), len(t))
		}
		n := copy(p, t)
		h.log.Debugf("read [% X]", p[:n])
		return n, nil
	case <-time.After(readTimeout):
		return 0, nil
	}
}

func (h *h4) Write(p []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.EOF
	}

	h.wmu.Lock()
	defer h.wmu.Unlock()
	n, err := h.rw.Write(p)
	h.log.Debugf("write [% X], %v, %v", p, n, err)
	return n, errors.Wrap(err, "can't write h4")
}

func (h *h4) Close() error {
	h.cmu.Lock()
	defer h.cmu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
		close(h.done)
		h.log.Debug("closing h4")
		return errors.Wrap(h.rw.Close(), "can't close h4")
	}
}

func (h *h4) isOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *h4) rxLoop() {
	defer close(h.rxQueue)

	f := newFrame(func(b []byte) {
		select {
		case h.rxQueue <- b:
		case <-h.done:
		}
	})

	tmp := make([]byte, rawReadSize)
	for h.isOpen() {
		n, err := h.rw.Read(tmp)
		if n > 0 {
			f.Assemble(tmp[:n])
		}
		if err != nil && !h.retry(err) {
			if h.isOpen() {
				h.log.Errorf("rx: %v", err)
			}
			return
		}
	}
}
