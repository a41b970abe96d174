//go:build linux
// +build linux

// Package socket provides the Linux HCI user channel as an HCI transport.
package socket

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
	"golang.org/x/sys/unix"
)

const (
	hciMaxDevices = 16
	readTimeoutMs = 1000
	openRetryMax  = 60 * time.Second

	pollErrors = int16(unix.POLLHUP | unix.POLLNVAL | unix.POLLERR)
	pollIn     = int16(unix.POLLIN)
)

// HCIDEVDOWN and HCIGETDEVLIST from <bluetooth/hci.h>: _IOW('H', 202, int)
// and _IOR('H', 210, int).
var (
	hciDevDown    = hciIoctl(1, 202)
	hciGetDevList = hciIoctl(2, 210)
)

func hciIoctl(dir, nr uintptr) uintptr {
	const typ, size = 'H', 4
	return dir<<30 | size<<16 | typ<<8 | nr
}

func ioctl(fd int, op, arg uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), op, arg); errno != 0 {
		return errno
	}
	return nil
}

type devListRequest struct {
	num     uint16
	devices [hciMaxDevices]struct {
		id  uint16
		opt uint32
	}
}

// Socket is an HCI user channel. It has exclusive access to the adapter.
type Socket struct {
	fd  int
	log l2cap.Logger

	rmu sync.Mutex
	wmu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// NewSocket opens the user channel of hciN. With id -1 the first adapter
// that can be opened is used. A specific adapter that is busy is retried for
// up to a minute.
func NewSocket(id int, l l2cap.Logger) (*Socket, error) {
	l = l2cap.ComponentLogger(l, "hci-socket")
	if id == -1 {
		return openAny(l)
	}

	var s *Socket
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = time.Second
	b.MaxElapsedTime = openRetryMax
	err := backoff.RetryNotify(func() error {
		fd, err := rawSocket()
		if err != nil {
			return backoff.Permanent(err)
		}
		if s, err = bindUser(fd, id, l); err != nil {
			unix.Close(fd)
		}
		return err
	}, b, func(err error, d time.Duration) {
		l.Debugf("hci%d: %v, retry in %v", id, err, d)
	})
	return s, err
}

func rawSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW, unix.BTPROTO_HCI)
	return fd, errors.Wrap(err, "can't create socket")
}

func openAny(l l2cap.Logger) (*Socket, error) {
	fd, err := rawSocket()
	if err != nil {
		return nil, err
	}

	req := devListRequest{num: hciMaxDevices}
	if err := ioctl(fd, hciGetDevList, uintptr(unsafe.Pointer(&req))); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "can't get device list")
	}

	var failed []string
	for i := 0; i < int(req.num); i++ {
		id := int(req.devices[i].id)
		s, err := bindUser(fd, id, l)
		if err == nil {
			return s, nil
		}
		failed = append(failed, fmt.Sprintf("hci%d: %v", id, err))
	}
	unix.Close(fd)
	return nil, errors.Errorf("no adapter available (%s)", strings.Join(failed, ", "))
}

// bindUser takes adapter id down and binds fd to its user channel.
func bindUser(fd, id int, l l2cap.Logger) (*Socket, error) {
	if err := ioctl(fd, hciDevDown, uintptr(id)); err != nil {
		return nil, errors.Wrap(err, "can't down device")
	}
	sa := unix.SockaddrHCI{Dev: uint16(id), Channel: unix.HCI_CHANNEL_USER}
	if err := unix.Bind(fd, &sa); err != nil {
		return nil, errors.Wrap(err, "can't bind socket to hci user channel")
	}

	// drop whatever the kernel queued before the bind
	pfds := []unix.PollFd{{Fd: int32(fd), Events: pollIn}}
	unix.Poll(pfds, 20)
	switch ev := pfds[0].Revents; {
	case ev&pollErrors != 0:
		return nil, io.EOF
	case ev&pollIn != 0:
		unix.Read(fd, make([]byte, 2048))
	}

	l.Infof("opened hci%d user channel", id)
	return &Socket{fd: fd, log: l, done: make(chan struct{})}, nil
}

// Read returns one HCI packet, or 0, nil when none arrived within a second.
func (s *Socket) Read(p []byte) (int, error) {
	if !s.isOpen() {
		return 0, io.EOF
	}

	s.rmu.Lock()
	defer s.rmu.Unlock()

	// error events are always reported
	pfds := []unix.PollFd{{Fd: int32(s.fd), Events: pollIn}}
	unix.Poll(pfds, readTimeoutMs)
	ev := pfds[0].Revents
	switch {
	case ev&pollErrors != 0:
		s.log.Errorf("hci socket poll events 0x%04x", ev)
		return 0, io.EOF
	case ev&pollIn == 0:
		return 0, nil
	}

	n, err := unix.Read(s.fd, p)
	if !s.isOpen() {
		return 0, io.EOF
	}
	return n, errors.Wrap(err, "can't read hci socket")
}

func (s *Socket) Write(p []byte) (int, error) {
	if !s.isOpen() {
		return 0, io.EOF
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := unix.Write(s.fd, p)
	return n, errors.Wrap(err, "can't write hci socket")
}

// Close waits for a Read in progress, at most the read timeout.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.log.Debug("closing hci socket")
		s.rmu.Lock()
		err = errors.Wrap(unix.Close(s.fd), "can't close hci socket")
		s.rmu.Unlock()
	})
	return err
}

func (s *Socket) isOpen() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
