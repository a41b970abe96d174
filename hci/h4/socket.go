package h4

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
)

type connWithTimeout struct {
	c       net.Conn
	timeout time.Duration
}

func (cwt *connWithTimeout) Read(b []byte) (int, error) {
	// with deadline
	cwt.c.SetReadDeadline(time.Now().Add(cwt.timeout))
	return cwt.c.Read(b)
}

func (cwt *connWithTimeout) Write(b []byte) (int, error) {
	// with deadline
	cwt.c.SetWriteDeadline(time.Now().Add(cwt.timeout))
	return cwt.c.Write(b)
}

func (cwt *connWithTimeout) Close() error {
	return cwt.c.Close()
}

func isNetTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// NewSocket dials an H4 bridge at addr (host:port). timeout bounds the dial
// and every read and write on the connection.
func NewSocket(addr string, timeout time.Duration, l l2cap.Logger) (io.ReadWriteCloser, error) {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "can't dial %s", addr)
	}
	return newH4(&connWithTimeout{c: c, timeout: timeout}, isNetTimeout, l), nil
}
