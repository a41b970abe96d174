//go:build !linux
// +build !linux

package socket

import (
	"io"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
)

// Socket is only available on linux.
type Socket struct {
	io.ReadWriteCloser
}

// NewSocket always fails on this platform.
func NewSocket(id int, l l2cap.Logger) (*Socket, error) {
	return nil, errors.New("hci user channel only available on linux")
}
