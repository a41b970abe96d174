package main

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/hci/h4"
	"github.com/rigado/l2cap/hci/socket"
	"github.com/urfave/cli"
)

const h4SocketTimeout = 2 * time.Second

func openTransport(c *cli.Context, l l2cap.Logger) (io.ReadWriteCloser, error) {
	switch {
	case c.GlobalIsSet("device") && c.GlobalInt("device") >= 0:
		s, err := socket.NewSocket(c.GlobalInt("device"), l)
		if err != nil {
			return nil, err
		}
		return s, nil
	case c.GlobalString("h4s") != "":
		return h4.NewSocket(c.GlobalString("h4s"), h4SocketTimeout, l)
	case c.GlobalString("h4u") != "":
		return h4.NewSerial(h4.DefaultSerialOptions(c.GlobalString("h4u")), l)
	default:
		// first available hci device
		s, err := socket.NewSocket(-1, l)
		if err != nil {
			return nil, errors.Wrap(err, "no transport given and no hci device found")
		}
		return s, nil
	}
}
