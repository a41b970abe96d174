package h4

import (
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
)

// DefaultSerialOptions returns the usual settings for an HCI UART.
func DefaultSerialOptions(port string) serial.OpenOptions {
	return serial.OpenOptions{
		PortName:          port,
		BaudRate:          1000000,
		DataBits:          8,
		StopBits:          1,
		RTSCTSFlowControl: true,
	}
}

// NewSerial opens an HCI UART.
func NewSerial(opts serial.OpenOptions, l l2cap.Logger) (io.ReadWriteCloser, error) {
	// force these
	opts.MinimumReadSize = 0
	opts.InterCharacterTimeout = 100

	sp, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", opts.PortName)
	}

	// drain whatever the controller sent before we were listening
	b := make([]byte, 2048)
	<-time.After(time.Millisecond * 250)
	if _, err := sp.Read(b); err != nil && err != io.EOF {
		sp.Close()
		return nil, errors.Wrap(err, "can't flush serial port")
	}

	// a read that times out with no data reports io.EOF
	retry := func(err error) bool { return err == io.EOF }
	return newH4(sp, retry, l), nil
}
