package h4

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap/hci"
)

const (
	eventHeaderLength = 3 // type, code, length
	aclHeaderLength   = 5 // type, handle(2), length(2)
	frameTimeout      = 500 * time.Millisecond
)

var errNeedMore = errors.New("not enough bytes")

// frame reassembles H4 packets from an unframed byte stream. Only event and
// ACL data packets travel controller to host.
type frame struct {
	b       []byte
	timeout time.Time
	pktType byte
	emit    func([]byte)
	now     func() time.Time
}

func newFrame(emit func([]byte)) *frame {
	return &frame{emit: emit, now: time.Now}
}

func (f *frame) Assemble(b []byte) {
	for len(b) > 0 {
		if len(f.b) != 0 && f.now().After(f.timeout) {
			// stale partial frame
			f.reset()
		}

		if len(f.b) == 0 {
			i := f.waitStart(b)
			if i < 0 {
				return
			}
			b = b[i:]
		}

		f.b = append(f.b, b...)
		b = nil

		tl, err := f.length()
		if err != nil || len(f.b) < tl {
			return
		}

		out := make([]byte, tl)
		copy(out, f.b[:tl])
		rem := f.b[tl:]
		f.reset()
		f.emit(out)
		b = rem
	}
}

func (f *frame) reset() {
	f.b = make([]byte, 0, 256)
	f.timeout = time.Time{}
}

// waitStart returns the index of the first packet type byte in b, or -1.
func (f *frame) waitStart(b []byte) int {
	for i, v := range b {
		switch v {
		case hci.PktTypeEvent, hci.PktTypeACLData:
			f.pktType = v
			f.timeout = f.now().Add(frameTimeout)
			return i
		}
	}
	return -1
}

func (f *frame) length() (int, error) {
	switch f.pktType {
	case hci.PktTypeEvent:
		if len(f.b) < eventHeaderLength {
			return 0, errNeedMore
		}
		return int(f.b[2]) + eventHeaderLength, nil
	case hci.PktTypeACLData:
		if len(f.b) < aclHeaderLength {
			return 0, errNeedMore
		}
		return (int(f.b[3]) | int(f.b[4])<<8) + aclHeaderLength, nil
	default:
		return 0, errors.Errorf("invalid packet type 0x%02X", f.pktType)
	}
}
