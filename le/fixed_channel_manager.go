package le

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
	"github.com/rigado/l2cap/hci"
	"github.com/rigado/l2cap/le/internal/link"
	"github.com/rigado/l2cap/le/internal/service"
)

// FixedChannelManager lets services register on fixed channels and ask for
// links to peers.
type FixedChannelManager struct {
	module *Module
}

// RegisterService registers onOpen as the service on cid. onOpen runs on h
// for every channel opened on that cid, including channels of links that
// come up unsolicited.
func (f *FixedChannelManager) RegisterService(cid uint16, h *l2cap.Handler, onOpen l2cap.OnChannelOpen) (*ServiceHandle, error) {
	if h == nil {
		return nil, errors.New("nil service handler")
	}

	var err error
	ok := f.module.handler.Call(func() {
		err = f.module.services.Register(cid, service.New(cid, h, onOpen))
	})
	if !ok {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, err
	}
	return &ServiceHandle{fcm: f, cid: cid}, nil
}

// ConnectServices asks for every registered service to get a channel to
// device. If that cannot happen onFail is posted onto h. It returns false if
// the module is closed, in which case onFail is never called.
func (f *FixedChannelManager) ConnectServices(device hci.PeerIdentity, h *l2cap.Handler, onFail l2cap.OnConnectionFailure) bool {
	p := link.PendingFixedChannelConnection{Handler: h, OnFail: onFail}
	return f.module.handler.Post(func() {
		f.module.links.ConnectFixedChannelServices(device, p)
	})
}

// ServiceHandle is returned by RegisterService.
type ServiceHandle struct {
	fcm  *FixedChannelManager
	cid  uint16
	once sync.Once
}

func (s *ServiceHandle) CID() uint16 { return s.cid }

// Unregister removes the service. Channels already opened stay open until
// their link goes down.
func (s *ServiceHandle) Unregister() error {
	err := errors.Wrapf(service.ErrServiceNotRegistered, "cid 0x%04X", s.cid)
	s.once.Do(func() {
		if !s.fcm.module.handler.Call(func() { err = s.fcm.module.services.Unregister(s.cid) }) {
			err = ErrClosed
		}
	})
	return err
}
