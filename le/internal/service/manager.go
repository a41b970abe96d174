// Package service keeps the registry of fixed channel services. It is only
// touched from the l2cap handler and does no locking of its own.
package service

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/rigado/l2cap"
)

var (
	ErrInvalidCid           = errors.New("invalid fixed channel cid")
	ErrServiceRegistered    = errors.New("service already registered")
	ErrServiceNotRegistered = errors.New("service not registered")
)

// Service is a registered fixed channel service.
type Service struct {
	cid     uint16
	handler *l2cap.Handler
	onOpen  l2cap.OnChannelOpen
}

// New creates a service whose open callback runs on h.
func New(cid uint16, h *l2cap.Handler, onOpen l2cap.OnChannelOpen) *Service {
	return &Service{cid: cid, handler: h, onOpen: onOpen}
}

func (s *Service) CID() uint16 { return s.cid }

// NotifyChannelCreation hands a newly allocated channel to the service.
func (s *Service) NotifyChannelCreation(ch l2cap.FixedChannel) {
	if s.onOpen == nil {
		return
	}
	s.handler.Post(func() { s.onOpen(ch) })
}

// Entry pairs a service with the CID it is registered on.
type Entry struct {
	CID     uint16
	Service *Service
}

// Manager is the fixed channel service directory.
type Manager struct {
	services map[uint16]*Service
	log      l2cap.Logger
}

func NewManager(l l2cap.Logger) *Manager {
	return &Manager{
		services: make(map[uint16]*Service),
		log:      l2cap.ComponentLogger(l, "service-manager"),
	}
}

// Register adds s under cid.
func (m *Manager) Register(cid uint16, s *Service) error {
	if !l2cap.IsValidFixedCid(cid) {
		return errors.Wrapf(ErrInvalidCid, "0x%04X", cid)
	}
	if _, ok := m.services[cid]; ok {
		return errors.Wrapf(ErrServiceRegistered, "cid 0x%04X", cid)
	}
	m.services[cid] = s
	m.log.Debugf("registered fixed channel service on cid 0x%04X", cid)
	return nil
}

// Unregister removes the service registered under cid. Channels already
// handed out stay open.
func (m *Manager) Unregister(cid uint16) error {
	if _, ok := m.services[cid]; !ok {
		return errors.Wrapf(ErrServiceNotRegistered, "cid 0x%04X", cid)
	}
	delete(m.services, cid)
	m.log.Debugf("unregistered fixed channel service on cid 0x%04X", cid)
	return nil
}

func (m *Manager) IsRegistered(cid uint16) bool {
	_, ok := m.services[cid]
	return ok
}

// Get returns the service on cid, or nil.
func (m *Manager) Get(cid uint16) *Service {
	return m.services[cid]
}

// Registered lists the registered services ordered by CID.
func (m *Manager) Registered() []Entry {
	out := make([]Entry, 0, len(m.services))
	for cid, s := range m.services {
		out = append(out, Entry{CID: cid, Service: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CID < out[j].CID })
	return out
}
