package hci

// LeConnectionEvent is one of LeConnectSuccess, LeConnectFail or
// LeDisconnect.
type LeConnectionEvent interface {
	Peer() PeerIdentity
	leConnectionEvent()
}

// LeConnectSuccess reports a link that was established or accepted.
type LeConnectSuccess struct {
	Connection AclConnection
}

// LeConnectFail reports that an attempt to reach Identity failed.
type LeConnectFail struct {
	Identity PeerIdentity
	Reason   ErrorCode
}

// LeDisconnect reports the loss of the established link on Handle.
type LeDisconnect struct {
	Identity PeerIdentity
	Handle   uint16
	Status   ErrorCode
}

func (e LeConnectSuccess) Peer() PeerIdentity { return e.Connection.Identity() }
func (e LeConnectFail) Peer() PeerIdentity    { return e.Identity }
func (e LeDisconnect) Peer() PeerIdentity     { return e.Identity }

func (LeConnectSuccess) leConnectionEvent() {}
func (LeConnectFail) leConnectionEvent()    {}
func (LeDisconnect) leConnectionEvent()     {}
