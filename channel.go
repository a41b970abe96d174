package l2cap

import "github.com/rigado/l2cap/hci"

// FixedChannel is a fixed channel handed to a registered service once a link
// to the peer is up. Methods may be called from any goroutine.
type FixedChannel interface {
	Device() hci.PeerIdentity
	CID() uint16

	// Acquire marks the channel as in use, which keeps the link alive.
	Acquire()

	// Release drops the in-use mark. When no channel on the link is
	// acquired the link is disconnected after the idle timeout.
	Release()

	// RegisterOnCloseCallback posts fn onto h when the channel closes,
	// with the status the link went down with.
	RegisterOnCloseCallback(h *Handler, fn func(hci.ErrorCode))
}

// OnChannelOpen is called on the service's handler for every new channel.
type OnChannelOpen func(FixedChannel)
