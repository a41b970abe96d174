package link

import (
	"github.com/google/uuid"
	"github.com/rigado/l2cap"
)

// PendingFixedChannelConnection is a connect request waiting for a link.
// OnFail is posted onto Handler if the request cannot be satisfied.
type PendingFixedChannelConnection struct {
	Handler *l2cap.Handler
	OnFail  l2cap.OnConnectionFailure

	id string
}

// ID identifies the request in logs. It is assigned when the manager first
// sees the request.
func (p *PendingFixedChannelConnection) ID() string { return p.id }

func (p *PendingFixedChannelConnection) assignID() {
	if p.id == "" {
		p.id = uuid.New().String()
	}
}

// pendingLink holds the requests queued behind one outstanding attempt, in
// the order they arrived.
type pendingLink struct {
	connections []PendingFixedChannelConnection
}

func (pl *pendingLink) enqueue(p PendingFixedChannelConnection) int {
	pl.connections = append(pl.connections, p)
	return len(pl.connections)
}
