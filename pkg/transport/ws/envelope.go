// Package ws is the production transport.ClientTransport / server.Session
// binding over github.com/coder/websocket. It is grounded on the teacher's
// pkg/events/manager.go ConnectionManager: a per-connection read loop owned
// by a single goroutine, a write-timeout context per send, and a
// register/unregister map guarded by a mutex.
package ws

import "github.com/cloudmodel/relay/pkg/wire"

// kind discriminates the four message shapes multiplexed over one
// websocket connection. Because spec.md invariant I3 allows at most one
// outstanding proposal per client at a time, a connection never needs to
// correlate a proposalResponse with a particular propose by request id —
// there is only ever one in flight, so arrival order over the single
// stream is enough.
type kind string

const (
	kindCatchup          kind = "catchup"
	kindEvent            kind = "event"
	kindPropose          kind = "propose"
	kindProposalResponse kind = "proposalResponse"
)

// envelope is the single JSON shape sent over the wire in both directions;
// exactly one payload field is populated per Kind.
type envelope struct {
	Kind     kind                   `json:"kind"`
	Catchup  *wire.Catchup          `json:"catchup,omitempty"`
	Event    *wire.Event            `json:"event,omitempty"`
	Proposal *wire.Proposal         `json:"proposal,omitempty"`
	Response *wire.ProposalResponse `json:"response,omitempty"`
}
