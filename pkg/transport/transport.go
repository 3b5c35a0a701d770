// Package transport defines the three logical channels of spec.md §4.3 —
// catchup, event, and propose — as a small binding-agnostic interface, the
// way spec.md §9 asks: "Define the three channels... as an interface;
// provide one implementation over WebSockets with request-response
// semantics and one in-memory implementation for tests. Do not bind the
// engine to any specific library."
//
// The shape follows the adapter pattern used throughout the retrieved
// corpus for transport-agnostic concerns (see other_examples'
// pkg/messaging — a broker-agnostic Message/MessageHandler core with one
// sub-package per binding): a dependency-free interface here, one binding
// per sub-package (pkg/transport/ws, pkg/transport/memtransport).
package transport

import "github.com/cloudmodel/relay/pkg/wire"

// ClientSink receives the two push channels a connected client listens on:
// the one-time catchup bundle and subsequent broadcast events (spec.md
// §4.3). A binding's Dial implementation invokes these as messages arrive,
// in the order the server sent them ("the adapter MUST preserve message
// order per channel").
type ClientSink interface {
	OnCatchup(wire.Catchup)
	OnEvent(wire.Event)
}

// ClientTransport is the client-side handle for the "propose" channel
// (spec.md §4.3). It satisfies pkg/engine.ProposalSender directly, so an
// Engine can be constructed with any ClientTransport binding.
type ClientTransport interface {
	// SendProposal sends p and invokes onResponse exactly once with the
	// server's accept/reject envelope (spec.md §4.3: "deliver the reply
	// callback for propose exactly once").
	SendProposal(p wire.Proposal, onResponse func(wire.ProposalResponse))

	// Close releases the underlying connection.
	Close() error
}
