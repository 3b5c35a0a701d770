package server

import "github.com/cloudmodel/relay/pkg/wire"

// Session is a single connected client as seen by the Serializer: a write
// handle into the transport (spec.md §3 ClientSession). Transport bindings
// (pkg/transport/ws, pkg/transport/memtransport) implement this.
type Session interface {
	// ID uniquely identifies the session for the lifetime of the connection.
	ID() string

	// SendCatchup delivers the one-time catchup bundle (spec.md §4.1).
	SendCatchup(wire.Catchup) error

	// SendEvent delivers a single broadcast event (spec.md §4.1).
	SendEvent(wire.Event) error
}
