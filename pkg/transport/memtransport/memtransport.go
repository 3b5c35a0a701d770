// Package memtransport is the in-memory transport.ClientTransport /
// server.Session binding spec.md §9 asks for alongside the production
// websocket binding: "one in-memory implementation for tests". It wires an
// engine directly to a *server.Serializer through plain Go function calls,
// with no network, goroutines, or serialization in between — a real,
// in-process double of the production wiring rather than a mock, matching
// the teacher's habit of testing against a real in-memory collaborator
// (e.g. an in-memory ent/SQLite client) instead of a mock-library double.
package memtransport

import (
	"sync"

	"github.com/cloudmodel/relay/pkg/server"
	"github.com/cloudmodel/relay/pkg/transport"
	"github.com/cloudmodel/relay/pkg/wire"
)

// Client is a session that talks to an in-process *server.Serializer
// synchronously: SendProposal calls straight into Serializer.Propose and
// invokes onResponse before returning, and SendCatchup/SendEvent call
// straight into the registered transport.ClientSink.
type Client struct {
	id   string
	srv  *server.Serializer
	sink transport.ClientSink

	mu     sync.Mutex
	closed bool
}

// Connect registers a new in-memory client session with srv, delivering the
// catchup bundle to sink before returning — matching spec.md §4.1's
// "On each new session: send a catchup payload" happening synchronously on
// connect.
func Connect(id string, srv *server.Serializer, sink transport.ClientSink) (*Client, error) {
	c := &Client{id: id, srv: srv, sink: sink}
	if err := srv.RegisterSession(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ID implements server.Session.
func (c *Client) ID() string { return c.id }

// SendCatchup implements server.Session by forwarding to the sink.
func (c *Client) SendCatchup(catchup wire.Catchup) error {
	c.sink.OnCatchup(catchup)
	return nil
}

// SendEvent implements server.Session by forwarding to the sink.
func (c *Client) SendEvent(event wire.Event) error {
	c.sink.OnEvent(event)
	return nil
}

// SendProposal implements transport.ClientTransport / engine.ProposalSender.
// After Close, the proposal is dropped and onResponse is not invoked.
func (c *Client) SendProposal(p wire.Proposal, onResponse func(wire.ProposalResponse)) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	resp := c.srv.Propose(c, p)
	onResponse(resp)
}

// Close implements transport.ClientTransport.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.srv.UnregisterSession(c)
	return nil
}
