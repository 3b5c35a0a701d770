package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/cloudmodel/relay/pkg/transport"
	"github.com/cloudmodel/relay/pkg/wire"
)

// Client is the client-side binding of transport.ClientTransport over
// coder/websocket. It satisfies pkg/engine.ProposalSender directly, so an
// Engine can send proposals straight through a dialed Client.
type Client struct {
	conn *websocket.Conn
	sink transport.ClientSink

	ctx    context.Context
	cancel context.CancelFunc

	writeMu chan struct{}

	// pendingResponse holds the callback for the single outstanding
	// propose (invariant I3 guarantees there is never more than one).
	mu              sync.Mutex
	pendingResponse func(wire.ProposalResponse)

	done chan struct{}
}

// Dial connects to a Hub at addr (a ws:// or wss:// URL) and starts
// delivering catchup/event pushes to sink. The returned Client is ready to
// use as an engine.ProposalSender.
func Dial(ctx context.Context, addr string, sink transport.ClientSink) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		sink:    sink,
		ctx:     connCtx,
		cancel:  cancel,
		writeMu: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.writeMu <- struct{}{}

	go c.readLoop()
	return c, nil
}

// SendProposal implements engine.ProposalSender / transport.ClientTransport.
func (c *Client) SendProposal(p wire.Proposal, onResponse func(wire.ProposalResponse)) {
	c.mu.Lock()
	c.pendingResponse = onResponse
	c.mu.Unlock()

	env := envelope{Kind: kindPropose, Proposal: &p}
	data, err := json.Marshal(env)
	if err != nil {
		// Can only be an application encoding bug surfacing as malformed
		// JSON; there is nothing to send, so the callback is cleared and
		// onResponse is not invoked for this proposal. This situation is
		// not covered by spec.md's wire format because it can't occur over
		// a conforming encoder.
		c.mu.Lock()
		c.pendingResponse = nil
		c.mu.Unlock()
		return
	}

	<-c.writeMu
	writeErr := c.conn.Write(c.ctx, websocket.MessageText, data)
	c.writeMu <- struct{}{}
	_ = writeErr // write errors are not reported; onResponse runs only if a response still arrives
}

// Close implements transport.ClientTransport.
func (c *Client) Close() error {
	c.cancel()
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Kind {
		case kindCatchup:
			if env.Catchup != nil {
				c.sink.OnCatchup(*env.Catchup)
			}
		case kindEvent:
			if env.Event != nil {
				c.sink.OnEvent(*env.Event)
			}
		case kindProposalResponse:
			if env.Response != nil {
				c.mu.Lock()
				cb := c.pendingResponse
				c.pendingResponse = nil
				c.mu.Unlock()
				if cb != nil {
					cb(*env.Response)
				}
			}
		}
	}
}
