package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/cloudmodel/relay/pkg/wire"
)

// Connection is the server-side half of a websocket session. It implements
// server.Session so a *server.Serializer can address it directly.
//
// All fields below are touched only by the goroutine running readLoop and
// whatever goroutine currently holds writeMu, matching the teacher's
// Connection doc comment: the subscriptions map there needed no lock
// because only one goroutine ever touched it; here the write path is the
// one shared resource, so it alone gets a mutex.
type Connection struct {
	id           string
	conn         *websocket.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	writeTimeout time.Duration
	writeMu      chan struct{} // 1-buffered semaphore; cheaper than sync.Mutex for this use
}

// newConnection wraps an accepted websocket connection.
func newConnection(parentCtx context.Context, conn *websocket.Conn, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: writeTimeout,
		writeMu:      make(chan struct{}, 1),
	}
	c.writeMu <- struct{}{}
	return c
}

// ID implements server.Session.
func (c *Connection) ID() string { return c.id }

// SendCatchup implements server.Session.
func (c *Connection) SendCatchup(catchup wire.Catchup) error {
	return c.send(envelope{Kind: kindCatchup, Catchup: &catchup})
}

// SendEvent implements server.Session.
func (c *Connection) SendEvent(event wire.Event) error {
	return c.send(envelope{Kind: kindEvent, Event: &event})
}

// sendProposalResponse replies to the connection's current in-flight
// propose (invariant I3: there is at most one, so no correlation id is
// needed on the wire).
func (c *Connection) sendProposalResponse(resp wire.ProposalResponse) error {
	return c.send(envelope{Kind: kindProposalResponse, Response: &resp})
}

func (c *Connection) send(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Kind, err)
	}

	<-c.writeMu
	defer func() { c.writeMu <- struct{}{} }()

	writeCtx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s envelope: %w", env.Kind, err)
	}
	return nil
}

// close tears down the connection's context and underlying socket.
func (c *Connection) close() {
	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}
