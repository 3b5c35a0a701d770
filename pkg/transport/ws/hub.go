package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/cloudmodel/relay/pkg/server"
)

// DefaultWriteTimeout bounds how long a single send to a client may block
// (spec.md §5: the server is single-threaded per process and must not let
// one slow consumer stall the others).
const DefaultWriteTimeout = 10 * time.Second

// Hub upgrades incoming HTTP requests to websocket connections and wires
// each one to a *server.Serializer. One Hub per Serializer; grounded on the
// teacher's pkg/api/websocket.go WSHub — a register/broadcast owner — with
// broadcast itself delegated to the Serializer instead of duplicated here.
type Hub struct {
	serializer   *server.Serializer
	writeTimeout time.Duration

	acceptOptions *websocket.AcceptOptions
}

// NewHub creates a Hub bound to serializer. acceptOrigins lists the origins
// the upgrade will accept; an empty list allows all origins (suitable only
// for local development — see cmd/cloudmodeld).
func NewHub(serializer *server.Serializer, writeTimeout time.Duration, acceptOrigins []string) *Hub {
	opts := &websocket.AcceptOptions{}
	if len(acceptOrigins) == 0 {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = acceptOrigins
	}
	return &Hub{
		serializer:    serializer,
		writeTimeout:  writeTimeout,
		acceptOptions: opts,
	}
}

// ServeHTTP upgrades the request and blocks for the life of the connection.
// Implements http.Handler so it can be mounted behind any router, including
// gin's (see pkg/api).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.acceptOptions)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newConnection(r.Context(), conn, h.writeTimeout)
	defer c.close()

	if err := h.serializer.RegisterSession(c); err != nil {
		slog.Warn("failed to send catchup to new session", "connection_id", c.ID(), "error", err)
		return
	}
	defer h.serializer.UnregisterSession(c)

	h.readLoop(c)
}

// readLoop processes propose messages until the connection closes. Per
// invariant I3 there is at most one outstanding propose per connection, so
// the loop can safely compute and send the response before reading the
// next message without itself becoming a pipelining bottleneck.
func (h *Hub) readLoop(c *Connection) {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return // connection closed or errored; cleanup happens via defers
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("invalid websocket envelope", "connection_id", c.ID(), "error", err)
			continue
		}

		if env.Kind != kindPropose || env.Proposal == nil {
			slog.Warn("unexpected client websocket message", "connection_id", c.ID(), "kind", env.Kind)
			continue
		}

		resp := h.serializer.Propose(c, *env.Proposal)
		if err := c.sendProposalResponse(resp); err != nil {
			slog.Warn("failed to send proposal response", "connection_id", c.ID(), "error", err)
			return
		}
	}
}

// Shutdown is a no-op placeholder satisfying symmetrical lifecycle
// expectations with other server components; per-connection contexts are
// already derived from the request context each ServeHTTP call receives,
// so there is no central state here to tear down.
func (h *Hub) Shutdown(_ context.Context) error { return nil }
