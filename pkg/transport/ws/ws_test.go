package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmodel/relay/pkg/server"
	"github.com/cloudmodel/relay/pkg/transport"
	"github.com/cloudmodel/relay/pkg/transport/ws"
	"github.com/cloudmodel/relay/pkg/wire"
)

// recordingSink is a transport.ClientSink double that records every push in
// arrival order, guarded since deliveries happen on the client's own
// read-loop goroutine.
type recordingSink struct {
	mu       sync.Mutex
	catchups []wire.Catchup
	events   []wire.Event
}

func (s *recordingSink) OnCatchup(c wire.Catchup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catchups = append(s.catchups, c)
}

func (s *recordingSink) OnEvent(e wire.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) snapshotEvents() []wire.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Event(nil), s.events...)
}

func (s *recordingSink) snapshotCatchups() []wire.Catchup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Catchup(nil), s.catchups...)
}

func setupTestHub(t *testing.T) (*server.Serializer, *httptest.Server) {
	t.Helper()
	srv := server.New()
	hub := ws.NewHub(srv, 5*time.Second, nil)
	ts := httptest.NewServer(hub)
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialClient(t *testing.T, ts *httptest.Server, sink transport.ClientSink) *ws.Client {
	t.Helper()
	url := "ws" + ts.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := ws.Dial(ctx, url, sink)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func syncPropose(t *testing.T, client *ws.Client, p wire.Proposal) wire.ProposalResponse {
	t.Helper()
	respCh := make(chan wire.ProposalResponse, 1)
	client.SendProposal(p, func(resp wire.ProposalResponse) { respCh <- resp })
	select {
	case resp := <-respCh:
		return resp
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for proposal response")
		return wire.ProposalResponse{}
	}
}

func TestWSHub_DeliversEmptyCatchupOnConnect(t *testing.T) {
	_, ts := setupTestHub(t)

	sink := &recordingSink{}
	dialClient(t, ts, sink)

	require.Eventually(t, func() bool { return len(sink.snapshotCatchups()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sink.snapshotCatchups()[0].EventStream)
}

func TestWSHub_ProposeAccepted(t *testing.T) {
	_, ts := setupTestHub(t)
	sink := &recordingSink{}
	client := dialClient(t, ts, sink)

	raw, err := json.Marshal(map[string]string{"text": "hi"})
	require.NoError(t, err)

	resp := syncPropose(t, client, wire.Proposal{SharedMsg: raw, LatestKnownEventID: 0, ClientEventID: 0})
	require.NotNil(t, resp.Accept)
	assert.Equal(t, wire.EventID(1), resp.Accept.EventID)
}

func TestWSHub_BroadcastsToOtherConnection(t *testing.T) {
	_, ts := setupTestHub(t)

	sinkA := &recordingSink{}
	clientA := dialClient(t, ts, sinkA)

	sinkB := &recordingSink{}
	dialClient(t, ts, sinkB)

	raw, err := json.Marshal(map[string]string{"text": "hi"})
	require.NoError(t, err)

	resp := syncPropose(t, clientA, wire.Proposal{SharedMsg: raw, LatestKnownEventID: 0, ClientEventID: 0})
	require.NotNil(t, resp.Accept)

	require.Eventually(t, func() bool { return len(sinkB.snapshotEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, wire.EventID(1), sinkB.snapshotEvents()[0].ID)
	assert.Empty(t, sinkA.snapshotEvents(), "the proposer learns the outcome only via its accept reply")
}
