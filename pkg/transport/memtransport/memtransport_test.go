package memtransport_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmodel/relay/pkg/engine"
	"github.com/cloudmodel/relay/pkg/server"
	"github.com/cloudmodel/relay/pkg/transport/memtransport"
	"github.com/cloudmodel/relay/pkg/wire"
)

type chatMsg struct {
	Add string `json:"add"`
}

type chatState struct {
	lines []string
}

type localMsg struct {
	err string
}

type localState struct {
	lastErr string
}

func newTestApp() engine.App[chatMsg, chatState, localMsg, localState] {
	return engine.App[chatMsg, chatState, localMsg, localState]{
		InitShared: func() chatState { return chatState{} },
		InitLocal:  func() localState { return localState{} },
		ReduceShared: func(msg chatMsg, state chatState) chatState {
			return chatState{lines: append(append([]string(nil), state.lines...), msg.Add)}
		},
		ReduceLocal: func(msg localMsg, state localState) (localState, []localMsg) {
			state.lastErr = msg.err
			return state, nil
		},
		EncodeShared: func(msg chatMsg) (json.RawMessage, error) { return json.Marshal(msg) },
		DecodeShared: func(raw json.RawMessage) (chatMsg, error) {
			var m chatMsg
			err := json.Unmarshal(raw, &m)
			return m, err
		},
		OnDecodeError:     func(errText string) localMsg { return localMsg{err: errText} },
		RejectionStrategy: engine.ReapplyAllPending[chatMsg, chatState](),
	}
}

type engineSink struct {
	eng *engine.Engine[chatMsg, chatState, localMsg, localState]
}

func (s engineSink) OnCatchup(c wire.Catchup) { s.eng.HandleCatchup(c) }
func (s engineSink) OnEvent(e wire.Event)     { s.eng.HandleRemoteOrigin([]wire.Event{e}) }

// deferredSender breaks the construction cycle between Engine (which needs a
// ProposalSender up front) and memtransport.Client (whose ClientSink needs a
// fully-built Engine to forward into): the engine is built against this
// placeholder first, and the real client is plugged in immediately after
// Connect returns, before anything can call SendProposal.
type deferredSender struct {
	client *memtransport.Client
}

func (d *deferredSender) SendProposal(p wire.Proposal, onResponse func(wire.ProposalResponse)) {
	d.client.SendProposal(p, onResponse)
}

func connectClient(t *testing.T, srv *server.Serializer, id string) *engine.Engine[chatMsg, chatState, localMsg, localState] {
	t.Helper()
	sender := &deferredSender{}
	eng := engine.New(newTestApp(), sender)

	client, err := memtransport.Connect(id, srv, engineSink{eng: eng})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, client.Close()) })
	sender.client = client

	return eng
}

// Scenario 1/2 (spec.md §8): two clients, synchronous in-process transport,
// wired exactly the way spec.md §9 calls for in its in-memory test binding.
// This exercises the engine's dispatch-outside-the-lock fix end to end:
// memtransport.Client.SendProposal resolves and invokes onResponse
// synchronously, so if the engine ever dispatched while still holding its
// own mutex, this test would hang rather than fail loudly.
func TestMemTransport_TwoClients_ProposeAndBroadcast(t *testing.T) {
	srv := server.New()

	a := connectClient(t, srv, "alice")
	b := connectClient(t, srv, "bob")

	a.HandleLocalOrigin(engine.LocalOrigin[chatMsg, localMsg]{ProposedEvent: &chatMsg{Add: "hi from alice"}})

	assert.Equal(t, []string{"hi from alice"}, a.Predicted().lines)
	assert.Equal(t, []string{"hi from alice"}, b.Predicted().lines)
	assert.Equal(t, wire.EventID(1), a.LatestKnownEventID())
	assert.Equal(t, wire.EventID(1), b.LatestKnownEventID())

	b.HandleLocalOrigin(engine.LocalOrigin[chatMsg, localMsg]{ProposedEvent: &chatMsg{Add: "hi from bob"}})

	assert.Equal(t, []string{"hi from alice", "hi from bob"}, a.Predicted().lines)
	assert.Equal(t, []string{"hi from alice", "hi from bob"}, b.Predicted().lines)
}

func TestMemTransport_LateJoinerCatchesUp(t *testing.T) {
	srv := server.New()

	a := connectClient(t, srv, "alice")
	a.HandleLocalOrigin(engine.LocalOrigin[chatMsg, localMsg]{ProposedEvent: &chatMsg{Add: "before bob joins"}})
	require.Equal(t, wire.EventID(1), a.LatestKnownEventID())

	b := connectClient(t, srv, "bob")
	assert.Equal(t, []string{"before bob joins"}, b.Predicted().lines)
	assert.Equal(t, wire.EventID(1), b.LatestKnownEventID())
}
