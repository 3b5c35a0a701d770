package server_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmodel/relay/pkg/server"
	"github.com/cloudmodel/relay/pkg/wire"
)

// fakeSession is a minimal server.Session double that records every catchup
// and event it's sent, guarding its slices since sends reach it from many
// proposers' goroutines. SendEvent jitters proportional to
// the event id so that, absent the ordering fix documented in DESIGN.md, a
// later-broadcast lower id would have a real chance to overtake an
// earlier-broadcast higher one.
type fakeSession struct {
	id string

	mu       sync.Mutex
	catchups []wire.Catchup
	events   []wire.Event
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) SendCatchup(c wire.Catchup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catchups = append(f.catchups, c)
	return nil
}

func (f *fakeSession) SendEvent(e wire.Event) error {
	time.Sleep(time.Duration(e.ID%3) * time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeSession) seenEvents() []wire.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Event(nil), f.events...)
}

func msg(t *testing.T, text string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"text": text})
	require.NoError(t, err)
	return raw
}

func TestSerializer_RegisterSession_SendsEmptyCatchupWhenLogEmpty(t *testing.T) {
	s := server.New()
	sess := newFakeSession("a")

	require.NoError(t, s.RegisterSession(sess))

	require.Len(t, sess.catchups, 1)
	assert.Empty(t, sess.catchups[0].EventStream)
}

func TestSerializer_RegisterSession_CatchupIncludesPriorEvents(t *testing.T) {
	s := server.New()
	first := newFakeSession("a")
	require.NoError(t, s.RegisterSession(first))

	resp := s.Propose(first, wire.Proposal{SharedMsg: msg(t, "hi"), LatestKnownEventID: 0, ClientEventID: 0})
	require.NotNil(t, resp.Accept)
	assert.Equal(t, wire.EventID(1), resp.Accept.EventID)

	second := newFakeSession("b")
	require.NoError(t, s.RegisterSession(second))

	require.Len(t, second.catchups, 1)
	require.Len(t, second.catchups[0].EventStream, 1)
	assert.Equal(t, wire.EventID(1), second.catchups[0].EventStream[0].ID)
}

// P1: accepted event ids are strictly increasing and never repeat.
func TestSerializer_Propose_AssignsMonotonicIDs(t *testing.T) {
	s := server.New()
	proposer := newFakeSession("a")
	require.NoError(t, s.RegisterSession(proposer))

	r1 := s.Propose(proposer, wire.Proposal{SharedMsg: msg(t, "one"), LatestKnownEventID: 0, ClientEventID: 0})
	require.NotNil(t, r1.Accept)
	assert.Equal(t, wire.EventID(1), r1.Accept.EventID)

	r2 := s.Propose(proposer, wire.Proposal{SharedMsg: msg(t, "two"), LatestKnownEventID: 1, ClientEventID: 1})
	require.NotNil(t, r2.Accept)
	assert.Equal(t, wire.EventID(2), r2.Accept.EventID)

	assert.Equal(t, 2, s.LogSize())
}

func TestSerializer_Propose_RejectsStaleProposal(t *testing.T) {
	s := server.New()
	a := newFakeSession("a")
	b := newFakeSession("b")
	require.NoError(t, s.RegisterSession(a))
	require.NoError(t, s.RegisterSession(b))

	resp := s.Propose(a, wire.Proposal{SharedMsg: msg(t, "a1"), LatestKnownEventID: 0, ClientEventID: 0})
	require.NotNil(t, resp.Accept)

	// b still thinks the log is empty.
	resp = s.Propose(b, wire.Proposal{SharedMsg: msg(t, "b1"), LatestKnownEventID: 0, ClientEventID: 0})
	require.NotNil(t, resp.Reject)
	assert.Equal(t, wire.ClientEventID(0), resp.Reject.ClientEventID)
	require.Len(t, resp.Reject.MissingEvents, 1)
	assert.Equal(t, wire.EventID(1), resp.Reject.MissingEvents[0].ID)
}

// A latestKnownEventId past the end of the log (e.g. a client that
// remembers more history than a non-durable server restart preserved, or a
// simply malformed proposal) must reject with the whole log rather than
// panic on an out-of-range slice.
func TestSerializer_Propose_LatestKnownEventIDAheadOfLog_RejectsWithFullLog(t *testing.T) {
	s := server.New()
	a := newFakeSession("a")
	require.NoError(t, s.RegisterSession(a))

	resp := s.Propose(a, wire.Proposal{SharedMsg: msg(t, "hi"), LatestKnownEventID: 1, ClientEventID: 0})
	require.NotNil(t, resp.Reject)
	assert.Empty(t, resp.Reject.MissingEvents)
	assert.Equal(t, 0, s.LogSize(), "an out-of-range proposal must not be appended")
}

// A negative latestKnownEventId (never legitimate on the wire, but not
// trustworthy client input either) must also reject safely instead of
// panicking on a negative slice bound.
func TestSerializer_Propose_NegativeLatestKnownEventID_RejectsWithFullLog(t *testing.T) {
	s := server.New()
	a := newFakeSession("a")
	require.NoError(t, s.RegisterSession(a))

	resp := s.Propose(a, wire.Proposal{SharedMsg: msg(t, "a1"), LatestKnownEventID: 0, ClientEventID: 0})
	require.NotNil(t, resp.Accept)

	resp = s.Propose(a, wire.Proposal{SharedMsg: msg(t, "b1"), LatestKnownEventID: -5, ClientEventID: 1})
	require.NotNil(t, resp.Reject)
	require.Len(t, resp.Reject.MissingEvents, 1)
	assert.Equal(t, wire.EventID(1), resp.Reject.MissingEvents[0].ID)
	assert.Equal(t, 1, s.LogSize(), "the rejected proposal must not be appended")
}

func TestSerializer_Propose_BroadcastsToOthersNotProposer(t *testing.T) {
	s := server.New()
	a := newFakeSession("a")
	b := newFakeSession("b")
	require.NoError(t, s.RegisterSession(a))
	require.NoError(t, s.RegisterSession(b))

	resp := s.Propose(a, wire.Proposal{SharedMsg: msg(t, "hi"), LatestKnownEventID: 0, ClientEventID: 0})
	require.NotNil(t, resp.Accept)

	assert.Empty(t, a.seenEvents(), "the accepting session learns the result only via its Accept reply")
	require.Len(t, b.seenEvents(), 1)
	assert.Equal(t, wire.EventID(1), b.seenEvents()[0].ID)
}

func TestSerializer_UnregisterSession_StopsFurtherBroadcasts(t *testing.T) {
	s := server.New()
	a := newFakeSession("a")
	b := newFakeSession("b")
	require.NoError(t, s.RegisterSession(a))
	require.NoError(t, s.RegisterSession(b))

	s.UnregisterSession(b)
	assert.Equal(t, 1, s.ActiveSessions())

	resp := s.Propose(a, wire.Proposal{SharedMsg: msg(t, "hi"), LatestKnownEventID: 0, ClientEventID: 0})
	require.NotNil(t, resp.Accept)
	assert.Empty(t, b.seenEvents())
}

// Regression test for the broadcast-ordering fix (DESIGN.md): broadcasts
// observed by a bystander session must arrive in strictly increasing event
// id order, matching the order they were appended to the log, even when
// many proposers accept concurrently and some sessions are slow to write.
func TestSerializer_ConcurrentProposals_BroadcastsStayInLogOrder(t *testing.T) {
	s := server.New()
	watcher := newFakeSession("watcher")
	require.NoError(t, s.RegisterSession(watcher))

	const workers = 8
	const attemptsPerWorker = 15

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := newFakeSession(fmt.Sprintf("worker-%d", i))
			assert.NoError(t, s.RegisterSession(sess))

			known := wire.EventID(0)
			for attempt := 0; attempt < attemptsPerWorker; attempt++ {
				resp := s.Propose(sess, wire.Proposal{
					SharedMsg:          msg(t, fmt.Sprintf("w%d-%d", i, attempt)),
					LatestKnownEventID: known,
					ClientEventID:      wire.ClientEventID(attempt),
				})
				switch {
				case resp.Accept != nil:
					known = resp.Accept.EventID
				case resp.Reject != nil:
					for _, missing := range resp.Reject.MissingEvents {
						if missing.ID > known {
							known = missing.ID
						}
					}
				}
			}
		}(i)
	}
	wg.Wait()

	events := watcher.seenEvents()
	require.NotEmpty(t, events, "at least one proposal should have been accepted")
	for i := 1; i < len(events); i++ {
		assert.Less(t, events[i-1].ID, events[i].ID,
			"broadcasts must preserve log order: saw id %d after id %d", events[i].ID, events[i-1].ID)
	}
}
