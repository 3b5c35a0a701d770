// Package server implements the server serializer described in spec.md
// §4.1: single-writer linearization of proposals into one canonical event
// log, catch-up on connect, and broadcast of accepted events.
//
// The reference server holds the event log only in process memory — per
// spec.md §1 Non-goals, "server-side persistence or durability" is out of
// scope, so there is deliberately no database here (see DESIGN.md for the
// teacher dependencies this excludes).
package server

import (
	"log/slog"
	"sync"

	"github.com/cloudmodel/relay/pkg/wire"
)

// Serializer owns the canonical event log and the set of connected
// sessions (spec.md §3 ServerReplica). One Serializer instance exists per
// application embedding (spec.md §9: "no global mutable state").
type Serializer struct {
	mu         sync.Mutex
	eventLog   []wire.Event
	sessions   map[string]Session
	sessionsMu sync.RWMutex
}

// New creates an empty Serializer.
func New() *Serializer {
	return &Serializer{
		sessions: make(map[string]Session),
	}
}

// RegisterSession records a newly connected session and sends it the
// catchup bundle, matching spec.md §4.1's "On each new session: send a
// catchup payload... containing every event in order".
func (s *Serializer) RegisterSession(sess Session) error {
	s.mu.Lock()
	snapshot := make([]wire.Event, len(s.eventLog))
	copy(snapshot, s.eventLog)
	s.mu.Unlock()

	s.sessionsMu.Lock()
	s.sessions[sess.ID()] = sess
	s.sessionsMu.Unlock()

	return sess.SendCatchup(wire.Catchup{EventStream: snapshot})
}

// UnregisterSession removes a session from the broadcast set. Per spec.md
// §4.1 Failure model, this loses no server state — only the in-flight
// reply to whatever the session had proposed, which the client must be
// able to retry on reconnect.
func (s *Serializer) UnregisterSession(sess Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess.ID())
	s.sessionsMu.Unlock()
}

// ActiveSessions reports how many sessions are currently registered.
func (s *Serializer) ActiveSessions() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// LogSize returns the number of events accepted so far.
func (s *Serializer) LogSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.eventLog)
}

// Propose processes one "propose" request from proposer (spec.md §4.1
// Propose handler). The "was I caught up" decision, the append, and the
// broadcast of the resulting event are all performed under s.mu so that
// they never interleave with another proposal's decision/append/broadcast
// — spec.md §5 is explicit that these "must not interleave with another
// accept/reject decision, or I1 could be violated". Holding the lock
// across the broadcast additionally keeps broadcasts in log order: two
// proposals accepted back to back must also be *broadcast* back to back in
// the same order, or a receiving client's id>latestKnownEventId duplicate
// filter (spec.md §4.2.5) could see the higher id first and wrongly drop
// the lower one as a stale duplicate.
func (s *Serializer) Propose(proposer Session, p wire.Proposal) wire.ProposalResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := wire.EventID(len(s.eventLog))
	if p.LatestKnownEventID != n {
		// Proposer is behind (or, for an out-of-range id, can't possibly be
		// caught up): reject with everything it's missing. latestKnownEventId
		// is client-supplied and not trustworthy — a buggy/adversarial client,
		// or a legitimate one reconnecting after a non-durable server restart
		// (spec.md §1/§6: the log is in-memory only, so a fresh server can be
		// smaller than a client's stale id), can send a negative value or one
		// past the end of the log. Any value outside [0, n] is treated as 0
		// before slicing, so it degrades to "send the whole log" instead of
		// panicking.
		start := p.LatestKnownEventID
		if start < 0 || start > n {
			start = 0
		}

		missing := make([]wire.Event, int(n-start))
		copy(missing, s.eventLog[start:])

		return wire.ProposalResponse{Reject: &wire.Reject{
			ClientEventID: p.ClientEventID,
			MissingEvents: missing,
		}}
	}

	newID := n + 1
	event := wire.Event{ID: newID, Msg: p.SharedMsg}
	s.eventLog = append(s.eventLog, event)

	s.broadcastToOthers(proposer, event)

	return wire.ProposalResponse{Accept: &wire.Accept{
		ClientEventID: p.ClientEventID,
		EventID:       newID,
	}}
}

// broadcastToOthers fans an accepted event out to every session except the
// one that proposed it (spec.md §4.1 Broadcast semantics: "the accepting
// session is informed only via the accept reply"). Called with s.mu held
// by Propose, so broadcasts happen in the same order events were appended
// (see the comment on Propose). Session pointers are still snapshotted
// under sessionsMu and that lock released before sending, so register/
// unregister never blocks on a slow write — only the next proposal does,
// by design, matching the single-writer server model spec.md §5 describes.
func (s *Serializer) broadcastToOthers(proposer Session, event wire.Event) {
	s.sessionsMu.RLock()
	targets := make([]Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if id == proposer.ID() {
			continue
		}
		targets = append(targets, sess)
	}
	s.sessionsMu.RUnlock()

	for _, sess := range targets {
		if err := sess.SendEvent(event); err != nil {
			slog.Warn("failed to broadcast event to session",
				"session_id", sess.ID(), "event_id", event.ID, "error", err)
		}
	}
}
