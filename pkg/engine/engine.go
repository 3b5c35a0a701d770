// Package engine implements the client reconciliation engine described in
// spec.md §4.2: optimistic apply, proposal pipelining, rejection recovery,
// duplicate suppression, and predicted-state projection.
//
// The engine is single-threaded cooperative by contract (spec.md §5): every
// handler runs atomically to completion against the replica before the next
// is processed. Engine enforces this with a plain sync.Mutex rather than
// relying on callers to serialize themselves — transport bindings call in
// from their own read-loop goroutines, and the mutex is what makes "atomic
// to completion" true regardless of how many goroutines are involved.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cloudmodel/relay/pkg/wire"
)

// ErrClientEventIDMismatch is the sentinel whose text heads the local error
// delivered through App.OnDecodeError when an Accept's clientEventId does
// not match the head of the pending queue it purports to acknowledge
// (spec.md §9 Open Question 1: "SHOULD additionally verify... and treat
// mismatch as a fatal protocol error"). The accept is not applied.
var ErrClientEventIDMismatch = errors.New("engine: accept clientEventId does not match pending head")

// Engine is the client reconciliation engine for one application session.
// It is generic over the application's four opaque types, per spec.md §9
// ("the engine must be generic over SharedMsg / LocalMsg / SharedState /
// LocalState. Use parametric typing where available").
type Engine[SharedMsg any, SharedState any, LocalMsg any, LocalState any] struct {
	app    App[SharedMsg, SharedState, LocalMsg, LocalState]
	sender ProposalSender

	mu sync.Mutex

	latestKnownEventID     wire.EventID
	latestKnownSharedModel SharedState
	pendingEvents          []PendingProposal[SharedMsg]
	localModel             LocalState

	nextClientEventID wire.ClientEventID
}

// New creates an Engine with the application's initial local and shared
// state (spec.md §9 Open Question 3: canonical state starts empty and is
// folded from catchup afterward, not pre-seeded any other way).
func New[SharedMsg any, SharedState any, LocalMsg any, LocalState any](
	app App[SharedMsg, SharedState, LocalMsg, LocalState],
	sender ProposalSender,
) *Engine[SharedMsg, SharedState, LocalMsg, LocalState] {
	return &Engine[SharedMsg, SharedState, LocalMsg, LocalState]{
		app:                    app,
		sender:                 sender,
		latestKnownSharedModel: app.InitShared(),
		localModel:             app.InitLocal(),
	}
}

// LatestKnownEventID returns the highest event id folded into canonical
// state (spec.md §3 ClientReplica.latestKnownEventId).
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) LatestKnownEventID() wire.EventID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latestKnownEventID
}

// LocalModel returns a snapshot of the current local state.
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) LocalModel() LocalState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localModel
}

// Predicted returns the canonical state folded with every pending proposal,
// in submission order — the only state the view ever sees (spec.md §4.2.6,
// invariant I5). It is recomputed on every call, never cached.
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) Predicted() SharedState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.predictedLocked()
}

func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) predictedLocked() SharedState {
	state := e.latestKnownSharedModel
	for _, p := range e.pendingEvents {
		state = e.app.ReduceShared(p.Msg, state)
	}
	return state
}

// HandleLocalOrigin processes a view-originated action (spec.md §4.2.3).
//
// The lock is released before any proposal is handed to the transport:
// ProposalSender.SendProposal is documented to deliver its outcome
// asynchronously, but nothing stops a binding (memtransport, notably) from
// calling onResponse synchronously before returning. Holding e.mu across
// that call would make such a binding deadlock against itself the moment
// the response handler tries to reacquire it.
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) HandleLocalOrigin(action LocalOrigin[SharedMsg, LocalMsg]) {
	e.mu.Lock()

	if action.LocalMsg != nil {
		e.runLocalLocked(*action.LocalMsg)
	}

	var proposal wire.Proposal
	send := false
	if action.ProposedEvent != nil {
		proposal, send = e.proposeLocked(*action.ProposedEvent)
	}

	e.mu.Unlock()

	if send {
		e.dispatch(proposal)
	}
}

// dispatch hands a proposal to the transport with e.mu already released.
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) dispatch(p wire.Proposal) {
	e.sender.SendProposal(p, e.handleProposalResponse)
}

// runLocalLocked runs reduceLocal and then any follow-up commands it emits,
// breadth-first in emission order, until none remain (spec.md §4.2.1).
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) runLocalLocked(msg LocalMsg) {
	queue := []LocalMsg{msg}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		newState, followUps := e.app.ReduceLocal(next, e.localModel)
		e.localModel = newState
		queue = append(queue, followUps...)
	}
}

// proposeLocked allocates a fresh ClientEventID, enqueues the proposal, and
// prepares it for dispatch only if it is now the head of an otherwise-idle
// queue (spec.md §4.2.3: "head-only send rule", enforcing invariant I3).
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) proposeLocked(msg SharedMsg) (wire.Proposal, bool) {
	cid := e.nextClientEventID
	e.nextClientEventID++

	wasEmpty := len(e.pendingEvents) == 0
	e.pendingEvents = append(e.pendingEvents, PendingProposal[SharedMsg]{ClientEventID: cid, Msg: msg})

	if wasEmpty {
		return e.prepareDispatchLocked()
	}
	return wire.Proposal{}, false
}

// prepareDispatchLocked builds the wire proposal for the current head of the
// pending queue, using the replica's current latestKnownEventId as the
// proposal's causal stamp (spec.md §4.2.3, §4.2.4 step 4). It only builds the
// message; sending happens after the caller releases e.mu.
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) prepareDispatchLocked() (wire.Proposal, bool) {
	if len(e.pendingEvents) == 0 {
		return wire.Proposal{}, false
	}

	head := e.pendingEvents[0]

	raw, err := e.app.EncodeShared(head.Msg)
	if err != nil {
		// Encoding the application's own message failed — this can only be
		// an application bug (reducers/encoders MUST be total, spec.md §7).
		// There is no wire-level recovery; surface it as a decode-shaped
		// local error so it is at least visible instead of silently stuck.
		e.deliverLocalLocked(e.app.OnDecodeError(fmt.Sprintf("failed to encode proposed event: %v", err)))
		return wire.Proposal{}, false
	}

	return wire.Proposal{
		SharedMsg:          raw,
		LatestKnownEventID: e.latestKnownEventID,
		ClientEventID:      head.ClientEventID,
	}, true
}

// handleProposalResponse is the onProposalResponse callback the transport
// invokes exactly once per SendProposal call (spec.md §4.3). It reacquires
// the engine lock itself, since a transport may invoke it from any
// goroutine — including, for a synchronous binding like memtransport, the
// very goroutine that called SendProposal. The lock is released again
// before any follow-up proposal is dispatched, for the same reason
// HandleLocalOrigin releases it first.
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) handleProposalResponse(resp wire.ProposalResponse) {
	e.mu.Lock()

	var proposal wire.Proposal
	send := false
	switch {
	case resp.Accept != nil:
		proposal, send = e.handleAcceptLocked(*resp.Accept)
	case resp.Reject != nil:
		proposal, send = e.handleRejectLocked(*resp.Reject)
	}

	e.mu.Unlock()

	if send {
		e.dispatch(proposal)
	}
}

// handleAcceptLocked implements spec.md §4.2.4 Accept handling.
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) handleAcceptLocked(accept wire.Accept) (wire.Proposal, bool) {
	if len(e.pendingEvents) == 0 {
		// No pending head — protocol bug or a replayed/duplicate accept.
		// MUST be ignored silently per spec.md §4.2.4 and the §7 error table.
		return wire.Proposal{}, false
	}

	head := e.pendingEvents[0]
	if head.ClientEventID != accept.ClientEventID {
		// spec.md §9 Open Question 1: verify and treat mismatch as fatal.
		e.deliverLocalLocked(e.app.OnDecodeError(
			fmt.Sprintf("%v: head clientEventId=%d accepted clientEventId=%d",
				ErrClientEventIDMismatch, head.ClientEventID, accept.ClientEventID)))
		return wire.Proposal{}, false
	}

	e.latestKnownSharedModel = e.app.ReduceShared(head.Msg, e.latestKnownSharedModel)
	e.latestKnownEventID = accept.EventID
	e.pendingEvents = e.pendingEvents[1:]

	if len(e.pendingEvents) > 0 {
		return e.prepareDispatchLocked()
	}
	return wire.Proposal{}, false
}

// handleRejectLocked implements spec.md §4.2.4 Reject handling.
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) handleRejectLocked(reject wire.Reject) (wire.Proposal, bool) {
	if len(e.pendingEvents) == 0 {
		// Symmetric with the Accept edge case: a response with nothing
		// pending cannot be acted on safely.
		return wire.Proposal{}, false
	}

	// Step 1-2: fold missing events newer than what we already know,
	// filtering duplicates a race against a broadcast may have delivered.
	e.foldRemoteLocked(reject.MissingEvents)

	// Step 3: compute new pending queue via the configured strategy.
	e.pendingEvents = e.app.RejectionStrategy.Reconcile(e.pendingEvents, e.latestKnownSharedModel)

	// Step 4: dispatch the new head, if any.
	if len(e.pendingEvents) > 0 {
		return e.prepareDispatchLocked()
	}
	return wire.Proposal{}, false
}

// HandleCatchup folds the one-time catchup bundle into canonical state
// (spec.md §4.1, §9 Open Question 3). It is equivalent to a RemoteOrigin
// delivery of the same events: duplicate suppression applies uniformly so a
// catchup bundle can safely "send everything in the log" (spec.md §4.2.5).
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) HandleCatchup(c wire.Catchup) {
	e.HandleRemoteOrigin(c.EventStream)
}

// HandleRemoteOrigin folds a sequence of remotely-originated events into
// canonical state, skipping anything already known (spec.md §4.2.5,
// invariant P5). Pending proposals are left untouched: the projection in
// Predicted recomputes on top of whatever canonical state results.
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) HandleRemoteOrigin(events []wire.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.foldRemoteLocked(events)
}

func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) foldRemoteLocked(events []wire.Event) {
	for _, evt := range events {
		if evt.ID <= e.latestKnownEventID {
			continue // duplicate; P5 no-op
		}
		msg, err := e.app.DecodeShared(evt.Msg)
		if err != nil {
			e.deliverLocalLocked(e.app.OnDecodeError(err.Error()))
			continue
		}
		e.latestKnownSharedModel = e.app.ReduceShared(msg, e.latestKnownSharedModel)
		e.latestKnownEventID = evt.ID
	}
}

// deliverLocalLocked coerces a LocalMsg into the local reducer, matching how
// spec.md §4.2.7 treats decode failures: "coerced into a LocalOrigin{
// localMsg: onDecodeError(errorText) }".
func (e *Engine[SharedMsg, SharedState, LocalMsg, LocalState]) deliverLocalLocked(msg LocalMsg) {
	e.runLocalLocked(msg)
}
