// Package wire defines the JSON envelopes exchanged between the client
// reconciliation engine and the server serializer, as specified in
// spec.md §6 (External Interfaces). Every struct here is a plain, tagged
// Go type marshaled with encoding/json — there is no codec generation step,
// matching the teacher repo's own events/payloads.go convention of small
// hand-written JSON envelope structs per message kind.
package wire

import "encoding/json"

// EventID is the server-assigned monotonic identifier of a canonical event.
// The zero value (0) means "nothing known yet" (spec.md §6: "a fresh client
// advertises latestKnownEventId = 0").
type EventID int

// ClientEventID is a client-local monotonic identifier for a proposal. It is
// opaque to the server: echoed back verbatim, never interpreted (spec.md I4).
type ClientEventID int

// Event is a single accepted, id-bearing record in the canonical log
// (spec.md §3, §6). Msg carries the application-defined SharedMsg, already
// encoded to JSON by the application's encoder.
type Event struct {
	ID  EventID         `json:"id"`
	Msg json.RawMessage `json:"msg"`
}

// Proposal is the client→server "propose" message (spec.md §6).
type Proposal struct {
	SharedMsg          json.RawMessage `json:"sharedMsg"`
	LatestKnownEventID EventID         `json:"latestKnownEventId"`
	ClientEventID      ClientEventID   `json:"clientEventId"`
}

// Accept is the server's acknowledgement that a proposal was appended to the
// canonical log (spec.md §4.1, §6).
type Accept struct {
	ClientEventID ClientEventID `json:"clientEventId"`
	EventID       EventID       `json:"eventId"`
}

// Reject is the server's refusal of a stale proposal, carrying the events the
// proposer is missing so it can catch up and retry (spec.md §4.1, §6).
type Reject struct {
	ClientEventID ClientEventID `json:"clientEventId"`
	MissingEvents []Event       `json:"missingEvents"`
}

// ProposalResponse is the reply envelope for a "propose" request. Exactly one
// of Accept or Reject is non-nil, matching the union described in spec.md §6.
type ProposalResponse struct {
	Accept *Accept `json:"accept,omitempty"`
	Reject *Reject `json:"reject,omitempty"`
}

// Catchup is the server→client bundle sent once, immediately on connect
// (spec.md §4.1, §6). EventStream may be empty.
type Catchup struct {
	EventStream []Event `json:"eventStream"`
}
