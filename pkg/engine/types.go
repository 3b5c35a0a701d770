package engine

import "github.com/cloudmodel/relay/pkg/wire"

// PendingProposal is a shared message the client has dispatched (or queued
// to dispatch) but whose server outcome is unknown (spec.md §3).
type PendingProposal[SharedMsg any] struct {
	ClientEventID wire.ClientEventID
	Msg           SharedMsg
}

// LocalOrigin is produced by the view layer; either or both fields may be
// set (spec.md §4.2.2).
type LocalOrigin[SharedMsg any, LocalMsg any] struct {
	LocalMsg      *LocalMsg
	ProposedEvent *SharedMsg
}

// ControlMsg is the decoded outcome of a "propose" round trip: exactly one
// of Accept or Reject is non-nil (spec.md §4.2.2).
type ControlMsg struct {
	Accept *ControlAccept
	Reject *ControlReject
}

// ControlAccept mirrors wire.Accept after it has been matched to the head of
// the pending queue.
type ControlAccept struct {
	EventID       wire.EventID
	ClientEventID wire.ClientEventID
}

// ControlReject mirrors wire.Reject.
type ControlReject struct {
	ClientEventID wire.ClientEventID
	MissingEvents []wire.Event
}

// ProposalSender is the one capability the engine needs from the transport:
// dispatch the head of the pending queue and receive its outcome
// asynchronously via onResponse (spec.md §4.2.1, §4.3). The engine never
// calls onResponse itself — a transport binding does, exactly once per
// SendProposal call, per the §4.3 "exactly once" contract.
type ProposalSender interface {
	SendProposal(p wire.Proposal, onResponse func(wire.ProposalResponse))
}
