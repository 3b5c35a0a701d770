package engine

// RejectionStrategy decides the new pending queue after a proposal is
// rejected and the client has folded in the events it was missing
// (spec.md §4.2.4, §9). Modeled as a one-method interface rather than a
// closed tagged union — spec.md §9 explicitly allows either: "a small
// interface with a single method works as well".
type RejectionStrategy[SharedMsg any, SharedState any] interface {
	// Reconcile receives the pending queue as it stood before the rejection
	// and the now-caught-up canonical state, and returns the new pending
	// queue to dispatch from.
	Reconcile(old []PendingProposal[SharedMsg], caughtUp SharedState) []PendingProposal[SharedMsg]
}

// dropAllPending empties the queue: the user's in-flight actions are lost
// and upper layers may re-request them (spec.md §4.2.4).
type dropAllPending[SharedMsg any, SharedState any] struct{}

func (dropAllPending[SharedMsg, SharedState]) Reconcile(_ []PendingProposal[SharedMsg], _ SharedState) []PendingProposal[SharedMsg] {
	return nil
}

// DropAllPending returns the stock "drop everything" rejection strategy.
func DropAllPending[SharedMsg any, SharedState any]() RejectionStrategy[SharedMsg, SharedState] {
	return dropAllPending[SharedMsg, SharedState]{}
}

// reapplyAllPending retains the existing queue unchanged, to be re-proposed
// against the new canonical state (spec.md §4.2.4).
type reapplyAllPending[SharedMsg any, SharedState any] struct{}

func (reapplyAllPending[SharedMsg, SharedState]) Reconcile(old []PendingProposal[SharedMsg], _ SharedState) []PendingProposal[SharedMsg] {
	return old
}

// ReapplyAllPending returns the stock "keep the queue, retry against the new
// canonical state" rejection strategy.
func ReapplyAllPending[SharedMsg any, SharedState any]() RejectionStrategy[SharedMsg, SharedState] {
	return reapplyAllPending[SharedMsg, SharedState]{}
}

// customStrategy adapts a plain function to RejectionStrategy, matching
// spec.md §9's "Custom(fn)" arm.
type customStrategy[SharedMsg any, SharedState any] struct {
	fn func(old []PendingProposal[SharedMsg], caughtUp SharedState) []PendingProposal[SharedMsg]
}

func (c customStrategy[SharedMsg, SharedState]) Reconcile(old []PendingProposal[SharedMsg], caughtUp SharedState) []PendingProposal[SharedMsg] {
	return c.fn(old, caughtUp)
}

// CustomRejection wraps fn as a RejectionStrategy.
func CustomRejection[SharedMsg any, SharedState any](
	fn func(old []PendingProposal[SharedMsg], caughtUp SharedState) []PendingProposal[SharedMsg],
) RejectionStrategy[SharedMsg, SharedState] {
	return customStrategy[SharedMsg, SharedState]{fn: fn}
}
