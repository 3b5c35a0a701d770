package engine

import "encoding/json"

// App is the fixed capability set the engine consumes from the application
// adapter (spec.md §4.2.1). It is intentionally generic over the four
// application-defined opaque types (SharedMsg, SharedState, LocalMsg,
// LocalState) via the type parameters on Engine; App itself is parameterized
// the same way so an application wires exactly one App[S, SS, L, LS] value.
//
// The engine never inspects SharedMsg/SharedState/LocalMsg/LocalState beyond
// calling these functions — spec.md §3 calls them "opaque to the engine".
type App[SharedMsg any, SharedState any, LocalMsg any, LocalState any] struct {
	// InitShared returns the zero canonical state, before any catchup fold
	// (spec.md §9 Open Question 3).
	InitShared func() SharedState

	// InitLocal returns the zero local state.
	InitLocal func() LocalState

	// ReduceShared folds a SharedMsg into SharedState. MUST be pure and
	// deterministic (spec.md §3: "so that every client converges to the
	// same value given the same event sequence").
	ReduceShared func(msg SharedMsg, state SharedState) SharedState

	// ReduceLocal folds a LocalMsg into LocalState and may emit follow-up
	// local commands (spec.md §4.2.1). Follow-up commands are returned as
	// LocalMsg values the engine will run ReduceLocal on, in order, within
	// the same dispatch that produced them.
	ReduceLocal func(msg LocalMsg, state LocalState) (LocalState, []LocalMsg)

	// EncodeShared serializes a SharedMsg to its wire JSON form.
	EncodeShared func(msg SharedMsg) (json.RawMessage, error)

	// DecodeShared parses a SharedMsg from wire JSON.
	DecodeShared func(raw json.RawMessage) (SharedMsg, error)

	// OnDecodeError converts a decode failure into a LocalMsg so the
	// application can surface it to the user (spec.md §4.2.7).
	OnDecodeError func(errText string) LocalMsg

	// RejectionStrategy governs what happens to the pending queue after a
	// server rejection (spec.md §4.2.4, §9).
	RejectionStrategy RejectionStrategy[SharedMsg, SharedState]
}
