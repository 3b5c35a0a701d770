// Package chatapp is the reference application adapter (spec.md §4.2.1,
// §2 "Application adapter" row): a concrete, minimal shared-message
// application wired into pkg/engine's generic App capability set. It is
// not part of the protocol core — it exists to give every engine/transport
// wiring in this repo something real to drive end to end, the way the
// teacher's pkg/events/types.go chat event types (EventTypeChatCreated,
// EventTypeChatUserMessage) model a chat transcript without owning the
// transport or persistence layer themselves.
package chatapp

import (
	"encoding/json"
	"fmt"

	"github.com/cloudmodel/relay/pkg/engine"
)

// ChatMsg is the SharedMsg type: a single appended chat line. The text
// travels under the "addChat" key used by spec.md §8 scenario 1's wire
// example, next to an "author" key, e.g. `{"author":"alice","addChat":"hi"}`.
type ChatMsg struct {
	Author string `json:"author"`
	Text   string `json:"addChat"`
}

// ChatState is the SharedState type: the transcript folded from every
// accepted ChatMsg in canonical order.
type ChatState struct {
	Lines []ChatLine
}

// ChatLine is one rendered transcript entry.
type ChatLine struct {
	Author string
	Text   string
}

// LocalMsg is the application's LocalMsg type: either a decode/protocol
// error to display, or a change to the draft text box the user is
// composing (not yet proposed).
type LocalMsg struct {
	DecodeError string
	SetDraft    *string
}

// LocalState is the application's LocalState type: transient UI-only state
// never folded into the shared log.
type LocalState struct {
	Draft      string
	LastError  string
	ErrorsSeen int
}

// ReduceShared folds a ChatMsg into ChatState by appending a line. It is
// pure and deterministic, per spec.md §3's requirement on the shared
// reducer: every client that has folded the same events ends up with an
// identical Lines slice.
func ReduceShared(msg ChatMsg, state ChatState) ChatState {
	lines := make([]ChatLine, len(state.Lines), len(state.Lines)+1)
	copy(lines, state.Lines)
	lines = append(lines, ChatLine{Author: msg.Author, Text: msg.Text})
	return ChatState{Lines: lines}
}

// ReduceLocal folds a LocalMsg into LocalState. A decode error is recorded
// as LastError and counted in ErrorsSeen, leaving the draft-in-progress
// untouched; a SetDraft message updates the composing text. Neither emits follow-up commands (spec.md §4.2.1 permits
// but does not require them).
func ReduceLocal(msg LocalMsg, state LocalState) (LocalState, []LocalMsg) {
	if msg.DecodeError != "" {
		state.LastError = msg.DecodeError
		state.ErrorsSeen++
	}
	if msg.SetDraft != nil {
		state.Draft = *msg.SetDraft
	}
	return state, nil
}

// EncodeShared serializes a ChatMsg to wire JSON.
func EncodeShared(msg ChatMsg) (json.RawMessage, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode chat message: %w", err)
	}
	return raw, nil
}

// DecodeShared parses a ChatMsg from wire JSON (spec.md §4.2.1
// decodeShared: "JSON → SharedMsg | DecodeError").
func DecodeShared(raw json.RawMessage) (ChatMsg, error) {
	var msg ChatMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ChatMsg{}, fmt.Errorf("decode chat message: %w", err)
	}
	return msg, nil
}

// OnDecodeError converts a decode failure string into a LocalMsg so the
// application can surface it, per spec.md §4.2.7.
func OnDecodeError(errText string) LocalMsg {
	return LocalMsg{DecodeError: errText}
}

// App returns the fully-wired engine.App capability set for the chat
// application, defaulting to the ReapplyAllPending rejection strategy
// (spec.md §4.2.4) since a dropped chat line is a worse user experience
// than a brief reordering flicker while the client catches up.
func App() engine.App[ChatMsg, ChatState, LocalMsg, LocalState] {
	return engine.App[ChatMsg, ChatState, LocalMsg, LocalState]{
		InitShared:        func() ChatState { return ChatState{} },
		InitLocal:         func() LocalState { return LocalState{} },
		ReduceShared:      ReduceShared,
		ReduceLocal:       ReduceLocal,
		EncodeShared:      EncodeShared,
		DecodeShared:      DecodeShared,
		OnDecodeError:     OnDecodeError,
		RejectionStrategy: engine.ReapplyAllPending[ChatMsg, ChatState](),
	}
}

// NewEngine builds an Engine wired with App() and the given transport
// sender (spec.md §9: "instantiate per session/connection or per
// application embedding").
func NewEngine(sender engine.ProposalSender) *engine.Engine[ChatMsg, ChatState, LocalMsg, LocalState] {
	return engine.New(App(), sender)
}
