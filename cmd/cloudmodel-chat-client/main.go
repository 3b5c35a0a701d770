// cloudmodel-chat-client is a runnable instance of the client reconciliation
// engine (spec.md §4.2) wired to the reference chat application
// (pkg/chatapp) over the production WebSocket transport. It reads chat
// lines from stdin, proposes each as a shared event, and prints the
// predicted transcript after every local and remote change — a minimal
// terminal stand-in for the view layer spec.md §1 treats as out of scope.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cloudmodel/relay/pkg/chatapp"
	"github.com/cloudmodel/relay/pkg/engine"
	"github.com/cloudmodel/relay/pkg/transport/ws"
	"github.com/cloudmodel/relay/pkg/wire"
)

func main() {
	addr := flag.String("server", "ws://localhost:3000/ws", "CloudModel server WebSocket URL")
	author := flag.String("author", envOr("USER", "anon"), "author name attached to proposed chat lines")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// cell holds the *ws.Client once Dial returns; the sink below
	// needs a live engine before the client exists, and the client needs
	// to exist before the engine can send proposals through it, so the
	// two are wired together via this indirection cell rather than a
	// constructor cycle.
	cell := &clientCell{}
	eng := chatapp.NewEngine(cell)
	sink := &chatSink{eng: eng}

	client, err := ws.Dial(ctx, *addr, sink)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer client.Close()
	cell.client = client

	log.Printf("connected to %s as %q", *addr, *author)
	fmt.Println("type a line and press enter to propose a chat message; ctrl-d to quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		eng.HandleLocalOrigin(engine.LocalOrigin[chatapp.ChatMsg, chatapp.LocalMsg]{
			ProposedEvent: &chatapp.ChatMsg{Author: *author, Text: text},
		})
		printPredicted(eng)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printPredicted(eng *engine.Engine[chatapp.ChatMsg, chatapp.ChatState, chatapp.LocalMsg, chatapp.LocalState]) {
	predicted := eng.Predicted()
	fmt.Printf("--- predicted transcript (known up to event %d) ---\n", eng.LatestKnownEventID())
	for _, line := range predicted.Lines {
		fmt.Printf("%s: %s\n", line.Author, line.Text)
	}
	if errText := eng.LocalModel().LastError; errText != "" {
		fmt.Printf("[last error: %s]\n", errText)
	}
}

// clientCell adapts the engine's ProposalSender capability to a *ws.Client
// constructed after the engine itself (see main's comment above).
type clientCell struct {
	client *ws.Client
}

func (c *clientCell) SendProposal(p wire.Proposal, onResponse func(wire.ProposalResponse)) {
	c.client.SendProposal(p, onResponse)
}

// chatSink adapts transport.ClientSink onto the chat engine's catchup/event
// handlers, printing the refreshed predicted transcript after each push so
// remote activity is visible without the user taking any local action.
type chatSink struct {
	eng *engine.Engine[chatapp.ChatMsg, chatapp.ChatState, chatapp.LocalMsg, chatapp.LocalState]
}

func (s *chatSink) OnCatchup(c wire.Catchup) {
	s.eng.HandleCatchup(c)
	printPredicted(s.eng)
}

func (s *chatSink) OnEvent(e wire.Event) {
	s.eng.HandleRemoteOrigin([]wire.Event{e})
	printPredicted(s.eng)
}
