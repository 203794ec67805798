// Package notify delivers text messages to players through the bot API.
//
// Roster mutations enqueue a Message after they commit. A Dispatcher hands
// messages to a Sender on its own goroutines, so a slow or failing bot API
// never delays or fails the request that triggered the message. Undelivered
// messages are written to the store's notification failure log.
package notify

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindBumped        Kind = "bumped"
	KindPromoted      Kind = "promoted"
	KindGameCancelled Kind = "game_cancelled"
	KindCustom        Kind = "custom"
)

// Message is one outbound text and the data needed to render it.
type Message struct {
	Kind   Kind
	UserID string
	Name   string
	Phone  string

	GameID   string
	GameName string
	Day      string
	Time     string
	Location string

	// Text is the body of a custom message.
	Text string
}

// Format renders the text sent for m.
func Format(m Message) string {
	greeting := "Hi"
	if name := strings.TrimSpace(m.Name); name != "" {
		greeting = "Hi " + name
	}

	switch m.Kind {
	case KindPromoted:
		return fmt.Sprintf("%s, a spot opened up and you're now confirmed for %s. See you there!", greeting, gameLabel(m))
	case KindBumped:
		return fmt.Sprintf("%s, an admin has removed you from %s. This won't count against you.", greeting, gameLabel(m))
	case KindGameCancelled:
		return fmt.Sprintf("%s, %s has been cancelled.", greeting, gameLabel(m))
	default:
		return m.Text
	}
}

func gameLabel(m Message) string {
	var b strings.Builder
	if m.GameName != "" {
		b.WriteString(m.GameName)
	} else {
		b.WriteString("your game")
	}
	switch {
	case m.Day != "" && m.Time != "":
		fmt.Fprintf(&b, " on %s at %s", titleCase(m.Day), m.Time)
	case m.Day != "":
		fmt.Fprintf(&b, " on %s", titleCase(m.Day))
	}
	if m.Location != "" {
		fmt.Fprintf(&b, " (%s)", m.Location)
	}
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
