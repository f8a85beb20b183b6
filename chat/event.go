package chat

import (
	"time"

	"git.sr.ht/~rockorager/vaxis"
)

// Event is anything that flows from a producer (a backend, the keyboard
// reader, the signal handler) to the application loop.
type Event interface {
	event()
}

// Reaction is one emoji reaction with the number of users who added it.
type Reaction struct {
	Name  string
	Count int
}

// Input is one decoded keystroke.
type Input struct {
	Key vaxis.Key
}

// Message is a live message. It marks its channel unread unless the channel
// is being viewed.
type Message struct {
	Server  string
	Channel string
	Sender  string
	Text    string

	// ID is the backend message identifier, used by edits and reactions.
	// Empty when the backend has no such notion.
	ID        string
	At        time.Time
	Reactions []Reaction
}

// HistoryMessage is a backfilled message. It never marks anything unread.
type HistoryMessage struct {
	Message
}

// Mention is a live message that addresses the user.
type Mention struct {
	Message
}

type Error struct {
	Server  string // optional
	Channel string // optional
	Text    string
}

// Connected is posted once per backend, after its handshake succeeded.
// When Added is set, it is closed once the server tab exists under its
// final name; the backend starts sending events after that.
type Connected struct {
	Conn  Conn
	Added chan<- struct{}
}

type ChannelAdded struct {
	Server  string
	Channel string
}

type Edit struct {
	Server  string
	Channel string
	ID      string
	Text    string
}

type ReactionAdded struct {
	Server  string
	Channel string
	ID      string
	Emoji   string
}

type ReactionRemoved struct {
	Server  string
	Channel string
	ID      string
	Emoji   string
}

// Resize is posted when the terminal size changed.
type Resize struct{}

type Quit struct{}

func (Input) event()           {}
func (Message) event()         {}
func (HistoryMessage) event()  {}
func (Mention) event()         {}
func (Error) event()           {}
func (Connected) event()       {}
func (ChannelAdded) event()    {}
func (Edit) event()            {}
func (ReactionAdded) event()   {}
func (ReactionRemoved) event() {}
func (Resize) event()          {}
func (Quit) event()            {}
