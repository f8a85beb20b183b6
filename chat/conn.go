// Package chat defines what the application loop needs from a chat backend,
// and the types that backends use to talk to it.
package chat

// Conn is a connection to a chat backend. Implementations are constructed
// with a completed handshake, then feed a Sink from their own goroutines.
//
// All methods are called from the application loop only. They must not
// block on the network: sends are queued, and failures are reported
// asynchronously as Error events.
type Conn interface {
	// Name is the stable label of the server tab.
	Name() string
	// SetName changes the label when Name is already used by another tab.
	// It is only called before the conn runs.
	SetName(name string)
	// Channels returns the channels known at construction time. Channels
	// discovered later are announced with ChannelAdded.
	Channels() []string
	SendChannelMessage(channel, text string)
	// HandleCmd runs a backend-specific command. Unknown commands are
	// ignored.
	HandleCmd(channel, cmd string, args []string)
	// Autocomplete returns the completion of the given word, or ok=false.
	Autocomplete(word string) (completion string, ok bool)
}

// Sink receives events from producers. Mailbox implements it.
type Sink interface {
	Send(ev Event) error
}
