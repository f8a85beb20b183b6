// Package local implements the Client tab: a pseudo-server that collects
// errors and keeps notes.
package local

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/delthas/go-libnp"
	"github.com/rs/zerolog/log"

	"git.sr.ht/~delthas/polychat/chat"
)

const (
	ServerName    = "Client"
	ErrorsChannel = "errors"
	NotesChannel  = "notes"
)

var errNoSong = errors.New("no song was detected")

// SongFunc returns the track currently playing, formatted for display.
type SongFunc func(ctx context.Context) (string, error)

type Conn struct {
	sink    chat.Sink
	getSong SongFunc
	now     func() time.Time
}

func New(sink chat.Sink) *Conn {
	return &Conn{
		sink:    sink,
		getSong: GetSong,
		now:     time.Now,
	}
}

// WithSong replaces the now playing lookup.
func (c *Conn) WithSong(f SongFunc) *Conn {
	c.getSong = f
	return c
}

func (c *Conn) Name() string {
	return ServerName
}

// SetName does nothing: the Client tab is added first, so its name is
// never taken.
func (c *Conn) SetName(name string) {}

func (c *Conn) Channels() []string {
	return []string{ErrorsChannel, NotesChannel}
}

func (c *Conn) SendChannelMessage(channel, text string) {
	if channel != NotesChannel {
		c.send(chat.Error{
			Server:  ServerName,
			Channel: channel,
			Text:    fmt.Sprintf("cannot send messages to %q", channel),
		})
		return
	}
	c.note("me", text)
}

func (c *Conn) note(sender, text string) {
	c.send(chat.Message{
		Server:  ServerName,
		Channel: NotesChannel,
		Sender:  sender,
		Text:    chat.ReplaceEmojiAliases(text),
		At:      c.now(),
	})
}

func (c *Conn) send(ev chat.Event) {
	if err := c.sink.Send(ev); err != nil {
		log.Debug().Err(err).Msg("local: dropping event")
	}
}

func (c *Conn) HandleCmd(channel, cmd string, args []string) {
	switch cmd {
	case "np":
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			song, err := c.getSong(ctx)
			if err == nil && song == "" {
				err = errNoSong
			}
			if err != nil {
				c.send(chat.Error{
					Server:  ServerName,
					Channel: NotesChannel,
					Text:    fmt.Sprintf("failed detecting the song: %v", err),
				})
				return
			}
			c.note("np", song)
		}()
	}
}

func (c *Conn) Autocomplete(word string) (string, bool) {
	return chat.Complete(word, []string{"#" + ErrorsChannel, "#" + NotesChannel}, nil, nil)
}

// GetSong asks the system media player what it is playing.
func GetSong(ctx context.Context) (string, error) {
	info, err := libnp.GetInfo(ctx)
	if err != nil {
		return "", err
	}
	if info == nil || info.Title == "" {
		return "", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\x02%s\x02", info.Title)
	if len(info.Artists) > 0 {
		fmt.Fprintf(&sb, " by \x02%s\x02", info.Artists[0])
	}
	if info.Album != "" {
		fmt.Fprintf(&sb, " from \x02%s\x02", info.Album)
	}
	if u, err := url.Parse(info.URL); err == nil {
		switch u.Scheme {
		case "http", "https":
			fmt.Fprintf(&sb, " %s", info.URL)
		}
	}
	return sb.String(), nil
}
