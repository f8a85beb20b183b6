package irc

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lrstanley/girc"

	"git.sr.ht/~delthas/polychat/chat"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		s        string
		chunkLen int
		want     []string
	}{
		{"hello", 10, []string{"hello"}},
		{"hello", 0, []string{"hello"}},
		{"hello world", 5, []string{"hello", " worl", "d"}},
		// é is two bytes and stays whole.
		{"aéb", 2, []string{"a", "é", "b"}},
		// e + combining acute accent is one grapheme of three bytes.
		{"xe\u0301y", 3, []string{"x", "e\u0301", "y"}},
	}
	for _, test := range tests {
		got := splitChunks(test.s, test.chunkLen)
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("splitChunks(%q, %d) = %q, want %q", test.s, test.chunkLen, got, test.want)
		}
		if strings.Join(got, "") != test.s {
			t.Errorf("splitChunks(%q, %d) lost bytes", test.s, test.chunkLen)
		}
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		addr string
		tls  bool
		host string
		port int
	}{
		{"irc.libera.chat", true, "irc.libera.chat", 6697},
		{"irc.libera.chat", false, "irc.libera.chat", 6667},
		{"irc.libera.chat:7000", true, "irc.libera.chat", 7000},
		{"[::1]", true, "::1", 6697},
		{"[::1]:6668", false, "::1", 6668},
	}
	for _, test := range tests {
		c := New(Config{Name: "libera", Addr: test.addr, TLS: test.tls}, nil)
		host, port, err := c.address()
		if err != nil {
			t.Errorf("%q: %v", test.addr, err)
			continue
		}
		if host != test.host || port != test.port {
			t.Errorf("%q: got %s %d", test.addr, host, port)
		}
	}
}

func TestOnMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(Config{Name: "libera", Nick: "polly", Channels: []string{"#go"}}, nil)

	tests := []struct {
		name   string
		source string
		params []string
		want   []chat.Event
	}{
		{
			name:   "channel message",
			source: "alice",
			params: []string{"#Go", "hello"},
			want: []chat.Event{chat.Message{
				Server: "libera", Channel: "#go", Sender: "alice", Text: "hello", At: at,
			}},
		},
		{
			name:   "highlight",
			source: "alice",
			params: []string{"#go", "Polly: ping"},
			want: []chat.Event{chat.Mention{Message: chat.Message{
				Server: "libera", Channel: "#go", Sender: "alice", Text: "Polly: ping", At: at,
			}}},
		},
		{
			name:   "action",
			source: "alice",
			params: []string{"#go", "\x01ACTION waves\x01"},
			want: []chat.Event{chat.Message{
				Server: "libera", Channel: "#go", Sender: "alice", Text: "* alice waves", At: at,
			}},
		},
		{
			name:   "private message",
			source: "bob",
			params: []string{"polly", "psst"},
			want: []chat.Event{
				chat.ChannelAdded{Server: "libera", Channel: "bob"},
				chat.Mention{Message: chat.Message{
					Server: "libera", Channel: "bob", Sender: "bob", Text: "psst", At: at,
				}},
			},
		},
		{
			name:   "second private message",
			source: "bob",
			params: []string{"polly", "again"},
			want: []chat.Event{chat.Mention{Message: chat.Message{
				Server: "libera", Channel: "bob", Sender: "bob", Text: "again", At: at,
			}}},
		},
		{
			name:   "server notice",
			source: "irc.libera.chat",
			params: []string{"polly", "welcome"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := c.onMessage(girc.Event{
				Source:    &girc.Source{Name: test.source},
				Command:   girc.PRIVMSG,
				Params:    test.params,
				Timestamp: at,
			})
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("got %#v\nwant %#v", got, test.want)
			}
		})
	}

	if got, want := c.Channels(), []string{"#go", "bob"}; !reflect.DeepEqual(got, want) {
		t.Errorf("channels: got %v, want %v", got, want)
	}
	if got, ok := c.Autocomplete("@bo"); !ok || got != "@bob" {
		t.Errorf("user completion: got %q, %v", got, ok)
	}
	if got, ok := c.Autocomplete("#g"); !ok || got != "#go" {
		t.Errorf("channel completion: got %q, %v", got, ok)
	}
}

func TestOnJoin(t *testing.T) {
	c := New(Config{Name: "libera", Nick: "polly"}, nil)
	join := func(nick, channel string) []chat.Event {
		return c.onJoin(girc.Event{
			Source:  &girc.Source{Name: nick},
			Command: girc.JOIN,
			Params:  []string{channel},
		})
	}
	want := []chat.Event{chat.ChannelAdded{Server: "libera", Channel: "#dev"}}
	if got := join("polly", "#dev"); !reflect.DeepEqual(got, want) {
		t.Errorf("own join: got %#v", got)
	}
	if got := join("polly", "#DEV"); got != nil {
		t.Errorf("second join: got %#v", got)
	}
	if got := join("alice", "#dev"); got != nil {
		t.Errorf("other join: got %#v", got)
	}
	if _, ok := c.users.ID("alice"); !ok {
		t.Errorf("joining user not recorded")
	}
}

func TestCloseBeforeRun(t *testing.T) {
	c := New(Config{Name: "libera", Addr: "127.0.0.1:1", Nick: "polly"}, chat.NewMailbox())
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background())
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after Close")
	}
}

func TestNewChannels(t *testing.T) {
	c := New(Config{Name: "libera", Nick: "polly", Channels: []string{"#go", "#Dev"}}, nil)
	if got, want := c.Channels(), []string{"#Dev", "#go"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	c.SetName("libera (2)")
	if got := c.Name(); got != "libera (2)" {
		t.Errorf("name: got %q", got)
	}
}
