package polychat

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"git.sr.ht/~rockorager/vaxis"

	"git.sr.ht/~delthas/polychat/chat"
	"git.sr.ht/~delthas/polychat/local"
)

type sentMessage struct {
	channel string
	text    string
}

type sentCmd struct {
	channel string
	cmd     string
	args    []string
}

type fakeConn struct {
	name     string
	channels []string
	sent     []sentMessage
	cmds     []sentCmd
}

func (c *fakeConn) Name() string        { return c.name }
func (c *fakeConn) SetName(name string) { c.name = name }
func (c *fakeConn) Channels() []string  { return c.channels }

func (c *fakeConn) SendChannelMessage(channel, text string) {
	c.sent = append(c.sent, sentMessage{channel, text})
}

func (c *fakeConn) HandleCmd(channel, cmd string, args []string) {
	c.cmds = append(c.cmds, sentCmd{channel, cmd, args})
}

func (c *fakeConn) Autocomplete(word string) (string, bool) {
	return chat.Complete(word, c.channels, []string{"alice", "bob"}, nil)
}

func testSize() (int, int, error) {
	return 80, 24, nil
}

func newTestApp(t *testing.T, out io.Writer) (*App, *fakeConn) {
	t.Helper()
	app := NewApp(Defaults(), chat.NewMailbox(), out, testSize)
	app.notify = nil
	work := &fakeConn{name: "work", channels: []string{"general", "random"}}
	app.handleEvent(chat.Connected{Conn: work})
	return app, work
}

func channelTexts(t *testing.T, app *App, server, channel string) []string {
	t.Helper()
	c, err := app.win.Servers().Channel(server, channel)
	if err != nil {
		t.Fatalf("channel %s/%s: %v", server, channel, err)
	}
	var texts []string
	for _, m := range c.Messages {
		texts = append(texts, m.Text())
	}
	return texts
}

func TestClientTabFirst(t *testing.T) {
	app, _ := newTestApp(t, io.Discard)
	server, channel := app.win.CurrentChannel()
	if server != local.ServerName || channel != local.ErrorsChannel {
		t.Errorf("current channel: got %s/%s", server, channel)
	}
	servers := app.win.Servers().Servers()
	if len(servers) != 2 || servers[0].Name != local.ServerName || servers[1].Name != "work" {
		t.Errorf("unexpected server tabs %v", servers)
	}
}

func TestDuplicateServerNames(t *testing.T) {
	app, _ := newTestApp(t, io.Discard)
	g1 := &fakeConn{name: "Gaming", channels: []string{"#general"}}
	g2 := &fakeConn{name: "Gaming", channels: []string{"#general"}}
	impostor := &fakeConn{name: local.ServerName, channels: []string{local.NotesChannel}}
	added := make(chan struct{})
	app.handleEvent(chat.Connected{Conn: g1})
	app.handleEvent(chat.Connected{Conn: g2, Added: added})
	app.handleEvent(chat.Connected{Conn: impostor})

	select {
	case <-added:
	default:
		t.Errorf("Added was not closed")
	}
	if g1.name != "Gaming" || g2.name != "Gaming (2)" || impostor.name != "Client (2)" {
		t.Errorf("names: got %q, %q, %q", g1.name, g2.name, impostor.name)
	}
	var names []string
	for _, s := range app.win.Servers().Servers() {
		names = append(names, s.Name)
	}
	want := []string{local.ServerName, "work", "Gaming", "Gaming (2)", "Client (2)"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("tabs: got %q, want %q", names, want)
	}

	if err := app.handleInput("/server 3"); err != nil {
		t.Fatal(err)
	}
	if err := app.handleInput("hello"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(g1.sent, []sentMessage{{"#general", "hello"}}) || len(g2.sent) != 0 {
		t.Errorf("sent: first %v, second %v", g1.sent, g2.sent)
	}

	app.handleEvent(chat.Message{Server: "Gaming (2)", Channel: "#general", Sender: "bob", Text: "hi"})
	if got := channelTexts(t, app, "Gaming", "#general"); len(got) != 0 {
		t.Errorf("message of the second server reached the first: %q", got)
	}
	if got := channelTexts(t, app, "Gaming (2)", "#general"); !reflect.DeepEqual(got, []string{"hi"}) {
		t.Errorf("second server: got %q", got)
	}

	if err := app.handleInput("/server 1"); err != nil {
		t.Fatal(err)
	}
	if err := app.handleInput("/channel notes"); err != nil {
		t.Fatal(err)
	}
	if err := app.handleInput("secret note"); err != nil {
		t.Fatal(err)
	}
	if len(impostor.sent) != 0 {
		t.Errorf("a backend named %q received a note: %v", local.ServerName, impostor.sent)
	}
}

func TestHandleInput(t *testing.T) {
	app, work := newTestApp(t, io.Discard)
	if err := app.handleInput("/server work"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		input string
		sent  []sentMessage
		cmds  []sentCmd
	}{
		{
			input: "hello",
			sent:  []sentMessage{{"general", "hello"}},
		},
		{
			input: "//not a command",
			sent:  []sentMessage{{"general", "/not a command"}},
		},
		{
			input: "/join #dev",
			cmds:  []sentCmd{{"general", "join", []string{"#dev"}}},
		},
		{
			input: "/MSG bob hi there",
			cmds:  []sentCmd{{"general", "msg", []string{"bob", "hi", "there"}}},
		},
		{
			input: "   ",
		},
	}

	for _, test := range tests {
		work.sent = nil
		work.cmds = nil
		if err := app.handleInput(test.input); err != nil {
			t.Errorf("%q: %v", test.input, err)
			continue
		}
		if !reflect.DeepEqual(work.sent, test.sent) {
			t.Errorf("%q: sent %v, want %v", test.input, work.sent, test.sent)
		}
		if !reflect.DeepEqual(work.cmds, test.cmds) {
			t.Errorf("%q: commands %v, want %v", test.input, work.cmds, test.cmds)
		}
	}
}

func TestClientCommands(t *testing.T) {
	app, _ := newTestApp(t, io.Discard)

	if err := app.handleInput("/server 2"); err != nil {
		t.Fatal(err)
	}
	if err := app.handleInput("/channel #random"); err != nil {
		t.Fatal(err)
	}
	if server, channel := app.win.CurrentChannel(); server != "work" || channel != "random" {
		t.Errorf("got %s/%s, want work/random", server, channel)
	}

	if err := app.handleInput("/channel nope"); err == nil {
		t.Errorf("jumping to an unknown channel succeeded")
	}
	if err := app.handleInput("/server"); err == nil {
		t.Errorf("missing argument accepted")
	}
	if err := app.handleInput("/"); err == nil {
		t.Errorf("lone slash accepted")
	}

	before := len(channelTexts(t, app, "work", "random"))
	if err := app.handleInput("/help"); err != nil {
		t.Fatal(err)
	}
	if after := len(channelTexts(t, app, "work", "random")); after <= before {
		t.Errorf("help printed nothing")
	}

	if err := app.handleInput("/quit"); err != nil {
		t.Fatal(err)
	}
	if app.state != stateShuttingDown {
		t.Errorf("state after quit: %v", app.state)
	}
}

func TestUnknownReferenceDropped(t *testing.T) {
	app, _ := newTestApp(t, io.Discard)
	app.handleEvent(chat.Message{Server: "home", Channel: "x", Sender: "alice", Text: "lost"})
	app.handleEvent(chat.Edit{Server: "work", Channel: "general", ID: "42", Text: "lost"})

	texts := channelTexts(t, app, local.ServerName, local.ErrorsChannel)
	if len(texts) != 2 {
		t.Fatalf("got %d error lines, want 2: %q", len(texts), texts)
	}
	if len(channelTexts(t, app, "work", "general")) != 0 {
		t.Errorf("dropped event reached a channel")
	}
}

func TestErrorRouting(t *testing.T) {
	app, _ := newTestApp(t, io.Discard)
	app.handleEvent(chat.Error{Server: "work", Channel: "general", Text: "send failed"})
	app.handleEvent(chat.Error{Server: "work", Channel: "gone", Text: "send failed again"})
	app.handleEvent(chat.Error{Text: "disconnected"})

	want := []string{"work: send failed", "work: send failed again", "disconnected"}
	if got := channelTexts(t, app, local.ServerName, local.ErrorsChannel); !reflect.DeepEqual(got, want) {
		t.Errorf("errors channel: got %q, want %q", got, want)
	}
	if got := channelTexts(t, app, "work", "general"); !reflect.DeepEqual(got, []string{"send failed"}) {
		t.Errorf("origin channel: got %q", got)
	}
}

func TestMention(t *testing.T) {
	app, _ := newTestApp(t, io.Discard)
	notified := make(chan string, 1)
	app.notify = func(title, body string) {
		notified <- title + ": " + body
	}

	app.handleEvent(chat.Mention{Message: chat.Message{
		Server:  "work",
		Channel: "random",
		Sender:  "alice",
		Text:    "ping me",
		At:      time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC),
	}})

	c, err := app.win.Servers().Channel("work", "random")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Unread || c.Highlights != 1 {
		t.Errorf("unread=%v highlights=%d", c.Unread, c.Highlights)
	}
	select {
	case n := <-notified:
		if n != "alice in work/random: ping me" {
			t.Errorf("notification %q", n)
		}
	case <-time.After(time.Second):
		t.Errorf("no notification")
	}
}

func TestReactionEvents(t *testing.T) {
	app, _ := newTestApp(t, io.Discard)
	app.handleEvent(chat.HistoryMessage{Message: chat.Message{
		Server: "work", Channel: "general", Sender: "bob", Text: "lunch?", ID: "1",
		Reactions: []chat.Reaction{{Name: "tada", Count: 1}},
	}})
	app.handleEvent(chat.ReactionAdded{Server: "work", Channel: "general", ID: "1", Emoji: "tada"})
	app.handleEvent(chat.ReactionAdded{Server: "work", Channel: "general", ID: "1", Emoji: "eyes"})
	app.handleEvent(chat.ReactionRemoved{Server: "work", Channel: "general", ID: "1", Emoji: "eyes"})
	app.handleEvent(chat.Edit{Server: "work", Channel: "general", ID: "1", Text: "lunch at noon?"})

	c, err := app.win.Servers().Channel("work", "general")
	if err != nil {
		t.Fatal(err)
	}
	if c.Unread {
		t.Errorf("history message marked the channel unread")
	}
	m := c.Messages[0]
	if m.Text() != "lunch at noon?" {
		t.Errorf("text %q", m.Text())
	}
	if r := m.Reactions(); len(r) != 1 || r[0].Name != "tada" || r[0].Count != 2 {
		t.Errorf("reactions %v", r)
	}
}

func TestKeyEvents(t *testing.T) {
	app, work := newTestApp(t, io.Discard)
	press := func(k vaxis.Key) {
		k.EventType = vaxis.EventPress
		app.handleEvent(chat.Input{Key: k})
	}

	press(vaxis.Key{Keycode: vaxis.KeyRight})
	if server, _ := app.win.CurrentChannel(); server != "work" {
		t.Fatalf("Right selected %q", server)
	}
	press(vaxis.Key{Keycode: vaxis.KeyDown})
	if _, channel := app.win.CurrentChannel(); channel != "random" {
		t.Fatalf("Down selected %q", channel)
	}

	for _, r := range "hi #gen" {
		press(vaxis.Key{Keycode: r, Text: string(r)})
	}
	press(vaxis.Key{Keycode: vaxis.KeyTab})
	if got := string(app.win.InputContent()); got != "hi #general" {
		t.Errorf("after Tab: %q", got)
	}
	press(vaxis.Key{Keycode: 'w', Modifiers: vaxis.ModCtrl})
	press(vaxis.Key{Keycode: vaxis.KeyEnter})
	if want := []sentMessage{{"random", "hi "}}; !reflect.DeepEqual(work.sent, want) {
		t.Errorf("sent %v, want %v", work.sent, want)
	}
	if len(app.win.InputContent()) != 0 {
		t.Errorf("compose line not cleared")
	}

	press(vaxis.Key{Keycode: 'c', Modifiers: vaxis.ModCtrl})
	if app.state != stateShuttingDown {
		t.Errorf("Control+c did not quit")
	}
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	events := chat.NewMailbox()
	app := NewApp(Defaults(), events, &out, testSize)
	app.notify = nil

	work := &fakeConn{name: "work", channels: []string{"general"}}
	events.Send(chat.Connected{Conn: work})
	events.Send(chat.Message{Server: "work", Channel: "general", Sender: "alice", Text: "hello"})
	events.Send(chat.Quit{})
	events.Send(chat.Message{Server: "work", Channel: "general", Sender: "alice", Text: "too late"})

	if err := app.Run(); err != nil {
		t.Fatal(err)
	}
	if app.state != stateStopped {
		t.Errorf("state after Run: %v", app.state)
	}
	if got := channelTexts(t, app, "work", "general"); !reflect.DeepEqual(got, []string{"hello"}) {
		t.Errorf("got %q", got)
	}
	if out.Len() == 0 {
		t.Errorf("nothing drawn")
	}
	if err := events.Send(chat.Resize{}); !errors.Is(err, chat.ErrClosed) {
		t.Errorf("send after Run: got %v, want ErrClosed", err)
	}
}

func TestRunDrawError(t *testing.T) {
	fail := errors.New("terminal gone")
	events := chat.NewMailbox()
	app := NewApp(Defaults(), events, io.Discard, func() (int, int, error) {
		return 0, 0, fail
	})
	if err := app.Run(); !errors.Is(err, fail) {
		t.Errorf("got %v, want %v", err, fail)
	}
}

func TestCompleteCommand(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"/he", "/help ", true},
		{"/Q", "/quit ", true},
		{"/c", "/channel ", true},
		{"/x", "", false},
		{"/", "", false},
		{"//he", "", false},
		{"/help me", "", false},
		{"hello", "", false},
	}
	for _, test := range tests {
		got, ok := completeCommand([]rune(test.text))
		if got != test.want || ok != test.ok {
			t.Errorf("%q: got %q %v, want %q %v", test.text, got, ok, test.want, test.ok)
		}
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input     string
		command   string
		args      string
		isCommand bool
	}{
		{"hello", "", "hello", false},
		{"//hello", "", "/hello", false},
		{"/join #c", "JOIN", "#c", true},
		{"/quit", "QUIT", "", true},
		{"/msg   bob hi", "MSG", "bob hi", true},
	}
	for _, test := range tests {
		command, args, isCommand := parseCommand(test.input)
		if command != test.command || args != test.args || isCommand != test.isCommand {
			t.Errorf("%q: got (%q, %q, %v)", test.input, command, args, isCommand)
		}
	}
}

func TestFieldsN(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want []string
	}{
		{"", 2, nil},
		{"a b c", 0, nil},
		{"a b c", 1, []string{"a b c"}},
		{" a  b c ", 2, []string{"a", "b c"}},
		{"a b c", maxArgsInfinite, []string{"a", "b", "c"}},
	}
	for _, test := range tests {
		if got := fieldsN(test.s, test.n); !reflect.DeepEqual(got, test.want) {
			t.Errorf("fieldsN(%q, %d) = %q, want %q", test.s, test.n, got, test.want)
		}
	}
}
