package polychat

import (
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"git.sr.ht/~delthas/polychat/chat"
	"git.sr.ht/~delthas/polychat/local"
	"git.sr.ht/~delthas/polychat/ui"
)

type appState int

const (
	stateRunning appState = iota
	stateShuttingDown
	stateStopped
)

func (s appState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateShuttingDown:
		return "shutting down"
	case stateStopped:
		return "stopped"
	}
	return fmt.Sprintf("appState(%d)", int(s))
}

// App owns the application state. Only the goroutine calling Run touches
// it; everything else talks to it through the mailbox.
type App struct {
	win    *ui.UI
	events *chat.Mailbox

	// conns maps server names to their connection.
	conns map[string]chat.Conn

	cfg       Config
	shortcuts map[keyMatch][]string
	state     appState

	// notify raises a desktop notification. It is called from its own
	// goroutine.
	notify func(title, body string)
}

// NewApp creates the application, with the Client tab as its first server.
// Frames are written to out.
func NewApp(cfg Config, events *chat.Mailbox, out io.Writer, size ui.SizeFunc) *App {
	app := &App{
		win: ui.New(ui.Config{
			ChanColWidth: cfg.ChanColWidth,
			Colors:       cfg.Colors,
		}, out, size),
		events:    events,
		conns:     make(map[string]chat.Conn),
		cfg:       cfg,
		shortcuts: loadShortcuts(cfg.Shortcuts),
		notify: func(title, body string) {
			if err := ui.Notify(title, body); err != nil {
				log.Debug().Err(err).Msg("failed to send notification")
			}
		},
	}
	app.addConn(local.New(events))
	return app
}

// Run applies events until a Quit event or the quit shortcut, redrawing the
// interface after each burst of events. It only fails on terminal errors.
func (app *App) Run() error {
	defer func() {
		app.state = stateStopped
		app.events.Close()
		log.Info().Msg("application stopped")
	}()

	if err := app.win.Draw(); err != nil {
		return err
	}
	for app.state == stateRunning {
		ev, ok := app.events.Recv()
		if !ok {
			return nil
		}
		app.handleEvent(ev)
		for app.state == stateRunning {
			ev, ok := app.events.TryRecv()
			if !ok {
				break
			}
			app.handleEvent(ev)
		}
		if app.state != stateRunning {
			break
		}
		if err := app.win.Draw(); err != nil {
			return err
		}
	}
	return nil
}

func (app *App) quit() {
	if app.state == stateRunning {
		log.Info().Msg("shutting down")
		app.state = stateShuttingDown
	}
}

func (app *App) handleEvent(ev chat.Event) {
	var err error
	switch ev := ev.(type) {
	case chat.Input:
		app.handleKeyEvent(ev.Key)
	case chat.Message:
		err = app.addMessage(ev, true, false)
	case chat.HistoryMessage:
		err = app.addMessage(ev.Message, false, false)
	case chat.Mention:
		err = app.addMessage(ev.Message, true, true)
		if err == nil {
			app.notifyMention(ev.Message)
		}
	case chat.Error:
		app.addError(ev)
	case chat.Connected:
		app.addConn(ev.Conn)
		if ev.Added != nil {
			close(ev.Added)
		}
	case chat.ChannelAdded:
		err = app.win.AddChannel(ev.Server, ev.Channel)
	case chat.Edit:
		err = app.win.Servers().EditMessage(ev.Server, ev.Channel, ev.ID, ev.Text)
	case chat.ReactionAdded:
		err = app.win.Servers().AddReaction(ev.Server, ev.Channel, ev.ID, ev.Emoji)
	case chat.ReactionRemoved:
		err = app.win.Servers().RemoveReaction(ev.Server, ev.Channel, ev.ID, ev.Emoji)
	case chat.Resize:
		app.win.Resize()
	case chat.Quit:
		app.quit()
	default:
		err = fmt.Errorf("unexpected event %T", ev)
	}
	if err != nil {
		app.dropEvent(ev, err)
	}
}

// dropEvent reports an event that could not be applied.
func (app *App) dropEvent(ev chat.Event, err error) {
	log.Warn().Err(err).Str("event", fmt.Sprintf("%T", ev)).Msg("dropping event")
	app.addClientError(fmt.Sprintf("dropped %T: %v", ev, err))
}

// addConn adds the server tab of conn. A conn whose name is taken is
// renamed "name (2)", "name (3)" and so on. The Client tab is added first,
// so its name is never given to a backend.
func (app *App) addConn(conn chat.Conn) {
	name := chat.UniqueName(conn.Name(), "%s (%d)", func(name string) bool {
		_, ok := app.conns[name]
		return ok
	})
	if name != conn.Name() {
		log.Info().Str("server", conn.Name()).Str("name", name).Msg("server name taken, renaming")
		conn.SetName(name)
	}
	app.conns[name] = conn
	app.win.AddServer(name, conn.Channels())
	log.Info().Str("server", name).Int("channels", len(conn.Channels())).Msg("server connected")
}

func (app *App) addMessage(m chat.Message, live, mention bool) error {
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}
	reactions := make([]ui.Reaction, len(m.Reactions))
	for i, r := range m.Reactions {
		reactions[i] = ui.Reaction{Name: r.Name, Count: r.Count}
	}
	msg := ui.NewMessage(m.ID, m.Sender, m.Text, at, reactions)
	return app.win.AddMessage(m.Server, m.Channel, msg, live, mention)
}

func (app *App) addClientError(text string) {
	msg := ui.NewMessage("", "!!", text, time.Now(), nil)
	if err := app.win.AddMessage(local.ServerName, local.ErrorsChannel, msg, true, false); err != nil {
		log.Error().Err(err).Msg("failed to add error line")
	}
}

// addError routes an error to Client/errors, and to its origin channel
// when that channel exists.
func (app *App) addError(ev chat.Error) {
	log.Warn().Str("server", ev.Server).Str("channel", ev.Channel).Msg(ev.Text)
	text := ev.Text
	if ev.Server != "" {
		text = fmt.Sprintf("%s: %s", ev.Server, text)
	}
	app.addClientError(text)

	if ev.Server == "" || ev.Channel == "" {
		return
	}
	if ev.Server == local.ServerName && ev.Channel == local.ErrorsChannel {
		return
	}
	if !app.win.HasChannel(ev.Server, ev.Channel) {
		return
	}
	msg := ui.NewMessage("", "!!", ev.Text, time.Now(), nil)
	_ = app.win.AddMessage(ev.Server, ev.Channel, msg, true, false)
}

// printError shows an error caused by the user in the current channel.
func (app *App) printError(err error) {
	server, channel := app.win.CurrentChannel()
	msg := ui.NewMessage("", "!!", err.Error(), time.Now(), nil)
	if err := app.win.AddMessage(server, channel, msg, true, false); err != nil {
		log.Error().Err(err).Msg("failed to print error")
	}
}

// printLine shows an informational line in the current channel.
func (app *App) printLine(head, text string) {
	server, channel := app.win.CurrentChannel()
	msg := ui.NewMessage("", head, text, time.Now(), nil)
	_ = app.win.AddMessage(server, channel, msg, true, false)
}

func (app *App) notifyMention(m chat.Message) {
	if app.notify == nil {
		return
	}
	title := fmt.Sprintf("%s in %s/%s", m.Sender, m.Server, m.Channel)
	go app.notify(title, m.Text)
}

// currentConn returns the connection of the selected server.
func (app *App) currentConn() (conn chat.Conn, channel string, err error) {
	server, channel := app.win.CurrentChannel()
	conn, ok := app.conns[server]
	if !ok {
		return nil, "", fmt.Errorf("%w %q", ui.ErrUnknownServer, server)
	}
	return conn, channel, nil
}

func BuildVersion() (string, bool) {
	if bi, ok := debug.ReadBuildInfo(); ok {
		return bi.Main.Version, true
	} else {
		return "", false
	}
}
