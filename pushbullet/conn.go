// Package pushbullet shows the pushes and mirrored notifications of a
// Pushbullet account, and sends notes.
package pushbullet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"git.sr.ht/~delthas/polychat/chat"
)

const (
	PushesChannel        = "pushes"
	NotificationsChannel = "notifications"

	historyLimit = 50
	seenSize     = 1024

	throttleInterval = 6 * time.Second
	throttleMax      = 1 * time.Minute
	// The stream sends a nop every 30 seconds.
	readTimeout = 95 * time.Second
)

type Config struct {
	Token string

	// Empty means DefaultAPIURL and DefaultStreamURL.
	APIURL    string
	StreamURL string
}

type Conn struct {
	cfg    Config
	api    *Client
	sink   chat.Sink
	logger zerolog.Logger
	outbox *chat.Outbox

	name    string
	self    *User
	history []Push
	users   *chat.BiMap // email -> sender name

	syncMu sync.Mutex
	newest float64                      // modification time of the newest push seen
	seen   *lru.Cache[string, struct{}] // idens of the pushes already shown

	// closed is cancelled by Close.
	closed context.Context
	close  context.CancelFunc
}

// New fetches the account and its latest pushes.
func New(ctx context.Context, cfg Config, sink chat.Sink) (*Conn, error) {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.StreamURL == "" {
		cfg.StreamURL = DefaultStreamURL
	}
	api := NewClient(cfg.APIURL, cfg.Token)
	self, err := api.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("pushbullet: failed to authenticate: %w", err)
	}
	pushes, err := api.Pushes(ctx, 0, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("pushbullet: failed to list pushes: %w", err)
	}
	seen, err := lru.New[string, struct{}](seenSize)
	if err != nil {
		return nil, err
	}

	name := "Pushbullet"
	if self.Email != "" {
		name += " (" + self.Email + ")"
	}
	c := &Conn{
		cfg:    cfg,
		api:    api,
		sink:   sink,
		logger: log.With().Str("server", name).Logger(),
		outbox: chat.NewOutbox(chat.OutboxSize, rate.NewLimiter(rate.Every(time.Second), 3)),
		name:   name,
		self:   self,
		users:  chat.NewBiMap(),
		seen:   seen,
	}
	c.closed, c.close = context.WithCancel(context.Background())
	// Oldest first.
	sort.SliceStable(pushes, func(i, j int) bool {
		return pushes[i].Modified < pushes[j].Modified
	})
	for _, p := range pushes {
		c.markSeen(p)
		if p.Active {
			c.history = append(c.history, p)
		}
	}
	c.logger.Info().Int("pushes", len(c.history)).Msg("pushbullet: connected")
	return c, nil
}

// markSeen records p and reports whether it was new.
func (c *Conn) markSeen(p Push) bool {
	if p.Modified > c.newest {
		c.newest = p.Modified
	}
	if p.SenderEmail != "" && p.SenderName != "" {
		c.users.Set(p.SenderEmail, p.SenderName)
	}
	if p.Iden == "" {
		return true
	}
	if c.seen.Contains(p.Iden) {
		return false
	}
	c.seen.Add(p.Iden, struct{}{})
	return true
}

// Run replays the history, then follows the event stream until ctx is done.
func (c *Conn) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(c.closed, cancel)()

	go c.outbox.Run(ctx, func(channel string, err error) {
		c.sendError(channel, err.Error())
	})

	for _, p := range c.history {
		if err := c.sink.Send(chat.HistoryMessage{Message: c.message(p)}); err != nil {
			return nil
		}
	}
	c.history = nil

	var delay time.Duration
	for ctx.Err() == nil {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
		if delay < throttleMax {
			delay += throttleInterval
		}

		start := time.Now()
		err := c.stream(ctx)
		if ctx.Err() != nil || errors.Is(err, chat.ErrClosed) {
			return nil
		}
		if time.Since(start) > throttleMax {
			delay = throttleInterval
		}
		c.logger.Warn().Err(err).Dur("retry", delay).Msg("pushbullet: stream lost")
		c.sendError("", fmt.Sprintf("stream lost: %v", err))
	}
	return nil
}

func (c *Conn) Close() error {
	c.close()
	return nil
}

type streamMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Push    *Push  `json:"push,omitempty"`
}

func (c *Conn) stream(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.StreamURL+"/"+c.cfg.Token, nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	stop := context.AfterFunc(ctx, func() {
		ws.Close()
	})
	defer stop()
	c.logger.Debug().Msg("pushbullet: stream connected")

	// Catch up with what happened while disconnected.
	if err := c.sync(ctx); err != nil {
		return err
	}
	for {
		if err := ws.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		var msg streamMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return err
		}
		if err := c.handleStream(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Conn) handleStream(ctx context.Context, msg streamMessage) error {
	switch msg.Type {
	case "nop":
	case "tickle":
		if msg.Subtype == "push" {
			return c.sync(ctx)
		}
	case "push":
		if msg.Push == nil || msg.Push.Type != "mirror" {
			return nil
		}
		p := msg.Push
		m := chat.Message{
			Server:  c.name,
			Channel: NotificationsChannel,
			Sender:  p.ApplicationName,
			Text:    joinNonEmpty(p.Title, p.Body),
			At:      time.Now(),
		}
		if m.Sender == "" {
			m.Sender = "phone"
		}
		return c.sink.Send(chat.Mention{Message: m})
	default:
		c.logger.Debug().Str("type", msg.Type).Msg("unhandled stream message")
	}
	return nil
}

// sync posts the pushes modified since the newest one seen.
func (c *Conn) sync(ctx context.Context) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	pushes, err := c.api.Pushes(ctx, c.newest, 0)
	if err != nil {
		return err
	}
	sort.SliceStable(pushes, func(i, j int) bool {
		return pushes[i].Modified < pushes[j].Modified
	})
	for _, p := range pushes {
		if !c.markSeen(p) || !p.Active {
			continue
		}
		if err := c.sink.Send(c.message(p)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) message(p Push) chat.Message {
	sender := p.SenderName
	if p.Direction == "self" || p.Direction == "outgoing" {
		sender = c.self.Name
	}
	if sender == "" {
		sender = p.SenderEmail
	}
	if sender == "" {
		sender = "me"
	}
	return chat.Message{
		Server:  c.name,
		Channel: PushesChannel,
		Sender:  sender,
		Text:    joinNonEmpty(p.Title, p.Body, p.URL, p.FileURL),
		ID:      p.Iden,
		At:      p.Time(),
	}
}

func joinNonEmpty(parts ...string) string {
	var b strings.Builder
	for _, s := range parts {
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return b.String()
}

func (c *Conn) sendError(channel, text string) {
	if err := c.sink.Send(chat.Error{Server: c.name, Channel: channel, Text: text}); err != nil {
		c.logger.Debug().Err(err).Msg("dropping error")
	}
}

// push queues p. The pushes channel is refreshed once it is created.
func (c *Conn) push(channel string, p Push) {
	p.GUID = uuid.NewString()
	ok := c.outbox.Push(channel, func(ctx context.Context) error {
		if _, err := c.api.CreatePush(ctx, p); err != nil {
			return err
		}
		return c.sync(ctx)
	})
	if !ok {
		c.sendError(channel, "too many pending pushes, try again later")
	}
}

func (c *Conn) Name() string {
	return c.name
}

func (c *Conn) SetName(name string) {
	c.name = name
	c.logger = log.With().Str("server", name).Logger()
}

func (c *Conn) Channels() []string {
	return []string{NotificationsChannel, PushesChannel}
}

func (c *Conn) SendChannelMessage(channel, text string) {
	if channel != PushesChannel {
		c.sendError(channel, "notifications are read-only, send pushes from the "+PushesChannel+" channel")
		return
	}
	c.push(channel, Push{Type: "note", Body: text})
}

func (c *Conn) HandleCmd(channel, cmd string, args []string) {
	switch cmd {
	case "link":
		if len(args) == 0 {
			c.sendError(channel, "usage: link <url> [title]")
			return
		}
		c.push(channel, Push{Type: "link", URL: args[0], Title: strings.Join(args[1:], " ")})
	case "push":
		if len(args) < 2 {
			c.sendError(channel, "usage: push <email> <text>")
			return
		}
		email := strings.TrimPrefix(args[0], "@")
		if id, ok := c.users.ID(email); ok {
			email = id
		}
		c.push(channel, Push{Type: "note", Email: email, Body: strings.Join(args[1:], " ")})
	default:
		c.logger.Debug().Str("command", cmd).Msg("unknown command")
	}
}

func (c *Conn) Autocomplete(word string) (string, bool) {
	return chat.Complete(word, c.Channels(), c.users.Names(), nil)
}
