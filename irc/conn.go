// Package irc connects to an IRC server, reconnecting when the connection
// is lost.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"git.sr.ht/~rockorager/vaxis"
	"github.com/lrstanley/girc"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"git.sr.ht/~delthas/polychat/chat"
)

const (
	throttleInterval = 6 * time.Second
	throttleMax      = 1 * time.Minute
	dialTimeout      = 10 * time.Second

	lineLen = 512
	// hostLen is the longest host name a server may prefix our messages
	// with.
	hostLen = 63
)

var errOffline = errors.New("you are disconnected from the server, retry later")

type Config struct {
	Name     string
	Addr     string
	Nick     string
	User     string
	Real     string
	Password string
	TLS      bool
	Channels []string
}

type Conn struct {
	cfg    Config
	sink   chat.Sink
	logger zerolog.Logger
	outbox *chat.Outbox

	channels *chat.BiMap // casemapped name -> display name
	users    *chat.BiMap

	mu     sync.Mutex
	client *girc.Client // nil while disconnected
	nick   string

	// closed is cancelled by Close.
	closed context.Context
	close  context.CancelFunc
}

// New returns a conn without connecting: its catalog is the configured
// channels, and channels joined later are announced with ChannelAdded. Run
// connects it.
func New(cfg Config, sink chat.Sink) *Conn {
	c := &Conn{
		cfg:      cfg,
		sink:     sink,
		logger:   log.With().Str("server", cfg.Name).Logger(),
		outbox:   chat.NewOutbox(chat.OutboxSize, rate.NewLimiter(rate.Every(2*time.Second), 5)),
		channels: chat.NewBiMap(),
		users:    chat.NewBiMap(),
		nick:     cfg.Nick,
	}
	c.closed, c.close = context.WithCancel(context.Background())
	for _, ch := range cfg.Channels {
		c.channels.Set(strings.ToLower(ch), ch)
	}
	return c
}

// address returns the server address with the default port for the
// transport when it has none.
func (c *Conn) address() (host string, port int, err error) {
	addr := c.cfg.Addr
	colonIdx := strings.LastIndexByte(addr, ':')
	bracketIdx := strings.LastIndexByte(addr, ']')
	if colonIdx <= bracketIdx {
		// either colonIdx < 0, or the last colon is before a ']' (end
		// of IPv6 address). -> missing port
		if c.cfg.TLS {
			addr += ":6697"
		} else {
			addr += ":6667"
		}
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

func (c *Conn) newClient() (*girc.Client, error) {
	host, port, err := c.address()
	if err != nil {
		return nil, err
	}
	cfg := girc.Config{
		Server: host,
		Port:   port,
		Nick:   c.cfg.Nick,
		User:   c.cfg.User,
		Name:   c.cfg.Real,
		SSL:    c.cfg.TLS,
	}
	if c.cfg.TLS {
		cfg.TLSConfig = &tls.Config{
			ServerName: host,
			NextProtos: []string{"irc"},
		}
	}
	if c.cfg.Password != "" {
		cfg.SASL = &girc.SASLPlain{
			User: c.cfg.User,
			Pass: c.cfg.Password,
		}
	}
	client := girc.New(cfg)

	client.Handlers.Add(girc.CONNECTED, func(client *girc.Client, e girc.Event) {
		c.mu.Lock()
		c.client = client
		c.nick = client.GetNick()
		c.mu.Unlock()
		c.logger.Info().Msg("irc: connected")
		for _, ch := range c.channels.Names() {
			if girc.IsValidChannel(ch) {
				client.Cmd.Join(ch)
			}
		}
	})
	client.Handlers.Add(girc.NICK, func(client *girc.Client, e girc.Event) {
		c.mu.Lock()
		c.nick = client.GetNick()
		c.mu.Unlock()
	})
	client.Handlers.Add(girc.PRIVMSG, func(client *girc.Client, e girc.Event) {
		c.dispatch(c.onMessage(e))
	})
	client.Handlers.Add(girc.NOTICE, func(client *girc.Client, e girc.Event) {
		c.dispatch(c.onMessage(e))
	})
	client.Handlers.Add(girc.JOIN, func(client *girc.Client, e girc.Event) {
		c.dispatch(c.onJoin(e))
	})
	client.Handlers.Add(girc.ERR_NICKNAMEINUSE, func(client *girc.Client, e girc.Event) {
		c.sendError("", e.Last())
	})
	return client, nil
}

func (c *Conn) dial(network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: dialTimeout,
	}
	return proxy.FromEnvironmentUsing(dialer).Dial(network, addr)
}

// Run connects to the server and reconnects with a linear backoff until
// ctx is done or the application stops.
func (c *Conn) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(c.closed, cancel)()

	go c.outbox.Run(ctx, func(channel string, err error) {
		c.sendError(channel, err.Error())
	})

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

		client, err := c.newClient()
		if err != nil {
			return err
		}
		stop := context.AfterFunc(ctx, client.Close)
		c.logger.Info().Str("address", c.cfg.Addr).Msg("irc: connecting")
		start := time.Now()
		err = client.DialerConnect(dialerFunc(c.dial))
		stop()

		c.mu.Lock()
		c.client = nil
		c.mu.Unlock()
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(start) > throttleMax {
			delay = throttleInterval
		}
		if err == nil {
			err = errors.New("connection closed")
		}
		c.logger.Warn().Err(err).Dur("retry", delay).Msg("irc: connection lost")
		c.sendError("", fmt.Sprintf("connection lost: %v", err))
	}
	return nil
}

func (c *Conn) Close() error {
	c.close()
	return nil
}

type dialerFunc func(network, addr string) (net.Conn, error)

func (f dialerFunc) Dial(network, addr string) (net.Conn, error) {
	return f(network, addr)
}

func (c *Conn) currentNick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

// channel returns the display name of a channel or private conversation,
// and whether it was added by this call.
func (c *Conn) channel(name string) (string, bool) {
	key := strings.ToLower(name)
	if display, ok := c.channels.Name(key); ok {
		return display, false
	}
	c.channels.Set(key, name)
	return name, true
}

func (c *Conn) onMessage(e girc.Event) []chat.Event {
	if e.Source == nil || len(e.Params) < 2 {
		return nil
	}
	sender := e.Source.Name
	target := e.Params[0]
	nick := c.currentNick()

	if !girc.IsValidChannel(target) {
		if !strings.EqualFold(target, nick) || strings.Contains(sender, ".") {
			// Server notices.
			return nil
		}
		target = sender
	}
	c.users.Set(strings.ToLower(sender), sender)

	var events []chat.Event
	channel, added := c.channel(target)
	if added {
		events = append(events, chat.ChannelAdded{Server: c.cfg.Name, Channel: channel})
	}

	text := e.Last()
	if e.IsAction() {
		text = "* " + sender + " " + e.StripAction()
	}
	m := chat.Message{
		Server:  c.cfg.Name,
		Channel: channel,
		Sender:  sender,
		Text:    text,
		At:      e.Timestamp,
	}
	if channel == sender || chat.IsHighlight(text, nick) {
		return append(events, chat.Mention{Message: m})
	}
	return append(events, m)
}

func (c *Conn) onJoin(e girc.Event) []chat.Event {
	if e.Source == nil || len(e.Params) < 1 {
		return nil
	}
	if !strings.EqualFold(e.Source.Name, c.currentNick()) {
		c.users.Set(strings.ToLower(e.Source.Name), e.Source.Name)
		return nil
	}
	if channel, added := c.channel(e.Params[0]); added {
		return []chat.Event{chat.ChannelAdded{Server: c.cfg.Name, Channel: channel}}
	}
	return nil
}

func (c *Conn) dispatch(events []chat.Event) {
	for _, ev := range events {
		if err := c.sink.Send(ev); err != nil {
			c.Close()
			return
		}
	}
}

func (c *Conn) sendError(channel, text string) {
	if err := c.sink.Send(chat.Error{Server: c.cfg.Name, Channel: channel, Text: text}); err != nil {
		c.logger.Debug().Err(err).Msg("dropping error")
	}
}

// run queues f to be run with the connected client.
func (c *Conn) run(channel string, f func(client *girc.Client) error) {
	ok := c.outbox.Push(channel, func(ctx context.Context) error {
		c.mu.Lock()
		client := c.client
		c.mu.Unlock()
		if client == nil {
			return errOffline
		}
		return f(client)
	})
	if !ok {
		c.sendError(channel, "too many pending operations, try again later")
	}
}

func (c *Conn) Name() string {
	return c.cfg.Name
}

func (c *Conn) SetName(name string) {
	c.cfg.Name = name
	c.logger = log.With().Str("server", name).Logger()
}

func (c *Conn) Channels() []string {
	return c.channels.Names()
}

func (c *Conn) SendChannelMessage(channel, text string) {
	c.privmsg(channel, channel, text)
}

// privmsg sends text to target, echoing it into channel.
func (c *Conn) privmsg(channel, target, text string) {
	c.run(channel, func(client *girc.Client) error {
		nick := client.GetNick()
		maxLen := lineLen -
			len(":!@ PRIVMSG  :\r\n") -
			len(nick) -
			len(c.cfg.User) -
			hostLen -
			len(target)
		for _, chunk := range splitChunks(text, maxLen) {
			client.Cmd.Message(target, chunk)
		}
		echo, added := c.channel(target)
		var events []chat.Event
		if added {
			events = append(events, chat.ChannelAdded{Server: c.cfg.Name, Channel: echo})
		}
		events = append(events, chat.Message{
			Server:  c.cfg.Name,
			Channel: echo,
			Sender:  nick,
			Text:    text,
			At:      time.Now(),
		})
		c.dispatch(events)
		return nil
	})
}

func (c *Conn) HandleCmd(channel, cmd string, args []string) {
	usage := func(u string) {
		c.sendError(channel, "usage: "+cmd+" "+u)
	}
	switch cmd {
	case "join":
		if len(args) == 0 {
			usage("<channel> [key]")
			return
		}
		c.run(channel, func(client *girc.Client) error {
			if len(args) > 1 {
				client.Cmd.JoinKey(args[0], args[1])
			} else {
				client.Cmd.Join(args[0])
			}
			return nil
		})
	case "part", "leave":
		target := channel
		var reason string
		if len(args) > 0 && girc.IsValidChannel(args[0]) {
			target = args[0]
			args = args[1:]
		}
		reason = strings.Join(args, " ")
		c.run(channel, func(client *girc.Client) error {
			if reason != "" {
				client.Cmd.PartMessage(target, reason)
			} else {
				client.Cmd.Part(target)
			}
			return nil
		})
	case "nick":
		if len(args) != 1 {
			usage("<nickname>")
			return
		}
		c.run(channel, func(client *girc.Client) error {
			client.Cmd.Nick(args[0])
			return nil
		})
	case "msg":
		if len(args) < 2 {
			usage("<target> <message>")
			return
		}
		c.privmsg(channel, args[0], strings.Join(args[1:], " "))
	case "quote":
		if len(args) == 0 {
			usage("<raw message>")
			return
		}
		raw := strings.Join(args, " ")
		c.run(channel, func(client *girc.Client) error {
			return client.Cmd.SendRaw(raw)
		})
	default:
		c.logger.Debug().Str("command", cmd).Msg("unknown command")
	}
}

func (c *Conn) Autocomplete(word string) (string, bool) {
	var channels []string
	for _, name := range c.channels.Names() {
		if girc.IsValidChannel(name) {
			channels = append(channels, name)
		}
	}
	return chat.Complete(word, channels, c.users.Names(), nil)
}

// splitChunks splits s in chunks of at most chunkLen bytes, without
// splitting graphemes.
func splitChunks(s string, chunkLen int) (chunks []string) {
	if chunkLen <= 0 || len(s) <= chunkLen {
		return []string{s}
	}

	b := 0
	n := 0
	for _, c := range vaxis.Characters(s) {
		cw := len(c.Grapheme)
		if n+cw > chunkLen {
			chunks = append(chunks, s[b:b+n])
			b += n
			n = cw
			continue
		}
		n += cw
	}
	if b < len(s) {
		chunks = append(chunks, s[b:])
	}
	return
}
