// Package discord connects a Discord account. Each guild is its own server
// tab, sharing one gateway session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"git.sr.ht/~delthas/polychat/chat"
)

const (
	historyLimit = 50

	// channelFormat names the channels that share the name of another one.
	channelFormat = "%s~%d"
)

type Config struct {
	Token string
}

// Session is the gateway connection shared by the guild conns.
type Session struct {
	dg     *discordgo.Session
	sink   chat.Sink
	selfID string

	// guilds maps guild IDs to their conn. It is not modified after Open.
	guilds map[string]*Conn

	// live is set once the conns were announced; events received before
	// are covered by the history backfill.
	live atomic.Bool

	outbox *chat.Outbox
	// closed is cancelled by Close.
	closed context.Context
	close  context.CancelFunc
}

// Conn is one guild.
type Conn struct {
	s       *Session
	guildID string

	// channels holds one name per channel: channels sharing a name get a
	// "~2" suffix, "~3" and so on.
	channels *chat.BiMap // ID -> "#name"
	users    *chat.BiMap
	emoji    *chat.BiMap // custom emoji ID -> name

	mu     sync.Mutex
	name   string
	latest map[string]string // channel ID -> ID of its latest message
}

// Open connects to the gateway and loads the guilds and their text channels.
func Open(ctx context.Context, cfg Config, sink chat.Sink) (*Session, error) {
	dg, err := discordgo.New(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	s := &Session{
		dg:     dg,
		sink:   sink,
		guilds: make(map[string]*Conn),
		outbox: chat.NewOutbox(chat.OutboxSize, rate.NewLimiter(rate.Limit(5), 5)),
	}
	s.closed, s.close = context.WithCancel(context.Background())

	ready := make(chan *discordgo.Ready, 1)
	dg.AddHandlerOnce(func(_ *discordgo.Session, r *discordgo.Ready) {
		ready <- r
	})
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		s.dispatch(s.onMessageCreate(m))
	})
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
		s.dispatch(s.onMessageUpdate(m))
	})
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		s.dispatch(s.onReaction(r.MessageReaction, true))
	})
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
		s.dispatch(s.onReaction(r.MessageReaction, false))
	})
	dg.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelCreate) {
		s.dispatch(s.onChannelCreate(c.Channel))
	})

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("discord: failed to connect: %w", err)
	}

	var r *discordgo.Ready
	select {
	case r = <-ready:
	case <-ctx.Done():
		dg.Close()
		return nil, ctx.Err()
	}
	s.selfID = r.User.ID

	for _, g := range r.Guilds {
		guild, err := dg.Guild(g.ID)
		if err != nil {
			dg.Close()
			return nil, fmt.Errorf("discord: failed to fetch guild %s: %w", g.ID, err)
		}
		channels, err := dg.GuildChannels(g.ID)
		if err != nil {
			dg.Close()
			return nil, fmt.Errorf("discord: failed to list channels of %q: %w", guild.Name, err)
		}
		s.guilds[g.ID] = newConn(s, guild, channels)
	}
	log.Info().Int("guilds", len(s.guilds)).Msg("discord: connected")
	return s, nil
}

func newConn(s *Session, guild *discordgo.Guild, channels []*discordgo.Channel) *Conn {
	c := &Conn{
		s:        s,
		guildID:  guild.ID,
		name:     guild.Name,
		channels: chat.NewBiMap(),
		users:    chat.NewBiMap(),
		emoji:    chat.NewBiMap(),
		latest:   make(map[string]string),
	}
	for _, ch := range channels {
		if isText(ch) {
			c.channels.SetUnique(ch.ID, "#"+ch.Name, channelFormat)
		}
	}
	for _, e := range guild.Emojis {
		c.emoji.Set(e.ID, e.Name)
	}
	return c
}

func isText(ch *discordgo.Channel) bool {
	return ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews
}

// Conns returns the guild conns, sorted by name.
func (s *Session) Conns() []*Conn {
	conns := make([]*Conn, 0, len(s.guilds))
	for _, c := range s.guilds {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].Name() < conns[j].Name()
	})
	return conns
}

// Run backfills history and forwards live events until ctx is done. The
// conns must have been announced before.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(s.closed, cancel)()
	defer s.dg.Close()

	go s.outbox.Run(ctx, func(channel string, err error) {
		server, channel, _ := strings.Cut(channel, "\x00")
		s.send(chat.Error{Server: server, Channel: channel, Text: err.Error()})
	})

	s.live.Store(true)
	for _, c := range s.Conns() {
		if err := c.backfill(ctx); err != nil {
			if errors.Is(err, chat.ErrClosed) {
				return nil
			}
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func (s *Session) Close() error {
	s.close()
	return nil
}

func (s *Session) send(ev chat.Event) {
	if err := s.sink.Send(ev); err != nil {
		log.Debug().Err(err).Msg("discord: dropping event")
		s.close()
	}
}

func (s *Session) dispatch(events []chat.Event) {
	if !s.live.Load() {
		return
	}
	for _, ev := range events {
		s.send(ev)
	}
}

// conn returns the conn and channel name of a guild channel.
func (s *Session) conn(guildID, channelID string) (*Conn, string, bool) {
	c, ok := s.guilds[guildID]
	if !ok {
		return nil, "", false
	}
	channel, ok := c.channels.Name(channelID)
	return c, channel, ok
}

func (s *Session) onMessageCreate(m *discordgo.MessageCreate) []chat.Event {
	c, channel, ok := s.conn(m.GuildID, m.ChannelID)
	if !ok {
		return nil
	}
	msg := c.message(channel, m.Message)
	if m.Author != nil && m.Author.ID != s.selfID && s.mentioned(m.Message) {
		return []chat.Event{chat.Mention{Message: msg}}
	}
	return []chat.Event{msg}
}

func (s *Session) mentioned(m *discordgo.Message) bool {
	if m.MentionEveryone {
		return true
	}
	for _, u := range m.Mentions {
		if u.ID == s.selfID {
			return true
		}
	}
	return false
}

func (s *Session) onMessageUpdate(m *discordgo.MessageUpdate) []chat.Event {
	c, channel, ok := s.conn(m.GuildID, m.ChannelID)
	if !ok || m.Content == "" {
		return nil
	}
	return []chat.Event{chat.Edit{
		Server:  c.Name(),
		Channel: channel,
		ID:      m.ID,
		Text:    messageText(m.Message),
	}}
}

func (s *Session) onReaction(r *discordgo.MessageReaction, added bool) []chat.Event {
	c, channel, ok := s.conn(r.GuildID, r.ChannelID)
	if !ok {
		return nil
	}
	if added {
		return []chat.Event{chat.ReactionAdded{Server: c.Name(), Channel: channel, ID: r.MessageID, Emoji: r.Emoji.Name}}
	}
	return []chat.Event{chat.ReactionRemoved{Server: c.Name(), Channel: channel, ID: r.MessageID, Emoji: r.Emoji.Name}}
}

func (s *Session) onChannelCreate(ch *discordgo.Channel) []chat.Event {
	c, ok := s.guilds[ch.GuildID]
	if !ok || !isText(ch) {
		return nil
	}
	name := c.channels.SetUnique(ch.ID, "#"+ch.Name, channelFormat)
	return []chat.Event{chat.ChannelAdded{Server: c.Name(), Channel: name}}
}

func (c *Conn) backfill(ctx context.Context) error {
	for _, name := range c.channels.Names() {
		if ctx.Err() != nil {
			return nil
		}
		id, ok := c.channels.ID(name)
		if !ok {
			continue
		}
		messages, err := c.s.dg.ChannelMessages(id, historyLimit, "", "", "")
		if err != nil {
			// Channels hidden by permissions fail here.
			log.Debug().Err(err).Str("server", c.Name()).Str("channel", name).Msg("failed to fetch history")
			continue
		}
		// Discord returns the newest messages first.
		for i := len(messages) - 1; i >= 0; i-- {
			m := c.message(name, messages[i])
			if err := c.s.sink.Send(chat.HistoryMessage{Message: m}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Conn) message(channel string, m *discordgo.Message) chat.Message {
	sender := "unknown"
	if m.Author != nil {
		sender = m.Author.Username
		if m.Member != nil && m.Member.Nick != "" {
			sender = m.Member.Nick
		}
		c.users.Set(m.Author.ID, sender)
	}
	reactions := make([]chat.Reaction, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		if r.Emoji != nil {
			reactions = append(reactions, chat.Reaction{Name: r.Emoji.Name, Count: r.Count})
		}
	}
	c.mu.Lock()
	if id, ok := c.channels.ID(channel); ok {
		c.latest[id] = m.ID
	}
	c.mu.Unlock()
	return chat.Message{
		Server:    c.Name(),
		Channel:   channel,
		Sender:    sender,
		Text:      messageText(m),
		ID:        m.ID,
		At:        m.Timestamp,
		Reactions: reactions,
	}
}

// messageText renders user mentions by name and appends attachment links.
func messageText(m *discordgo.Message) string {
	text := m.ContentWithMentionsReplaced()
	for _, a := range m.Attachments {
		if text != "" {
			text += " "
		}
		text += a.URL
	}
	return text
}

func (c *Conn) push(channel string, do func(ctx context.Context) error) {
	if !c.s.outbox.Push(c.Name()+"\x00"+channel, do) {
		c.s.send(chat.Error{Server: c.Name(), Channel: channel, Text: "too many pending operations, try again later"})
	}
}

func (c *Conn) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Conn) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *Conn) Channels() []string {
	return c.channels.Names()
}

func (c *Conn) SendChannelMessage(channel, text string) {
	id, ok := c.channels.ID(channel)
	if !ok {
		c.s.send(chat.Error{Server: c.Name(), Channel: channel, Text: fmt.Sprintf("unknown channel %q", channel)})
		return
	}
	if name, ok := chat.ParseReaction(text); ok {
		c.mu.Lock()
		messageID := c.latest[id]
		c.mu.Unlock()
		if messageID == "" {
			c.s.send(chat.Error{Server: c.Name(), Channel: channel, Text: "no message to react to"})
			return
		}
		emoji, ok := c.reactionEmoji(name)
		if !ok {
			c.s.send(chat.Error{Server: c.Name(), Channel: channel, Text: fmt.Sprintf("unknown emoji %q", name)})
			return
		}
		c.push(channel, func(ctx context.Context) error {
			return c.s.dg.MessageReactionAdd(id, messageID, emoji, discordgo.WithContext(ctx))
		})
		return
	}
	text = chat.ReplaceEmojiAliases(text)
	c.push(channel, func(ctx context.Context) error {
		_, err := c.s.dg.ChannelMessageSend(id, text, discordgo.WithContext(ctx))
		return err
	})
}

// reactionEmoji returns the API form of an emoji name: the emoji itself, or
// name:ID for custom guild emoji.
func (c *Conn) reactionEmoji(name string) (string, bool) {
	if id, ok := c.emoji.ID(name); ok {
		return name + ":" + id, true
	}
	return chat.EmojiByAlias(name)
}

func (c *Conn) HandleCmd(channel, cmd string, args []string) {
	switch cmd {
	case "nick":
		nick := strings.Join(args, " ")
		c.push(channel, func(ctx context.Context) error {
			return c.s.dg.GuildMemberNickname(c.guildID, "@me", nick, discordgo.WithContext(ctx))
		})
	default:
		log.Debug().Str("server", c.Name()).Str("command", cmd).Msg("unknown command")
	}
}

func (c *Conn) Autocomplete(word string) (string, bool) {
	return chat.Complete(word, c.channels.Names(), c.users.Names(), c.emoji.Names())
}
